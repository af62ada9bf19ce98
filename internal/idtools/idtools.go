// SPDX-License-Identifier: Apache-2.0
/*
 * dirpatch: directory-level binary patch tool
 * Copyright (C) 2016-2025 SUSE LLC
 * Copyright (C) 2026 Aleksa Sarai <cyphar@cyphar.com>
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package idtools resolves numeric uid/gid to symbolic owner/group names,
// the way the filesystem adapter populates the optional OwnerName/GroupName
// fields in tree.Metadata (spec §3). Lookups use a pure-Go /etc/passwd and
// /etc/group parser (via moby/sys/user) instead of cgo's nss glue, so a
// statically-linked binary still resolves names correctly.
package idtools

import "github.com/moby/sys/user"

// LookupOwnerName returns the symbolic username for uid, or "" if none is
// registered (e.g. a file owned by a uid with no /etc/passwd entry). This
// is advisory only: a miss is never an error, since the spec only requires
// best-effort symbolic names "where available" (§1).
func LookupOwnerName(uid int) string {
	u, err := user.LookupUid(uid)
	if err != nil {
		return ""
	}
	return u.Name
}

// LookupGroupName returns the symbolic group name for gid, or "" if none is
// registered.
func LookupGroupName(gid int) string {
	g, err := user.LookupGid(gid)
	if err != nil {
		return ""
	}
	return g.Name
}

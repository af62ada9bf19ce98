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

package tree

import "strings"

// NormalizeMemberName converts an archive member name (as recorded by tar
// or zip, which may carry a trailing "/" for directories and always uses
// "/" regardless of host OS) into a RelPath key: trailing separators are
// stripped, and "/" is translated to the host separator so it matches the
// filesystem adapter's keys for the same logical path.
//
// An empty name, or a name that normalizes to empty (e.g. "/" or "."),
// maps to RootPath.
func NormalizeMemberName(name string, hostSep byte) RelPath {
	name = strings.Trim(name, "/")
	if name == "" || name == "." {
		return RootPath
	}
	if hostSep != '/' {
		name = strings.ReplaceAll(name, "/", string(hostSep))
	}
	return RelPath(name)
}

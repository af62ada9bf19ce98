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

// Package metacopy shares the "copy mode/ownership from one path to
// another" step used by both the diff engine (spec §4.4(e)/(f), copying
// from the expanded new-snapshot entry onto the staged patch) and the apply
// engine's bundle-entry metadata restoration (spec §4.5 step 8 and its
// "Metadata copy from bundle entry" note).
package metacopy

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"golang.org/x/sys/unix"

	"github.com/cyphar/dirpatch/pkg/dirpatcherr"
	"github.com/cyphar/dirpatch/pkg/tree"
)

// FromPath chmods dst to src's permission bits and attempts to lchown it to
// src's uid/gid, swallowing insufficient-privilege lchown failures exactly
// as the archive adapters' own Expand does.
func FromPath(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := os.Chmod(dst, fi.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if st, ok := fi.Sys().(*unix.Stat_t); ok {
		if err := os.Lchown(dst, int(st.Uid), int(st.Gid)); err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return fmt.Errorf("lchown %s: %w", dst, err)
		}
	}
	return nil
}

// FromMetadata applies meta's permission bits and, if present, uid/gid to
// path. ignoreEUID controls what happens when lchown fails for lack of
// privilege: logged as a warning and swallowed if true (spec §4.5 "Metadata
// copy from bundle entry"), propagated as dirpatcherr.InsufficientPrivilege
// otherwise.
func FromMetadata(path string, meta tree.Metadata, ignoreEUID bool) error {
	if meta.Permissions != nil {
		if err := os.Chmod(path, *meta.Permissions); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	if meta.UID != nil && meta.GID != nil {
		if err := os.Lchown(path, *meta.UID, *meta.GID); err != nil {
			if os.IsPermission(err) && ignoreEUID {
				log.Warnf("lchown %s: %v (ignored: ignoreEUID is set)", path, err)
				return nil
			}
			if os.IsPermission(err) {
				return dirpatcherr.InsufficientPrivilege(fmt.Sprintf("lchown %s", path), err)
			}
			return fmt.Errorf("lchown %s: %w", path, err)
		}
	}
	return nil
}

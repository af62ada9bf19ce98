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

package funchelpers

import (
	"io"

	"github.com/cyphar/dirpatch/internal/assert"
)

// VerifyError captures a deferred function's error into a named return
// slot without clobbering an earlier one. It exists because Close errors
// (a partial flush, ENOSPC on the final write-back) are exactly the kind of
// fault dirpatcherr.IoError is meant to carry, and a bare `defer f.Close()`
// would otherwise discard them.
//
//	func copyOut(dst string) (Err error) {
//		f, err := os.Create(dst)
//		if err != nil {
//			return dirpatcherr.IoError(dst, err)
//		}
//		defer funchelpers.VerifyClose(&Err, f)
//		return writeContent(f)
//	}
//
// which is equivalent to
//
//	func copyOut(dst string) (Err error) {
//		f, err := os.Create(dst)
//		if err != nil {
//			return dirpatcherr.IoError(dst, err)
//		}
//		defer func() {
//			if err := f.Close(); err != nil && Err == nil {
//				Err = err
//			}
//		}()
//		return writeContent(f)
//	}
//
// The earlier error always wins: if the wrapped operation already failed,
// a subsequent Close fault is logged at most by the caller, never silently
// promoted over the original cause.
func VerifyError(Err *error, closeFn func() error) {
	assert.Assert(Err != nil,
		"VerifyError must be called with non-nil Err slot") // programmer error
	if err := closeFn(); err != nil && *Err == nil {
		*Err = err
	}
}

// VerifyClose is shorthand for VerifyError(Err, closer.Close).
func VerifyClose(Err *error, closer io.Closer) {
	VerifyError(Err, closer.Close)
}

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

import (
	"testing"

	fuzzheaders "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeMemberName(t *testing.T) {
	for _, tc := range []struct {
		name    string
		hostSep byte
		want    RelPath
	}{
		{name: "a/b/c", hostSep: '/', want: "a/b/c"},
		{name: "a/b/c/", hostSep: '/', want: "a/b/c"},
		{name: "dir/", hostSep: '/', want: "dir"},
		{name: "", hostSep: '/', want: RootPath},
		{name: "/", hostSep: '/', want: RootPath},
		{name: ".", hostSep: '/', want: RootPath},
		{name: "a/b", hostSep: '\\', want: `a\b`},
	} {
		got := NormalizeMemberName(tc.name, tc.hostSep)
		assert.Equal(t, tc.want, got, "name=%q hostSep=%q", tc.name, tc.hostSep)
	}
}

// FuzzNormalizeMemberName checks the two invariants the archive adapters
// rely on: the result never carries a trailing separator, and normalizing
// an already-normalized name is a no-op (idempotence), grounded on the
// legacy gofuzz-style harness in oci/layer/layer_fuzzer.go, modernized to
// the native testing.F entrypoint.
func FuzzNormalizeMemberName(f *testing.F) {
	f.Add([]byte("a/b/c/"))
	f.Add([]byte("/"))
	f.Add([]byte(""))
	f.Add([]byte("weird//name/"))

	f.Fuzz(func(t *testing.T, data []byte) {
		fc := fuzzheaders.NewConsumer(data)
		name, err := fc.GetString()
		if err != nil {
			t.Skip()
		}

		got := NormalizeMemberName(name, '/')
		if got != RootPath {
			s := string(got)
			if len(s) > 0 && s[len(s)-1] == '/' {
				t.Fatalf("normalized name %q still has a trailing separator", s)
			}
		}

		again := NormalizeMemberName(string(got), '/')
		if got != RootPath && again != got {
			t.Fatalf("normalization not idempotent: %q -> %q -> %q", name, got, again)
		}
	})
}

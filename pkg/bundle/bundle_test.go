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

package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphar/dirpatch/pkg/archive"
	"github.com/cyphar/dirpatch/pkg/tree"
)

func TestSealRequiresXdeltaDir(t *testing.T) {
	stagingTarget := t.TempDir()
	bundlePath := filepath.Join(t.TempDir(), "bundle.tar.gz")

	err := Seal(stagingTarget, bundlePath)
	require.Error(t, err)
}

func TestSealAndWriteMetadata(t *testing.T) {
	stagingTarget := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(stagingTarget, "xdelta", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stagingTarget, "xdelta", "a.txt"), []byte("patch"), 0o644))

	metaPath := filepath.Join(t.TempDir(), "meta.bin")
	require.NoError(t, os.WriteFile(metaPath, []byte("info bytes"), 0o644))
	require.NoError(t, WriteMetadata(stagingTarget, metaPath))

	bundlePath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, Seal(stagingTarget, bundlePath))

	adapter, err := archive.OpenTar(bundlePath)
	require.NoError(t, err)
	defer adapter.Close()

	mapping, err := adapter.Enumerate()
	require.NoError(t, err)

	for _, rel := range []string{"xdelta", "xdelta/sub", "xdelta/a.txt", ".info"} {
		_, ok := mapping[tree.RelPath(rel)]
		assert.True(t, ok, "expected %s in bundle", rel)
	}

	dest := t.TempDir()
	require.NoError(t, adapter.Expand(".info", dest))
	content, err := os.ReadFile(filepath.Join(dest, ".info"))
	require.NoError(t, err)
	assert.Equal(t, "info bytes", string(content))
}

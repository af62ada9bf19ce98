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

package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphar/dirpatch/pkg/tree"
)

func mkTree(t *testing.T, root string, files map[string]string, links map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	for name, target := range links {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.Symlink(target, full))
	}
}

func TestFilesystemCanOpen(t *testing.T) {
	dir := t.TempDir()
	ok, err := FilesystemCanOpen(dir)
	require.NoError(t, err)
	assert.True(t, ok)

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	ok, err = FilesystemCanOpen(file)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = FilesystemCanOpen(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilesystemEnumerateAndExpand(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"a.txt":      "hello",
		"sub/b.txt":  "world",
		"sub/sub2/c": "deep",
	}, map[string]string{
		"link": "a.txt",
	})

	fsAdapter, err := OpenFilesystem(root)
	require.NoError(t, err)
	defer fsAdapter.Close()

	mapping, err := fsAdapter.Enumerate()
	require.NoError(t, err)

	for _, rel := range []tree.RelPath{"a.txt", "sub", "sub/b.txt", "sub/sub2", "sub/sub2/c", "link"} {
		_, ok := mapping[rel]
		assert.True(t, ok, "expected %s in mapping", rel)
	}

	link := mapping["link"]
	require.NotNil(t, link.File)
	assert.True(t, link.File.IsLink)
	assert.Equal(t, "a.txt", link.File.LinkTarget)

	dest := t.TempDir()
	require.NoError(t, fsAdapter.Expand(tree.RootPath, dest))

	content, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(content))

	linkTarget, err := os.Readlink(filepath.Join(dest, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", linkTarget)
}

func TestFilesystemExpandMissingEntry(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{"a.txt": "hi"}, nil)

	fsAdapter, err := OpenFilesystem(root)
	require.NoError(t, err)

	err = fsAdapter.Expand("does/not/exist", t.TempDir())
	require.Error(t, err)
}

func TestFilesystemCreateFromRejectsExistingTarget(t *testing.T) {
	src := t.TempDir()
	mkTree(t, src, map[string]string{"a": "1"}, nil)

	dst := t.TempDir() // already exists
	fsAdapter, err := OpenFilesystem(dst)
	require.NoError(t, err)

	err = fsAdapter.CreateFrom(src)
	require.Error(t, err)
}

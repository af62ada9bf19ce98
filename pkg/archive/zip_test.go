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

	"github.com/cyphar/dirpatch/pkg/dirpatcherr"
	"github.com/cyphar/dirpatch/pkg/tree"
)

func TestZipCanOpen(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "snap.zip")

	src := t.TempDir()
	mkTree(t, src, map[string]string{"a": "1"}, nil)

	zw, err := OpenZip(zipPath)
	require.NoError(t, err)
	require.NoError(t, zw.CreateFrom(src))

	ok, err := ZipCanOpen(zipPath)
	require.NoError(t, err)
	assert.True(t, ok)

	notZip := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(notZip, []byte("hello"), 0o644))
	ok, err = ZipCanOpen(notZip)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestZipRoundTrip(t *testing.T) {
	src := t.TempDir()
	mkTree(t, src, map[string]string{
		"a.txt":      "hello",
		"sub/b.txt":  "world",
		"sub/sub2/c": "deep",
	}, map[string]string{
		"link": "a.txt",
	})

	archivePath := filepath.Join(t.TempDir(), "snap.zip")
	zw, err := OpenZip(archivePath)
	require.NoError(t, err)
	require.NoError(t, zw.CreateFrom(src))

	zr, err := OpenZip(archivePath)
	require.NoError(t, err)
	defer zr.Close()

	mapping, err := zr.Enumerate()
	require.NoError(t, err)

	for _, rel := range []tree.RelPath{"a.txt", "sub", "sub/b.txt", "sub/sub2", "sub/sub2/c", "link"} {
		_, ok := mapping[rel]
		assert.True(t, ok, "expected %s in mapping", rel)
	}

	link := mapping["link"]
	require.NotNil(t, link.File)
	assert.True(t, link.File.IsLink)
	assert.Equal(t, "a.txt", link.File.LinkTarget)

	// Zip carries no uid/gid per spec Non-goals.
	file := mapping["a.txt"]
	require.NotNil(t, file.File)
	assert.Nil(t, file.File.Meta.UID)
	assert.Nil(t, file.File.Meta.GID)

	dest := t.TempDir()
	require.NoError(t, zr.Expand(tree.RootPath, dest))

	content, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(content))

	linkTarget, err := os.Readlink(filepath.Join(dest, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", linkTarget)
}

func TestZipExpandMissingEntry(t *testing.T) {
	src := t.TempDir()
	mkTree(t, src, map[string]string{"a": "1"}, nil)

	archivePath := filepath.Join(t.TempDir(), "snap.zip")
	zw, err := OpenZip(archivePath)
	require.NoError(t, err)
	require.NoError(t, zw.CreateFrom(src))

	zr, err := OpenZip(archivePath)
	require.NoError(t, err)

	err = zr.Expand("nope", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, dirpatcherr.ErrMissingEntry)
}

func TestZipCreateFromRejectsExisting(t *testing.T) {
	src := t.TempDir()
	mkTree(t, src, map[string]string{"a": "1"}, nil)

	archivePath := filepath.Join(t.TempDir(), "snap.zip")
	require.NoError(t, os.WriteFile(archivePath, []byte("x"), 0o644))

	zw, err := OpenZip(archivePath)
	require.NoError(t, err)

	err = zw.CreateFrom(src)
	require.Error(t, err)
	assert.ErrorIs(t, err, dirpatcherr.ErrAlreadyExists)
}

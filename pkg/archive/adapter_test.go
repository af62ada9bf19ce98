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
)

func TestOpenPicksFilesystemForDirectory(t *testing.T) {
	dir := t.TempDir()
	mkTree(t, dir, map[string]string{"a": "1"}, nil)

	adapter, err := Open(dir)
	require.NoError(t, err)
	defer adapter.Close()

	_, ok := adapter.(*Filesystem)
	assert.True(t, ok, "expected *Filesystem, got %T", adapter)
}

func TestOpenPicksTarForGzipStream(t *testing.T) {
	src := t.TempDir()
	mkTree(t, src, map[string]string{"a": "1"}, nil)

	archivePath := filepath.Join(t.TempDir(), "snap.tar.gz")
	tw, err := OpenTar(archivePath)
	require.NoError(t, err)
	require.NoError(t, tw.CreateFrom(src))

	adapter, err := Open(archivePath)
	require.NoError(t, err)
	defer adapter.Close()

	_, ok := adapter.(*Tar)
	assert.True(t, ok, "expected *Tar, got %T", adapter)
}

func TestOpenPicksZipForZipStream(t *testing.T) {
	src := t.TempDir()
	mkTree(t, src, map[string]string{"a": "1"}, nil)

	archivePath := filepath.Join(t.TempDir(), "snap.zip")
	zw, err := OpenZip(archivePath)
	require.NoError(t, err)
	require.NoError(t, zw.CreateFrom(src))

	adapter, err := Open(archivePath)
	require.NoError(t, err)
	defer adapter.Close()

	_, ok := adapter.(*Zip)
	assert.True(t, ok, "expected *Zip, got %T", adapter)
}

func TestOpenUnsupportedArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.bin")
	require.NoError(t, os.WriteFile(path, []byte("not an archive at all"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, dirpatcherr.ErrUnsupportedArchive)
}

func TestOpenUnsupportedArchiveMissingPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, dirpatcherr.ErrUnsupportedArchive)
}

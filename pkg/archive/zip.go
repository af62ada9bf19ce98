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
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/flate"

	"github.com/cyphar/dirpatch/internal/funchelpers"
	"github.com/cyphar/dirpatch/internal/sysutil"
	"github.com/cyphar/dirpatch/pkg/dirpatcherr"
	"github.com/cyphar/dirpatch/pkg/tree"
)

func init() {
	// Use klauspost/compress's flate instead of the stdlib implementation
	// for decompression, the same registration fastzip performs, for
	// faster zip expand; the compressor side is registered per writer by
	// registerZipCompressor (grounded on
	// other_examples/c4e12ffa_saracen-fastzip__extractor.go).
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// registerZipCompressor wires klauspost/compress/flate into a zip.Writer's
// compressor registry.
func registerZipCompressor(zw *zip.Writer) {
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
}

// ZipCanOpen reports whether path is a regular file recognized as a zip
// archive (by attempting to open its central directory).
func ZipCanOpen(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !fi.Mode().IsRegular() {
		return false, nil
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return false, nil //nolint:nilerr // not a zip, not our problem
	}
	defer zr.Close()
	return true, nil
}

// Zip is the Adapter backed by a zip archive. Zip has no concept of
// uid/gid or symbolic owner names (spec §1 Non-goals); Metadata.UID/GID
// are always nil for entries built by this adapter.
type Zip struct {
	path string

	once    sync.Once
	onceErr error
	mapping tree.Mapping
	zr      *zip.ReadCloser
	byPath  map[tree.RelPath]*zip.File
}

// OpenZip opens path as a Zip adapter.
func OpenZip(path string) (*Zip, error) {
	return &Zip{path: path, byPath: map[tree.RelPath]*zip.File{}}, nil
}

func (z *Zip) Close() error {
	if z.zr != nil {
		return z.zr.Close()
	}
	return nil
}

func (z *Zip) Enumerate() (tree.Mapping, error) {
	z.once.Do(func() {
		z.mapping, z.onceErr = z.build()
	})
	return z.mapping, z.onceErr
}

func (z *Zip) build() (tree.Mapping, error) {
	zr, err := zip.OpenReader(z.path)
	if err != nil {
		return nil, dirpatcherr.IoError(z.path, err)
	}
	z.zr = zr

	mapping := tree.Mapping{}
	ensureDir := func(rel tree.RelPath) *tree.Directory {
		if node, ok := mapping[rel]; ok && node.Dir != nil {
			return node.Dir
		}
		dir := &tree.Directory{Name: baseName(rel)}
		mapping[rel] = tree.Node{Dir: dir}
		return dir
	}
	link := func(parent, child tree.RelPath) {
		dir := ensureDir(parent)
		for _, c := range dir.Children {
			if c == child {
				return
			}
		}
		dir.Children = append(dir.Children, child)
	}
	ensureDir(tree.RootPath)

	for _, zf := range zr.File {
		rel := tree.NormalizeMemberName(zf.Name, os.PathSeparator)
		if rel == tree.RootPath {
			continue
		}
		parent := parentOf(rel)
		synthesizeAncestors(mapping, ensureDir, link, parent)
		link(parent, rel)

		perm := zf.Mode().Perm()
		meta := tree.Metadata{Permissions: &perm}

		switch {
		case zf.Mode()&fs.ModeSymlink != 0:
			target, err := readZipSymlink(zf)
			if err != nil {
				return nil, dirpatcherr.IoError(zf.Name, err)
			}
			file := tree.NewSymlink(baseName(rel), target, meta, zf)
			mapping[rel] = tree.Node{File: &file}
		case zf.Mode().IsDir():
			dir := ensureDir(rel)
			dir.Name = baseName(rel)
			dir.Meta = meta
			dir.Ref = zf
		default:
			file := &tree.File{Name: baseName(rel), Meta: meta, Ref: zf}
			mapping[rel] = tree.Node{File: file}
			z.byPath[rel] = zf
		}
	}

	return mapping, nil
}

func readZipSymlink(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (z *Zip) Expand(relPath tree.RelPath, extractionRoot string) error {
	mapping, err := z.Enumerate()
	if err != nil {
		return err
	}

	if relPath == tree.RootPath {
		for rel := range mapping {
			if rel == tree.RootPath {
				continue
			}
			if err := z.expandOne(mapping, rel, extractionRoot); err != nil {
				return err
			}
		}
		return nil
	}
	return z.expandOne(mapping, relPath, extractionRoot)
}

func (z *Zip) expandOne(mapping tree.Mapping, relPath tree.RelPath, extractionRoot string) (Err error) {
	node, ok := mapping[relPath]
	if !ok {
		return dirpatcherr.MissingEntry(string(relPath))
	}

	target, err := securejoin.SecureJoin(extractionRoot, string(relPath))
	if err != nil {
		return dirpatcherr.IoError(string(relPath), err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return dirpatcherr.IoError(target, err)
	}

	switch {
	case node.Dir != nil:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return dirpatcherr.IoError(target, err)
		}
		return applyMetadata(target, node.Dir.Meta, true)
	case node.File.IsLink:
		if err := os.Symlink(node.File.LinkTarget, target); err != nil && !os.IsExist(err) {
			return dirpatcherr.IoError(target, err)
		}
		return nil
	default:
		zf := z.byPath[relPath]
		if zf == nil {
			return dirpatcherr.MissingEntry(string(relPath))
		}
		rc, err := zf.Open()
		if err != nil {
			return dirpatcherr.IoError(string(relPath), err)
		}
		defer funchelpers.VerifyClose(&Err, rc)

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return dirpatcherr.IoError(target, err)
		}
		defer funchelpers.VerifyClose(&Err, out)

		if _, err := sysutil.Copy(out, rc); err != nil {
			return dirpatcherr.IoError(target, err)
		}
		return applyMetadata(target, node.File.Meta, false)
	}
}

// CreateFrom walks baseDir and writes each entry at its relative path into
// a fresh zip archive at z.path. Directory metadata is not recorded (spec
// §4.1: "directory metadata is not recorded in zip mode").
func (z *Zip) CreateFrom(baseDir string) error {
	if _, err := os.Lstat(z.path); err == nil {
		return dirpatcherr.AlreadyExists(z.path)
	}

	out, err := os.Create(z.path)
	if err != nil {
		return dirpatcherr.IoError(z.path, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	registerZipCompressor(zw)

	var walk func(full, rel string) error
	walk = func(full, rel string) error {
		fi, err := os.Lstat(full)
		if err != nil {
			return dirpatcherr.IoError(full, err)
		}

		switch {
		case fi.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(full)
			if err != nil {
				return dirpatcherr.IoError(full, err)
			}
			hdr, err := zip.FileInfoHeader(fi)
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel)
			hdr.Method = zip.Store
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}
			_, err = w.Write([]byte(target))
			return err
		case fi.IsDir():
			children, err := os.ReadDir(full)
			if err != nil {
				return dirpatcherr.IoError(full, err)
			}
			sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })
			for _, child := range children {
				if err := walk(filepath.Join(full, child.Name()), filepath.Join(rel, child.Name())); err != nil {
					return err
				}
			}
			return nil
		default:
			hdr, err := zip.FileInfoHeader(fi)
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel)
			hdr.Method = zip.Deflate
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}
			f, err := os.Open(full)
			if err != nil {
				return dirpatcherr.IoError(full, err)
			}
			defer f.Close()
			if _, err := sysutil.Copy(w, f); err != nil {
				return dirpatcherr.IoError(full, err)
			}
			return nil
		}
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return dirpatcherr.IoError(baseDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if err := walk(filepath.Join(baseDir, entry.Name()), entry.Name()); err != nil {
			return fmt.Errorf("add %s: %w", entry.Name(), err)
		}
	}

	if err := zw.Close(); err != nil {
		return dirpatcherr.IoError(z.path, err)
	}
	return nil
}

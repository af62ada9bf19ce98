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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	"golang.org/x/sys/unix"

	"github.com/cyphar/dirpatch/internal/funchelpers"
	"github.com/cyphar/dirpatch/internal/idtools"
	"github.com/cyphar/dirpatch/internal/sysutil"
	"github.com/cyphar/dirpatch/pkg/dirpatcherr"
	"github.com/cyphar/dirpatch/pkg/tree"
)

// FilesystemCanOpen reports whether path is a live directory.
func FilesystemCanOpen(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.IsDir(), nil
}

// Filesystem is the Adapter backed by a live directory tree. Unlike Tar and
// Zip, it carries no archive handle to serialize; concurrent Expand calls
// only need to tolerate racing mkdir on shared ancestor directories, which
// os.MkdirAll already does (spec §4.1 Concurrency).
type Filesystem struct {
	root string

	once    sync.Once
	onceErr error
	mapping tree.Mapping
}

// OpenFilesystem opens root as a Filesystem adapter. No I/O beyond an
// Lstat happens until Enumerate is called.
func OpenFilesystem(root string) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, dirpatcherr.IoError(root, err)
	}
	return &Filesystem{root: abs}, nil
}

func (f *Filesystem) Close() error { return nil }

func (f *Filesystem) Enumerate() (tree.Mapping, error) {
	f.once.Do(func() {
		f.mapping, f.onceErr = f.build()
	})
	return f.mapping, f.onceErr
}

func (f *Filesystem) build() (tree.Mapping, error) {
	mapping := tree.Mapping{}

	var walk func(full string, rel tree.RelPath) error
	walk = func(full string, rel tree.RelPath) error {
		fi, err := os.Lstat(full)
		if err != nil {
			return dirpatcherr.IoError(full, err)
		}
		meta := metadataFromInfo(fi)

		if fi.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(full)
			if err != nil {
				return dirpatcherr.IoError(full, err)
			}
			name := filepath.Base(full)
			if rel == tree.RootPath {
				name = filepath.Base(f.root)
			}
			file := tree.NewSymlink(name, target, meta, full)
			mapping[rel] = tree.Node{File: &file}
			return nil
		}

		if fi.IsDir() {
			entries, err := os.ReadDir(full)
			if err != nil {
				return dirpatcherr.IoError(full, err)
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

			name := filepath.Base(full)
			if rel == tree.RootPath {
				name = filepath.Base(f.root)
			}
			dir := &tree.Directory{Name: name, Meta: meta, Ref: full}
			mapping[rel] = tree.Node{Dir: dir}

			for _, entry := range entries {
				childFull := filepath.Join(full, entry.Name())
				childRel := tree.RelPath(entry.Name())
				if rel != tree.RootPath {
					childRel = tree.RelPath(string(rel) + string(filepath.Separator) + entry.Name())
				}
				dir.Children = append(dir.Children, childRel)
				if err := walk(childFull, childRel); err != nil {
					return err
				}
			}
			return nil
		}

		name := filepath.Base(full)
		file := &tree.File{Name: name, Meta: meta, Ref: full}
		mapping[rel] = tree.Node{File: file}
		return nil
	}

	if err := walk(f.root, tree.RootPath); err != nil {
		return nil, err
	}
	return mapping, nil
}

func metadataFromInfo(fi os.FileInfo) tree.Metadata {
	perm := fi.Mode().Perm()
	meta := tree.Metadata{Permissions: &perm}
	if st, ok := fi.Sys().(*unix.Stat_t); ok {
		uid, gid := int(st.Uid), int(st.Gid)
		meta.UID, meta.GID = &uid, &gid
		meta.OwnerName = idtools.LookupOwnerName(uid)
		meta.GroupName = idtools.LookupGroupName(gid)
	}
	return meta
}

func (f *Filesystem) Expand(relPath tree.RelPath, extractionRoot string) error {
	mapping, err := f.Enumerate()
	if err != nil {
		return err
	}

	if relPath == tree.RootPath {
		for rel := range mapping {
			if rel == tree.RootPath {
				continue
			}
			if err := f.expandOne(mapping, rel, extractionRoot); err != nil {
				return err
			}
		}
		return nil
	}
	return f.expandOne(mapping, relPath, extractionRoot)
}

func (f *Filesystem) expandOne(mapping tree.Mapping, relPath tree.RelPath, extractionRoot string) error {
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
		src, ok := node.File.Ref.(string)
		if !ok {
			return fmt.Errorf("expand %s: filesystem entry missing backing path", relPath)
		}
		if err := copyFileContents(src, target); err != nil {
			return err
		}
		return applyMetadata(target, node.File.Meta, false)
	}
}

func copyFileContents(src, dst string) (Err error) {
	in, err := os.Open(src)
	if err != nil {
		return dirpatcherr.IoError(src, err)
	}
	defer funchelpers.VerifyClose(&Err, in)

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return dirpatcherr.IoError(dst, err)
	}
	defer funchelpers.VerifyClose(&Err, out)

	if _, err := sysutil.Copy(out, in); err != nil {
		return dirpatcherr.IoError(dst, err)
	}
	return nil
}

// applyMetadata chmods and (if owned) lchowns path per meta. isDir affects
// nothing here directly, but callers pass it through for symmetry with the
// apply engine's equivalent step.
func applyMetadata(path string, meta tree.Metadata, _ bool) error {
	if meta.Permissions != nil {
		if err := os.Chmod(path, *meta.Permissions); err != nil {
			return dirpatcherr.IoError(path, err)
		}
	}
	if meta.UID != nil && meta.GID != nil {
		if err := os.Lchown(path, *meta.UID, *meta.GID); err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return dirpatcherr.IoError(path, err)
		}
	}
	return nil
}

// CreateFrom recursively copies baseDir into f.root, preserving symlinks.
// Directories are created with the source's permission bits (subject to the
// umask); regular files are written with mode 0644, and ownership is not
// copied. f.root must not already exist.
func (f *Filesystem) CreateFrom(baseDir string) error {
	if _, err := os.Lstat(f.root); err == nil {
		return dirpatcherr.AlreadyExists(f.root)
	}

	return filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(f.root, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return dirpatcherr.IoError(path, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return dirpatcherr.IoError(target, err)
			}
			if err := os.Symlink(linkTarget, target); err != nil {
				return dirpatcherr.IoError(target, err)
			}
			return nil
		case info.IsDir():
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return dirpatcherr.IoError(target, err)
			}
			return nil
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return dirpatcherr.IoError(target, err)
			}
			return copyFileContents(path, target)
		}
	})
}

var _ io.Closer = (*Filesystem)(nil)

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

// Package tree is the uniform in-memory representation of a snapshot: a
// rooted tree of directory listings and file entries (regular files and
// symlinks), plus a flat relative-path index used by the diff and apply
// engines. Adapter-specific details (tar headers, zip records, absolute
// filesystem paths) never leak past the BackingRef field.
package tree

import "os"

// RelPath is a path relative to a snapshot's root, using native separators
// and no trailing separator. The root itself is represented by RootPath,
// not the empty string, so that map lookups can distinguish "root" from
// "unset".
type RelPath string

// RootPath is the distinguished key for the snapshot root in a Mapping. It
// is deliberately not a valid relative path ("." never names a real entry,
// and NormalizeMemberName maps "." to RootPath) so it can never collide with
// a real entry.
const RootPath RelPath = "."

// Metadata is the semantic subset of POSIX file metadata this model cares
// about. Permissions/UID/GID are pointers so that "unknown" (e.g. a zip
// entry recording no owner) is distinguishable from "root-owned".
type Metadata struct {
	Permissions *os.FileMode
	UID         *int
	GID         *int
	OwnerName   string
	GroupName   string
}

// BackingRef is opaque to callers: adapters stash whatever they need to
// re-open or re-materialize the entry later (an absolute filesystem path, a
// *tar.Header, or a *zip.File).
type BackingRef any

// Directory is a non-leaf node: a listing of child directories and files.
type Directory struct {
	Name     string
	Meta     Metadata
	Children []RelPath // child relative paths, in enumeration order
	Ref      BackingRef
}

// File is a leaf node: either a regular file or a symlink. IsLink and a
// non-empty LinkTarget are equivalent by construction (see NewSymlink).
type File struct {
	Name       string
	Meta       Metadata
	IsLink     bool
	LinkTarget string
	Ref        BackingRef
}

// NewSymlink builds a File entry representing a symlink. Symlinks are
// always leaves, even when their target is a directory: the filesystem
// adapter must never recurse through one, to avoid infinite walks and
// duplicate entries (spec §9, "Symlink to directory").
func NewSymlink(name, target string, meta Metadata, ref BackingRef) File {
	return File{Name: name, Meta: meta, IsLink: true, LinkTarget: target, Ref: ref}
}

// Node is either a *Directory or a *File. It exists purely so Mapping can
// hold both kinds under one type without an interface method set that
// either side would have to stub out.
type Node struct {
	Dir  *Directory
	File *File
}

// IsDir reports whether this node is a directory listing.
func (n Node) IsDir() bool { return n.Dir != nil }

// Name returns the node's own (non-path) name.
func (n Node) Name() string {
	if n.Dir != nil {
		return n.Dir.Name
	}
	return n.File.Name
}

// Meta returns the node's metadata record.
func (n Node) Meta() Metadata {
	if n.Dir != nil {
		return n.Dir.Meta
	}
	return n.File.Meta
}

// Mapping is the flat relative-path index alongside the tree: every
// non-root node's parent path is guaranteed present (directories implied
// but not recorded by the backing archive are synthesized with a zero
// Metadata), and every relative path appears exactly once.
type Mapping map[RelPath]Node

// Paths returns the mapping's keys, excluding RootPath, in no particular
// order. Callers that need a stable order (e.g. the apply engine's
// removal set) must sort the result themselves.
func (m Mapping) Paths() []RelPath {
	paths := make([]RelPath, 0, len(m))
	for p := range m {
		if p == RootPath {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

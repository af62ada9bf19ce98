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

// Package archive provides the three concrete snapshot providers --
// filesystem, tar.gz, and zip -- behind one Adapter contract (spec §4.1).
// Adapters are registered explicitly at startup in a fixed probe order
// (filesystem, tar, zip), rather than discovered via runtime subclassing,
// per spec §9 "Adapter polymorphism".
package archive

import (
	"github.com/cyphar/dirpatch/pkg/dirpatcherr"
	"github.com/cyphar/dirpatch/pkg/tree"
)

// Adapter presents one snapshot (a filesystem directory, a tar.gz archive,
// or a zip archive) as a tree.Mapping, and can materialize individual
// entries to disk. Enumerate is idempotent, cached, and safe to call from
// multiple goroutines; Expand may be called concurrently from many
// goroutines once Enumerate has populated the cache.
type Adapter interface {
	// Enumerate builds (or returns the cached) tree and flat mapping for
	// this snapshot. The first call does the I/O; later calls are
	// lock-free reads of the cached result.
	Enumerate() (tree.Mapping, error)

	// Expand materializes the entry at relPath under extractionRoot,
	// preserving directory structure. relPath == tree.RootPath expands
	// the whole snapshot recursively. Returns a dirpatcherr "missing
	// entry" error if relPath isn't in the mapping.
	Expand(relPath tree.RelPath, extractionRoot string) error

	// Close releases any handle this adapter holds open (archive file
	// descriptors). Expand and Enumerate must not be called afterwards.
	Close() error
}

// WriteAdapter is implemented by adapters that can also be used to produce
// a new snapshot: Tar and Zip, and also Filesystem, whose CreateFrom is a
// plain recursive copy.
type WriteAdapter interface {
	Adapter

	// CreateFrom ingests baseDir into the backing store: for Tar, each
	// immediate child of baseDir becomes a top-level archive member
	// named after its basename; for Zip, the whole tree is walked and
	// written at its relative path (spec §4.1).
	CreateFrom(baseDir string) error
}

// Probe is a registered adapter kind: CanOpen decides whether Open should
// be tried, in the fixed order given by Probes.
type Probe struct {
	Name    string
	CanOpen func(path string) (bool, error)
	Open    func(path string) (Adapter, error)
}

// Probes is the fixed, explicit probe order: filesystem, then tar, then
// zip. First match wins; no match is a dirpatcherr.UnsupportedArchive.
var Probes = []Probe{
	{Name: "filesystem", CanOpen: FilesystemCanOpen, Open: func(path string) (Adapter, error) { return OpenFilesystem(path) }},
	{Name: "tar", CanOpen: TarCanOpen, Open: func(path string) (Adapter, error) { return OpenTar(path) }},
	{Name: "zip", CanOpen: ZipCanOpen, Open: func(path string) (Adapter, error) { return OpenZip(path) }},
}

// Open probes path against Probes in order and opens the first adapter
// that claims it.
func Open(path string) (Adapter, error) {
	for _, p := range Probes {
		ok, err := p.CanOpen(path)
		if err != nil {
			return nil, err
		}
		if ok {
			return p.Open(path)
		}
	}
	return nil, dirpatcherr.UnsupportedArchive(path)
}

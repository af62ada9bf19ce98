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

// Package diffengine walks a new snapshot against an optional old snapshot,
// expands each entry into per-run staging directories, invokes the xdelta3
// codec per regular file, and seals the result into a patch bundle (spec
// §4.4).
package diffengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/cyphar/dirpatch/internal/metacopy"
	"github.com/cyphar/dirpatch/internal/runner"
	"github.com/cyphar/dirpatch/pkg/archive"
	"github.com/cyphar/dirpatch/pkg/bundle"
	"github.com/cyphar/dirpatch/pkg/dirpatcherr"
	"github.com/cyphar/dirpatch/pkg/tree"
	"github.com/cyphar/dirpatch/pkg/xdelta"
)

// Options configures a single Diff invocation and is passed by value. The
// zero value is sane apart from NewPath/BundlePath, which are required;
// OldPath may be left empty (see below).
type Options struct {
	// OldPath is the old snapshot (filesystem directory, tar.gz, or zip).
	// May be empty, meaning "no old snapshot" (spec §8 "Empty-source encode").
	OldPath string
	// NewPath is the new snapshot.
	NewPath string
	// BundlePath is where the resulting patch bundle (gzip tar) is written.
	// Must not already exist.
	BundlePath string
	// MetadataPath, if set, is copied verbatim into the bundle as `.info`.
	MetadataPath string
	// StagingRoot is the parent directory staging subdirectories are
	// created under. Empty means os.TempDir().
	StagingRoot string
	// Codec overrides the xdelta3 binary invoked; the zero value resolves
	// xdelta.DefaultBinary.
	Codec xdelta.Codec
}

// Diff runs the full diff procedure described in spec §4.4 and leaves a
// sealed bundle at opts.BundlePath.
func Diff(ctx context.Context, opts Options) error {
	stagingRoot, err := os.MkdirTemp(opts.StagingRoot, "dirpatch-diff-")
	if err != nil {
		return dirpatcherr.IoError(opts.StagingRoot, err)
	}
	defer func() {
		if err := os.RemoveAll(stagingRoot); err != nil {
			log.Warnf("diff: cleanup staging root %s: %v", stagingRoot, err)
		}
	}()

	targetDir := filepath.Join(stagingRoot, "target")
	oldSrcDir := filepath.Join(stagingRoot, "old_src")
	newSrcDir := filepath.Join(stagingRoot, "new_src")
	xdeltaDir := filepath.Join(targetDir, "xdelta")
	for _, d := range []string{targetDir, oldSrcDir, newSrcDir, xdeltaDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return dirpatcherr.IoError(d, err)
		}
	}

	newAdapter, err := archive.Open(opts.NewPath)
	if err != nil {
		return fmt.Errorf("open new snapshot %s: %w", opts.NewPath, err)
	}
	defer newAdapter.Close()

	var oldAdapter archive.Adapter
	var oldMapping tree.Mapping
	if opts.OldPath != "" {
		oldAdapter, err = archive.Open(opts.OldPath)
		if err != nil {
			return fmt.Errorf("open old snapshot %s: %w", opts.OldPath, err)
		}
		defer oldAdapter.Close()
		oldMapping, err = oldAdapter.Enumerate()
		if err != nil {
			return fmt.Errorf("enumerate old snapshot: %w", err)
		}
	}

	newMapping, err := newAdapter.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerate new snapshot: %w", err)
	}

	codec := opts.Codec
	run := runner.New(ctx)
	for _, relPath := range newMapping.Paths() {
		relPath := relPath
		run.Submit(func() error {
			// Use the caller's ctx, not run.Context(): the errgroup-derived
			// context cancels as soon as any sibling task fails, which would
			// kill unrelated in-flight xdelta3 subprocesses (spec §5: no
			// task-level cancellation, join_all drains every task).
			return diffOne(ctx, codec, newAdapter, newMapping, oldAdapter, oldMapping, relPath, oldSrcDir, newSrcDir, xdeltaDir)
		})
	}

	elapsed, err := run.Join()
	log.WithField("files", len(newMapping.Paths())).Debugf("diff: tasks settled in %s", elapsed)
	if err != nil {
		return fmt.Errorf("diff task failed: %w", err)
	}

	if err := os.RemoveAll(oldSrcDir); err != nil {
		log.Warnf("diff: cleanup %s: %v", oldSrcDir, err)
	}
	if err := os.RemoveAll(newSrcDir); err != nil {
		log.Warnf("diff: cleanup %s: %v", newSrcDir, err)
	}

	if opts.MetadataPath != "" {
		if err := bundle.WriteMetadata(targetDir, opts.MetadataPath); err != nil {
			return err
		}
	}

	if err := bundle.Seal(targetDir, opts.BundlePath); err != nil {
		return err
	}

	if err := os.RemoveAll(targetDir); err != nil {
		log.Warnf("diff: cleanup %s: %v", targetDir, err)
	}
	return nil
}

// diffOne handles one new-snapshot entry: step 3 of spec §4.4.
func diffOne(ctx context.Context, codec xdelta.Codec, newAdapter archive.Adapter, newMapping tree.Mapping, oldAdapter archive.Adapter, oldMapping tree.Mapping, relPath tree.RelPath, oldSrcDir, newSrcDir, xdeltaDir string) error {
	log.WithField("path", string(relPath)).Debug("diff: processing entry")

	if err := newAdapter.Expand(relPath, newSrcDir); err != nil {
		return fmt.Errorf("expand new entry %s: %w", relPath, err)
	}
	newPath := filepath.Join(newSrcDir, string(relPath))

	var oldPath string
	if oldAdapter != nil {
		if _, ok := oldMapping[relPath]; ok {
			if err := oldAdapter.Expand(relPath, oldSrcDir); err != nil {
				return fmt.Errorf("expand old entry %s: %w", relPath, err)
			}
			oldPath = filepath.Join(oldSrcDir, string(relPath))
		}
	}

	targetPath := filepath.Join(xdeltaDir, string(relPath))
	node := newMapping[relPath]

	switch {
	case node.File != nil && node.File.IsLink:
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return dirpatcherr.IoError(targetPath, err)
		}
		linkTarget, err := os.Readlink(newPath)
		if err != nil {
			return dirpatcherr.IoError(newPath, err)
		}
		if err := os.Symlink(linkTarget, targetPath); err != nil && !os.IsExist(err) {
			return dirpatcherr.IoError(targetPath, err)
		}
	case node.Dir != nil:
		if err := os.MkdirAll(targetPath, 0o755); err != nil {
			return dirpatcherr.IoError(targetPath, err)
		}
		if err := metacopy.FromPath(newPath, targetPath); err != nil {
			return err
		}
	default:
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return dirpatcherr.IoError(targetPath, err)
		}
		encodeSource := ""
		if oldPath != "" {
			if fi, err := os.Lstat(oldPath); err == nil && fi.Mode().IsRegular() {
				encodeSource = oldPath
			}
		}
		if err := codec.Encode(ctx, encodeSource, newPath, targetPath); err != nil {
			log.Warnf("diff: xdelta3 encode failed for %s: %v", relPath, err)
			return fmt.Errorf("encode %s: %w", relPath, err)
		}
		if err := metacopy.FromPath(newPath, targetPath); err != nil {
			return err
		}
	}

	if oldPath != "" {
		if err := os.RemoveAll(oldPath); err != nil {
			log.Warnf("diff: remove staged old %s: %v", oldPath, err)
		}
	}
	if err := os.RemoveAll(newPath); err != nil {
		log.Warnf("diff: remove staged new %s: %v", newPath, err)
	}
	return nil
}

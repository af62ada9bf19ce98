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

// Package applyengine reconstructs a target directory from an old snapshot
// plus a patch bundle: it infers the removal set implicitly (anything in
// the old snapshot absent from the bundle's xdelta/ tree), schedules
// removals and per-file decode tasks on the shared runner, and restores
// symlinks/permissions/ownership from the bundle entries (spec §4.5).
package applyengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/moby/sys/userns"

	"github.com/cyphar/dirpatch/internal/metacopy"
	"github.com/cyphar/dirpatch/internal/runner"
	"github.com/cyphar/dirpatch/pkg/archive"
	"github.com/cyphar/dirpatch/pkg/dirpatcherr"
	"github.com/cyphar/dirpatch/pkg/tree"
	"github.com/cyphar/dirpatch/pkg/xdelta"
)

// Options configures a single Apply invocation.
type Options struct {
	// OldPath is the old snapshot the bundle was diffed against.
	OldPath string
	// BundlePath is the patch bundle produced by diffengine.Diff.
	BundlePath string
	// TargetDir is where the reconstructed tree is written. Empty means
	// apply in place onto OldPath (spec §6 "if TARGET is omitted, apply in
	// place to OLD").
	TargetDir string
	// SubPath, if set, restricts application to xdelta/<SubPath> instead
	// of the whole xdelta/ tree.
	SubPath string
	// StagingRoot is the parent directory the staging subdirectory is
	// created under. Empty means os.TempDir().
	StagingRoot string
	// IgnoreEUID skips the effective-uid-0 precondition and swallows
	// lchown insufficient-privilege errors during metadata restore,
	// instead of propagating them.
	IgnoreEUID bool
	// Codec overrides the xdelta3 binary invoked; the zero value resolves
	// xdelta.DefaultBinary.
	Codec xdelta.Codec
}

// Apply runs the full apply procedure described in spec §4.5.
func Apply(ctx context.Context, opts Options) error {
	if !opts.IgnoreEUID && !isPrivileged() {
		return dirpatcherr.InsufficientPrivilege("apply", nil)
	}
	if isPrivileged() && userns.RunningInUserNS() {
		log.Warn("apply: running inside a user namespace; uid/gid restoration may silently fail against host ids even though this process looks privileged")
	}

	targetDir := opts.TargetDir
	if targetDir == "" {
		targetDir = opts.OldPath
	}
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		log.Warnf("apply: target directory %s does not exist, creating it", targetDir)
		if err := os.MkdirAll(targetDir, 0o755); err != nil {
			return dirpatcherr.IoError(targetDir, err)
		}
	} else if err != nil {
		return dirpatcherr.IoError(targetDir, err)
	}

	stagingDir, err := os.MkdirTemp(opts.StagingRoot, "dirpatch-apply-")
	if err != nil {
		return dirpatcherr.IoError(opts.StagingRoot, err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			log.Warnf("apply: cleanup staging dir %s: %v", stagingDir, err)
		}
	}()

	oldAdapter, err := archive.Open(opts.OldPath)
	if err != nil {
		return fmt.Errorf("open old snapshot %s: %w", opts.OldPath, err)
	}
	defer oldAdapter.Close()
	oldMapping, err := oldAdapter.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerate old snapshot: %w", err)
	}

	bundleAdapter, err := archive.Open(opts.BundlePath)
	if err != nil {
		return fmt.Errorf("open bundle %s: %w", opts.BundlePath, err)
	}
	defer bundleAdapter.Close()
	bundleMapping, err := bundleAdapter.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerate bundle: %w", err)
	}

	patchRoot := "xdelta"
	if opts.SubPath != "" {
		patchRoot = filepath.Join("xdelta", opts.SubPath)
	}

	var patches []tree.RelPath
	for _, p := range bundleMapping.Paths() {
		if string(p) == patchRoot || strings.HasPrefix(string(p), patchRoot+string(os.PathSeparator)) {
			patches = append(patches, p)
		}
	}

	filesInPatch := map[tree.RelPath]struct{}{}
	for _, p := range patches {
		rel := stripPatchRoot(string(p), patchRoot)
		if rel != "" {
			filesInPatch[tree.RelPath(rel)] = struct{}{}
		}
	}

	var removed []tree.RelPath
	for _, o := range oldMapping.Paths() {
		if _, ok := filesInPatch[o]; !ok {
			removed = append(removed, o)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return len(removed[i]) > len(removed[j]) })

	codec := opts.Codec
	run := runner.New(ctx)

	for _, r := range removed {
		r := r
		isDir := oldMapping[r].IsDir()
		run.Submit(func() error {
			return removeOne(targetDir, r, isDir)
		})
	}

	for _, p := range patches {
		p := p
		run.Submit(func() error {
			// Use the caller's ctx, not run.Context(): see the equivalent
			// note in pkg/diffengine.Diff.
			return applyOne(ctx, codec, bundleAdapter, bundleMapping, p, patchRoot, opts.OldPath, targetDir, stagingDir, opts.IgnoreEUID)
		})
	}

	elapsed, err := run.Join()
	log.WithField("removed", len(removed)).WithField("patched", len(patches)).Debugf("apply: tasks settled in %s", elapsed)
	if err != nil {
		return fmt.Errorf("apply task failed: %w", err)
	}
	return nil
}

// stripPatchRoot removes exactly len(patchRoot)+1 leading bytes from p when
// p is a strict descendant of patchRoot, and returns "" when p equals
// patchRoot itself (the xdelta root directory entry, which maps onto
// targetDir directly rather than any file under it). Spec §4.5 step 5.
func stripPatchRoot(p, patchRoot string) string {
	if p == patchRoot {
		return ""
	}
	return p[len(patchRoot)+1:]
}

// removeOne deletes targetDir/r. Directory removal tolerates "not empty"
// failures: the length-descending submission order makes deletion
// best-effort rather than strict (spec §4.5 step 7, §9 "Open question --
// removal with live children").
func removeOne(targetDir string, r tree.RelPath, isDir bool) error {
	full := filepath.Join(targetDir, string(r))
	log.WithField("path", string(r)).Debug("apply: removing stale entry")

	err := os.Remove(full)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	if isDir {
		if entries, rerr := os.ReadDir(full); rerr == nil && len(entries) > 0 {
			return nil
		}
	}
	return dirpatcherr.IoError(full, err)
}

// applyOne handles one patch-tree entry: spec §4.5 step 8.
func applyOne(ctx context.Context, codec xdelta.Codec, bundleAdapter archive.Adapter, bundleMapping tree.Mapping, p tree.RelPath, patchRoot, oldDir, targetDir, stagingDir string, ignoreEUID bool) error {
	log.WithField("path", string(p)).Debug("apply: processing patch entry")

	if err := bundleAdapter.Expand(p, stagingDir); err != nil {
		return fmt.Errorf("expand patch entry %s: %w", p, err)
	}
	patchPath := filepath.Join(stagingDir, string(p))

	rel := stripPatchRoot(string(p), patchRoot)
	oldPath := oldDir
	targetPath := targetDir
	if rel != "" {
		oldPath = filepath.Join(oldDir, rel)
		targetPath = filepath.Join(targetDir, rel)
	}

	node := bundleMapping[p]
	switch {
	case node.File != nil && node.File.IsLink:
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return dirpatcherr.IoError(targetPath, err)
		}
		if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
			return dirpatcherr.IoError(targetPath, err)
		}
		if err := os.Symlink(node.File.LinkTarget, targetPath); err != nil {
			return dirpatcherr.IoError(targetPath, err)
		}
	case node.Dir != nil:
		if err := os.MkdirAll(targetPath, 0o755); err != nil {
			return dirpatcherr.IoError(targetPath, err)
		}
		if err := metacopy.FromMetadata(targetPath, node.Dir.Meta, ignoreEUID); err != nil {
			return err
		}
	default:
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return dirpatcherr.IoError(targetPath, err)
		}
		encodeSource := ""
		if fi, err := os.Lstat(oldPath); err == nil && fi.Mode().IsRegular() {
			encodeSource = oldPath
		}
		if err := codec.Decode(ctx, encodeSource, patchPath, targetPath); err != nil {
			log.Warnf("apply: xdelta3 decode failed for %s: %v", p, err)
			return fmt.Errorf("decode %s: %w", p, err)
		}
		if err := metacopy.FromMetadata(targetPath, node.File.Meta, ignoreEUID); err != nil {
			return err
		}
		if err := os.Remove(patchPath); err != nil {
			log.Warnf("apply: remove staged patch %s: %v", patchPath, err)
		}
	}
	return nil
}

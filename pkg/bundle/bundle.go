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

// Package bundle seals a staged patch tree into the final gzip-compressed
// tar patch bundle (spec §4.6). It is a thin wrapper around the Tar
// adapter's write mode: the bundle format has no concerns of its own beyond
// "xdelta/ plus an optional .info, as a tar.gz".
package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/cyphar/dirpatch/pkg/archive"
)

// Seal writes stagingTarget's immediate children -- the xdelta/ directory
// and, if present, a .info file -- into a fresh gzip tar at bundlePath.
// stagingTarget must contain exactly the layout described in spec §3
// "Bundle layout": it is the caller's job (diffengine) to have placed
// xdelta/ (and optionally .info) there before calling Seal.
func Seal(stagingTarget, bundlePath string) error {
	if _, err := os.Stat(filepath.Join(stagingTarget, "xdelta")); err != nil {
		return fmt.Errorf("bundle: staged tree %s is missing xdelta/: %w", stagingTarget, err)
	}

	tw, err := archive.OpenTar(bundlePath)
	if err != nil {
		return fmt.Errorf("open bundle writer %s: %w", bundlePath, err)
	}
	if err := tw.CreateFrom(stagingTarget); err != nil {
		return fmt.Errorf("package bundle %s: %w", bundlePath, err)
	}

	log.WithField("bundle", bundlePath).Debug("bundle: sealed")
	return nil
}

// WriteMetadata copies metadataPath's bytes verbatim into
// stagingTarget/.info, ready for Seal to pick up as the bundle's top-level
// `.info` member (spec §3 "Bundle layout").
func WriteMetadata(stagingTarget, metadataPath string) error {
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return fmt.Errorf("read metadata %s: %w", metadataPath, err)
	}
	if err := os.WriteFile(filepath.Join(stagingTarget, ".info"), data, 0o644); err != nil {
		return fmt.Errorf("stage metadata: %w", err)
	}
	return nil
}

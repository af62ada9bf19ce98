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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	units "github.com/docker/go-units"
	"github.com/urfave/cli"

	"github.com/cyphar/dirpatch/pkg/diffengine"
	"github.com/cyphar/dirpatch/pkg/xdelta"
)

// noOldSnapshot is the CLI sentinel for "empty-source encode" (spec §8):
// positional OLD arguments can't be an empty string on most shells, so a
// bare "-" means "no old snapshot" instead.
const noOldSnapshot = "-"

var diffCommand = cli.Command{
	Name:  "diff",
	Usage: "diff two snapshots into a patch bundle",
	ArgsUsage: `[--metadata PATH] OLD NEW BUNDLE

Where "OLD" is the old snapshot (filesystem directory, tar.gz, or zip; "-"
means no old snapshot -- every new-snapshot file is encoded against an empty
source), "NEW" is the new snapshot, and "BUNDLE" is the patch bundle path to
create. BUNDLE must not already exist.`,

	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "metadata",
			Usage: "copy PATH verbatim into the bundle as .info",
		},
		cli.StringFlag{
			Name:  "s, staging-dir",
			Usage: "parent directory for scratch staging trees (default: OS temp dir)",
		},
		cli.StringFlag{
			Name:  "codec",
			Usage: "override the xdelta3 binary path",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "report bundle size and elapsed time after completion",
		},
	},

	Before: func(ctx *cli.Context) error {
		if ctx.NArg() != 3 {
			return fmt.Errorf("invalid number of positional arguments: expected OLD NEW BUNDLE")
		}
		return nil
	},

	Action: diffAction,
}

func diffAction(ctx *cli.Context) error {
	oldPath := ctx.Args().Get(0)
	if oldPath == noOldSnapshot {
		oldPath = ""
	}
	newPath := ctx.Args().Get(1)
	bundlePath := ctx.Args().Get(2)

	opts := diffengine.Options{
		OldPath:      oldPath,
		NewPath:      newPath,
		BundlePath:   bundlePath,
		MetadataPath: ctx.String("metadata"),
		StagingRoot:  ctx.String("staging-dir"),
	}
	if codec := ctx.String("codec"); codec != "" {
		opts.Codec = xdelta.Codec{Binary: codec}
	}

	start := time.Now()
	if err := diffengine.Diff(context.Background(), opts); err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	elapsed := time.Since(start)

	if ctx.Bool("verbose") {
		size := "unknown size"
		if fi, err := os.Stat(bundlePath); err == nil {
			size = units.HumanSize(float64(fi.Size()))
		}
		log.Infof("wrote %s (%s) in %s", bundlePath, size, units.HumanDuration(elapsed))
	}
	return nil
}

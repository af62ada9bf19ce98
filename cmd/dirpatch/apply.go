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
	"time"

	"github.com/apex/log"
	units "github.com/docker/go-units"
	"github.com/urfave/cli"

	"github.com/cyphar/dirpatch/pkg/applyengine"
	"github.com/cyphar/dirpatch/pkg/xdelta"
)

var applyCommand = cli.Command{
	Name:  "apply",
	Usage: "apply a patch bundle onto a target directory",
	ArgsUsage: `OLD BUNDLE [TARGET] [-d SUBPATH] [--ignore-euid]

Where "OLD" is the old snapshot the bundle was diffed against, "BUNDLE" is
the patch bundle to apply, and "TARGET" is the destination directory. If
TARGET is omitted, the bundle is applied in place onto OLD.`,

	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "d, sub-path",
			Usage: "restrict application to this sub-path inside xdelta/",
		},
		cli.BoolFlag{
			Name:  "ignore-euid",
			Usage: "skip the effective-uid-0 precondition and tolerate lchown denial",
		},
		cli.StringFlag{
			Name:  "s, staging-dir",
			Usage: "parent directory for the scratch staging tree (default: OS temp dir)",
		},
		cli.StringFlag{
			Name:  "codec",
			Usage: "override the xdelta3 binary path",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "report elapsed time after completion",
		},
	},

	Before: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 || ctx.NArg() > 3 {
			return fmt.Errorf("invalid number of positional arguments: expected OLD BUNDLE [TARGET]")
		}
		return nil
	},

	Action: applyAction,
}

func applyAction(ctx *cli.Context) error {
	oldPath := ctx.Args().Get(0)
	bundlePath := ctx.Args().Get(1)
	targetDir := ctx.Args().Get(2) // empty means "apply in place to OLD"

	opts := applyengine.Options{
		OldPath:     oldPath,
		BundlePath:  bundlePath,
		TargetDir:   targetDir,
		SubPath:     ctx.String("sub-path"),
		StagingRoot: ctx.String("staging-dir"),
		IgnoreEUID:  ctx.Bool("ignore-euid"),
	}
	if codec := ctx.String("codec"); codec != "" {
		opts.Codec = xdelta.Codec{Binary: codec}
	}

	start := time.Now()
	if err := applyengine.Apply(context.Background(), opts); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	if ctx.Bool("verbose") {
		log.Infof("applied %s to %s in %s", bundlePath, oldPath, units.HumanDuration(time.Since(start)))
	}
	return nil
}

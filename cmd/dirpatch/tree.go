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
	"bufio"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/cyphar/dirpatch/pkg/archive"
	"github.com/cyphar/dirpatch/pkg/tree"
)

// treeCommand is not part of the core diff/apply surface (spec §6); it's a
// diagnostic add-on explicitly permitted by §4.2's "used only for
// diagnostics" framing, for inspecting a snapshot or an unpacked bundle by
// eye without writing a one-off script.
var treeCommand = cli.Command{
	Name:      "tree",
	Usage:     "print the deterministic tree rendering of a snapshot or bundle",
	ArgsUsage: `PATH`,

	Before: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("invalid number of positional arguments: expected PATH")
		}
		return nil
	},

	Action: treeAction,
}

func treeAction(ctx *cli.Context) error {
	path := ctx.Args().Get(0)

	adapter, err := archive.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer adapter.Close()

	mapping, err := adapter.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", path, err)
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	return tree.Render(w, mapping, tree.RootPath)
}

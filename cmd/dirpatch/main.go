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
	"os"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/urfave/cli"
)

// version can be set at build time with -ldflags "-X main.version=...", the
// same way umoci's binary embeds its own version string.
var version = ""

const usage = `dirpatch diffs and applies directory-level binary patches`

func main() {
	log.SetHandler(logcli.Default)

	app := cli.NewApp()
	app.Name = "dirpatch"
	app.Usage = usage
	app.Authors = []cli.Author{
		{
			Name:  "Aleksa Sarai",
			Email: "cyphar@cyphar.com",
		},
	}

	v := "unknown"
	if version != "" {
		v = version
	}
	app.Version = v

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug",
			Usage: "set log level to debug",
		},
	}

	app.Before = func(ctx *cli.Context) error {
		if ctx.GlobalBool("debug") {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	}

	app.Commands = []cli.Command{
		diffCommand,
		applyCommand,
		treeCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err.Error())
	}
}

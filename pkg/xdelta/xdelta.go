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

// Package xdelta wraps the external xdelta3 binary (spec §6). Encoding and
// decoding are both plain subprocess invocations against real file paths --
// xdelta3 doesn't speak stdin/stdout streaming for this use case, which is
// why the diff and apply engines stage files on disk before calling this
// package.
package xdelta

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/cyphar/dirpatch/pkg/dirpatcherr"
)

// DefaultBinary is the codec path resolved relative to the current working
// directory, per spec §6.
const DefaultBinary = "lib/xdelta3"

// Codec invokes a single resolved xdelta3 binary. The zero value uses
// DefaultBinary.
type Codec struct {
	// Binary overrides DefaultBinary, primarily for tests.
	Binary string
}

func (c Codec) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return DefaultBinary
}

// Encode runs `xdelta3 -f -e [-s oldFile] newFile patchFile`. oldFile may
// be empty, meaning the patch is encoded against an empty source (spec
// §4.4(f)).
func (c Codec) Encode(ctx context.Context, oldFile, newFile, patchFile string) error {
	args := []string{"-f", "-e"}
	if oldFile != "" {
		args = append(args, "-s", oldFile)
	}
	args = append(args, newFile, patchFile)
	return c.run(ctx, args)
}

// Decode runs `xdelta3 -f -d [-s oldFile] patchFile newFile`. oldFile may
// be empty, meaning the patch reconstructs the file from nothing (spec
// §4.5(8)).
func (c Codec) Decode(ctx context.Context, oldFile, patchFile, newFile string) error {
	args := []string{"-f", "-d"}
	if oldFile != "" {
		args = append(args, "-s", oldFile)
	}
	args = append(args, patchFile, newFile)
	return c.run(ctx, args)
}

// run executes the codec with stderr merged into stdout (spec §6). A
// non-zero exit is fatal: it's captured and returned as a
// dirpatcherr.CodecFailureError carrying the return code and combined
// output, after being logged by the caller (the engines log before
// propagating, matching spec §7's "codec is the only piece that prints
// diagnostics before propagating").
func (c Codec) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return fmt.Errorf("start xdelta3: %w", err)
		}
		return dirpatcherr.CodecFailure(append([]string{c.binary()}, args...), exitCode, out.String())
	}
	return nil
}

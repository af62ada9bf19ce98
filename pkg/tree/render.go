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

package tree

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// permString renders an os.FileMode as a nine-character rwxrwxrwx mask,
// or nine blanks if perm is nil (unknown permissions).
func permString(perm *os.FileMode) string {
	if perm == nil {
		return "         "
	}
	const chars = "rwxrwxrwx"
	mode := *perm
	var sb strings.Builder
	for i := 0; i < 9; i++ {
		bit := os.FileMode(1) << uint(8-i)
		if mode&bit != 0 {
			sb.WriteByte(chars[i])
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// Render walks the tree rooted at root depth-first in a deterministic
// (lexical) child order and writes one indented line per node: name, the
// nine-character permission mask, and an arrow to the link target for
// symlinks. It is used only for diagnostics (spec §4.2) and is never
// consulted by the diff or apply engines.
func Render(w interface{ WriteString(string) (int, error) }, m Mapping, root RelPath) error {
	return renderNode(w, m, root, 0)
}

func renderNode(w interface{ WriteString(string) (int, error) }, m Mapping, path RelPath, depth int) error {
	node, ok := m[path]
	if !ok {
		return fmt.Errorf("render: %s not in mapping", path)
	}

	name := node.Name()
	if path == RootPath {
		name = "."
	}
	line := fmt.Sprintf("%s%s [%s]", strings.Repeat("  ", depth), name, permString(node.Meta().Permissions))
	if node.File != nil && node.File.IsLink {
		line += " -> " + node.File.LinkTarget
	}
	if _, err := w.WriteString(line + "\n"); err != nil {
		return err
	}

	if node.Dir == nil {
		return nil
	}
	children := append([]RelPath(nil), node.Dir.Children...)
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	for _, child := range children {
		if err := renderNode(w, m, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package corpus

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// maxOutlineItems bounds the declarations listed per file.
const maxOutlineItems = 12

func grammarFor(language string) *sitter.Language {
	switch language {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	case "java":
		return java.GetLanguage()
	}
	return nil
}

// Outline returns the names of top-level declarations in src, in source
// order. Unsupported languages and unparsable input yield nil.
func Outline(ctx context.Context, language string, src []byte) []string {
	grammar := grammarFor(language)
	if grammar == nil || len(src) == 0 {
		return nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	var names []string
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()) && len(names) < maxOutlineItems; i++ {
		names = appendDeclNames(names, root.NamedChild(i), src)
	}
	if len(names) > maxOutlineItems {
		names = names[:maxOutlineItems]
	}
	return names
}

func appendDeclNames(names []string, n *sitter.Node, src []byte) []string {
	if n == nil {
		return names
	}
	switch n.Type() {
	case "function_declaration", "method_declaration", "function_definition",
		"class_declaration", "class_definition", "interface_declaration",
		"enum_declaration", "type_alias_declaration", "record_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			names = append(names, name.Content(src))
		}
	case "type_declaration":
		// Go groups type specs: type ( A struct{}; B int )
		for j := 0; j < int(n.NamedChildCount()); j++ {
			spec := n.NamedChild(j)
			if name := spec.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(src))
			}
		}
	case "decorated_definition":
		names = appendDeclNames(names, n.ChildByFieldName("definition"), src)
	case "export_statement":
		names = appendDeclNames(names, n.ChildByFieldName("declaration"), src)
	}
	return names
}

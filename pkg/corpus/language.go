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
	"path"
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".c":    "c",
	".h":    "c",
	".cs":   "csharp",
	".rb":   "ruby",
	".php":  "php",
	".rs":   "rust",
	".html": "html",
	".css":  "css",
	".sh":   "bash",
}

// DetectLanguage returns the language for a file path based on its extension.
func DetectLanguage(p string) string {
	return languageByExt[strings.ToLower(filepath.Ext(p))]
}

// matchesAny reports whether rel matches one of the exclude patterns.
//
// A pattern ending in "/**" excludes a directory subtree wherever it occurs.
// A pattern without "/" is matched against every path component, so "*.min.js"
// and "vendor" work at any depth. Anything else is matched against the whole
// relative path with path.Match semantics.
func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if matchGlob(rel, filepath.ToSlash(p)) {
			return true
		}
	}
	return false
}

func matchGlob(rel, pattern string) bool {
	if pattern == "" {
		return false
	}
	parts := strings.Split(rel, "/")

	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		for i := range parts {
			sub := strings.Join(parts[i:], "/")
			if sub == prefix || strings.HasPrefix(sub, prefix+"/") {
				return true
			}
		}
		return false
	}

	if !strings.Contains(pattern, "/") {
		for _, part := range parts {
			if ok, _ := path.Match(pattern, part); ok {
				return true
			}
		}
		return false
	}

	ok, _ := path.Match(strings.TrimPrefix(pattern, "**/"), rel)
	if ok {
		return true
	}
	if strings.HasPrefix(pattern, "**/") {
		for i := range parts {
			if ok, _ := path.Match(pattern[3:], strings.Join(parts[i:], "/")); ok {
				return true
			}
		}
	}
	return false
}

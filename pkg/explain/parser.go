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

package explain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	numberedLine   = regexp.MustCompile(`^\d+[.)]`)
	numberedPrefix = regexp.MustCompile(`^\d+[.)]\s*`)
)

// ParseNumberedList extracts the items of a numbered list from text.
//
// Every line that, once trimmed, starts with digits followed by "." or ")"
// contributes one item with the prefix removed. Items keep line order; the
// stated numbers are not checked. ok is false unless exactly expected items
// were found, in which case items is nil.
//
// Input is assumed to be ASCII: the prefix match only recognizes ASCII
// digits and whitespace, which holds for responses from a Client with
// ASCIIOnly set.
func ParseNumberedList(text string, expected int) (items []string, ok bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !numberedLine.MatchString(line) {
			continue
		}
		items = append(items, numberedPrefix.ReplaceAllString(line, ""))
	}
	if len(items) != expected {
		return nil, false
	}
	if items == nil {
		items = []string{}
	}
	return items, true
}

// ParseBatchResponse returns exactly expected explanations for text. When
// the numbered items do not line up with expected, every slot gets a
// placeholder: a partial match could attach explanations to the wrong files.
func ParseBatchResponse(text string, expected int) []string {
	if expected <= 0 {
		return []string{}
	}
	if items, ok := ParseNumberedList(text, expected); ok {
		return items
	}
	return Placeholders(0, expected)
}

// Placeholder returns the stand-in explanation for the file at 1-based
// position n.
func Placeholder(n int) string {
	return fmt.Sprintf("Code file %d", n)
}

// Placeholders returns count placeholders numbered from offset+1.
func Placeholders(offset, count int) []string {
	if count <= 0 {
		return []string{}
	}
	out := make([]string, count)
	for i := range out {
		out[i] = Placeholder(offset + i + 1)
	}
	return out
}

// IsPlaceholder reports whether s is a placeholder produced by this package.
func IsPlaceholder(s string) bool {
	var n int
	_, err := fmt.Sscanf(s, "Code file %d", &n)
	return err == nil && s == Placeholder(n)
}

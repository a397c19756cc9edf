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
	"strings"

	"github.com/kraklabs/codedoc/pkg/corpus"
)

// BatchingConfig controls how the corpus is split into requests.
type BatchingConfig struct {
	// Batch size is clamp(n/Divisor, MinSize, MaxSize).
	Divisor int `yaml:"divisor" validate:"gte=1"`
	MinSize int `yaml:"min_size" validate:"gte=1"`
	MaxSize int `yaml:"max_size" validate:"gtefield=MinSize"`

	// SnippetChars bounds each file's contents inside the prompt.
	SnippetChars int `yaml:"snippet_chars" validate:"gte=1"`
}

// DefaultBatchingConfig returns the production batching settings.
func DefaultBatchingConfig() BatchingConfig {
	return BatchingConfig{Divisor: 10, MinSize: 2, MaxSize: 4, SnippetChars: 500}
}

// BatchSize returns the number of files per request for a corpus of n files.
func (c BatchingConfig) BatchSize(n int) int {
	div := c.Divisor
	if div < 1 {
		div = 1
	}
	size := n / div
	if size < c.MinSize {
		size = c.MinSize
	}
	if c.MaxSize >= c.MinSize && size > c.MaxSize {
		size = c.MaxSize
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Batch is a contiguous run of corpus entries sent as one request.
type Batch struct {
	Index   int // zero-based batch number
	Offset  int // corpus position of Entries[0]
	Entries []corpus.Entry
}

// Partition splits entries into contiguous batches of at most size entries.
// The last batch may be smaller. An empty corpus yields no batches.
func Partition(entries []corpus.Entry, size int) []Batch {
	if size < 1 {
		size = 1
	}
	batches := make([]Batch, 0, (len(entries)+size-1)/size)
	for off := 0; off < len(entries); off += size {
		end := min(off+size, len(entries))
		batches = append(batches, Batch{
			Index:   len(batches),
			Offset:  off,
			Entries: entries[off:end],
		})
	}
	return batches
}

const (
	promptHeader = "Explain each code snippet in exactly 10 words:\n\n"
	promptFooter = "Provide explanations as a numbered list, each exactly 10 words:"
)

// BuildBatchPrompt renders one prompt listing every entry of the batch with
// its path, language tag and a snippet of at most snippetChars characters.
func BuildBatchPrompt(entries []corpus.Entry, snippetChars int) string {
	var sb strings.Builder
	sb.WriteString(promptHeader)
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. %s (%s):\n```%s\n%s\n```\n\n",
			i+1, e.RelPath, e.Extension, e.Extension, truncateChars(e.Contents, snippetChars))
	}
	sb.WriteString(promptFooter)
	return sb.String()
}

func truncateChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

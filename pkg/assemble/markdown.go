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

package assemble

import (
	"fmt"
	"strings"

	"github.com/kraklabs/codedoc/pkg/corpus"
)

// MaxQuizQuestions bounds the quiz; only the leading explanations are used.
const MaxQuizQuestions = 10

const quizChoices = "A) It processes data  \nB) It handles user input  \nC) It manages state  \nD) It renders UI\n\n"

// warningPrefix marks explanations that carry an error notice instead of a summary.
const warningPrefix = "⚠"

// CodeDocument lists every entry's source under a numbered heading.
func CodeDocument(entries []corpus.Entry) string {
	var sb strings.Builder
	sb.WriteString("# Project Code\n\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "## %d. %s\n", i+1, displayPath(e.RelPath))
		if len(e.Outline) > 0 {
			fmt.Fprintf(&sb, "Declarations: %s\n\n", strings.Join(e.Outline, ", "))
		}
		fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", e.Extension, e.Contents)
	}
	return sb.String()
}

// ExplanationDocument pairs each entry with its explanation. Entries without
// a matching explanation are skipped.
func ExplanationDocument(entries []corpus.Entry, explanations []string) string {
	var sb strings.Builder
	sb.WriteString("# Project Explanations\n\n")
	for i, e := range entries {
		if i >= len(explanations) {
			break
		}
		fmt.Fprintf(&sb, "## %d. %s\n\n%s\n\n", i+1, displayPath(e.RelPath), explanations[i])
	}
	return sb.String()
}

// Quiz builds a discussion quiz from the first MaxQuizQuestions explanations.
// Question numbers follow corpus positions, so skipped explanations leave gaps.
func Quiz(explanations []string) string {
	var sb strings.Builder
	sb.WriteString("# Quick Project Quiz\n\n")
	sb.WriteString("## Based on the code explanations\n\n")

	limit := min(len(explanations), MaxQuizQuestions)
	for i, expl := range explanations[:limit] {
		if expl == "" || strings.HasPrefix(expl, warningPrefix) {
			continue
		}
		fmt.Fprintf(&sb, "### Question %d\n", i+1)
		sb.WriteString("What does this code do?\n\n")
		fmt.Fprintf(&sb, "**Hint:** %s\n\n", expl)
		sb.WriteString(quizChoices)
		sb.WriteString("**Answer:** *Discuss with your team!*\n\n")
	}
	return sb.String()
}

// displayPath normalizes separators so headings read the same on every OS.
func displayPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

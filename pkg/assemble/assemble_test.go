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
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/explain"
)

func sampleEntries() []corpus.Entry {
	return []corpus.Entry{
		{RelPath: "app/main.go", Contents: "package main", Extension: "go", Language: "go", Size: 12, Outline: []string{"main"}},
		{RelPath: `web\index.js`, Contents: "render()", Extension: "js", Language: "javascript", Size: 8},
	}
}

func TestCodeDocument(t *testing.T) {
	got := CodeDocument(sampleEntries())
	want := "# Project Code\n\n" +
		"## 1. app/main.go\nDeclarations: main\n\n```go\npackage main\n```\n\n" +
		"## 2. web/index.js\n```js\nrender()\n```\n\n"
	assert.Equal(t, want, got)
}

func TestExplanationDocument(t *testing.T) {
	got := ExplanationDocument(sampleEntries(), []string{"Starts the program", "Code file 2"})
	want := "# Project Explanations\n\n" +
		"## 1. app/main.go\n\nStarts the program\n\n" +
		"## 2. web/index.js\n\nCode file 2\n\n"
	assert.Equal(t, want, got)
}

func TestQuiz(t *testing.T) {
	t.Run("skips empty and warning explanations", func(t *testing.T) {
		got := Quiz([]string{"Loads config", "", "⚠️ Error: timeout", "Renders page"})

		assert.True(t, strings.HasPrefix(got, "# Quick Project Quiz\n\n## Based on the code explanations\n\n"))
		assert.Contains(t, got, "### Question 1\nWhat does this code do?\n\n**Hint:** Loads config\n\n")
		assert.Contains(t, got, "### Question 4\n")
		assert.NotContains(t, got, "### Question 2")
		assert.NotContains(t, got, "### Question 3")
		assert.Equal(t, 2, strings.Count(got, "**Answer:** *Discuss with your team!*"))
		assert.Contains(t, got, "A) It processes data  \nB) It handles user input  \nC) It manages state  \nD) It renders UI\n\n")
	})

	t.Run("limits to leading explanations", func(t *testing.T) {
		expl := make([]string, 15)
		for i := range expl {
			expl[i] = "Does something"
		}
		got := Quiz(expl)
		assert.Equal(t, MaxQuizQuestions, strings.Count(got, "### Question "))
		assert.NotContains(t, got, "### Question 11")
	})

	t.Run("deterministic", func(t *testing.T) {
		in := []string{"a", "b"}
		assert.Equal(t, Quiz(in), Quiz(in))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "# Quick Project Quiz\n\n## Based on the code explanations\n\n", Quiz(nil))
	})
}

func sampleResult() *explain.Result {
	return &explain.Result{
		RunID:        "01J0000000000000000000TEST",
		Explanations: []string{"Starts the program", "Code file 2"},
		BatchSize:    2,
		Placeholders: 1,
		Attempts:     1,
		Duration:     1500 * time.Millisecond,
		Batches: []explain.BatchReport{
			{Index: 0, Size: 2, Outcome: explain.BatchParsed, Genuine: true, Attempts: 1, Placeholders: 1},
		},
	}
}

func TestBuild(t *testing.T) {
	load := &corpus.LoadResult{Entries: sampleEntries(), SkipReasons: map[string]int{"extension": 3}}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	a := Build(load, sampleResult(), RunInfo{Source: "demo", Models: []string{"m1"}, Now: now})

	m := a.Manifest
	assert.Equal(t, "01J0000000000000000000TEST", m.RunID)
	assert.Equal(t, now, m.CreatedAt)
	assert.Equal(t, int64(1500), m.DurationMS)
	require.Len(t, m.Files, 2)
	assert.False(t, m.Files[0].Placeholder)
	assert.True(t, m.Files[1].Placeholder)
	assert.Equal(t, "web/index.js", m.Files[1].Path)
	assert.Equal(t, 3, m.SkipReasons["extension"])
	assert.Contains(t, a.Explanations, "Starts the program")
}

func TestWriterAndBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	load := &corpus.LoadResult{Entries: sampleEntries()}
	a := Build(load, sampleResult(), RunInfo{Source: "demo"})

	paths, err := NewWriter(nil).Write(dir, a)
	require.NoError(t, err)

	code, err := os.ReadFile(paths.Code)
	require.NoError(t, err)
	assert.Equal(t, a.Code, string(code))

	raw, err := os.ReadFile(paths.Manifest)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, a.Manifest.RunID, m.RunID)
	assert.Len(t, m.Batches, 1)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	var buf bytes.Buffer
	require.NoError(t, Bundle(&buf, dir))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{CodeFile, ExplanationFile, QuizFile, ManifestFile}, names)

	rc, err := zr.File[2].Open()
	require.NoError(t, err)
	quiz, err := io.ReadAll(rc)
	_ = rc.Close()
	require.NoError(t, err)
	assert.Equal(t, a.Quiz, string(quiz))
}

func TestWriter_OverwritesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(nil)
	first := &Artifacts{Code: "old", Manifest: Manifest{RunID: "a"}}
	second := &Artifacts{Code: "new", Manifest: Manifest{RunID: "b"}}

	_, err := w.Write(dir, first)
	require.NoError(t, err)
	paths, err := w.Write(dir, second)
	require.NoError(t, err)

	data, err := os.ReadFile(paths.Code)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestBundle_EmptyDir(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Bundle(&buf, t.TempDir()))
}

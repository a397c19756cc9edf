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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/explain"
)

// Artifact file names inside an output directory.
const (
	CodeFile        = "code_only.md"
	ExplanationFile = "code_with_explanation.md"
	QuizFile        = "quiz.md"
	ManifestFile    = "manifest.json"
)

// Manifest describes one run. It never carries explanation text.
type Manifest struct {
	RunID        string                `json:"run_id"`
	Source       string                `json:"source"`
	CreatedAt    time.Time             `json:"created_at"`
	Models       []string              `json:"models"`
	BatchSize    int                   `json:"batch_size"`
	Placeholders int                   `json:"placeholders"`
	Attempts     int                   `json:"attempts"`
	Canceled     bool                  `json:"canceled,omitempty"`
	DurationMS   int64                 `json:"duration_ms"`
	Files        []ManifestEntry       `json:"files"`
	Batches      []explain.BatchReport `json:"batches"`
	SkipReasons  map[string]int        `json:"skip_reasons,omitempty"`
}

// ManifestEntry is one corpus file as seen by the run.
type ManifestEntry struct {
	Path        string   `json:"path"`
	Language    string   `json:"language,omitempty"`
	Size        int64    `json:"size"`
	Placeholder bool     `json:"placeholder"`
	Outline     []string `json:"outline,omitempty"`
}

// Artifacts holds every rendered output of a run.
type Artifacts struct {
	Code         string
	Explanations string
	Quiz         string
	Manifest     Manifest
}

// RunInfo is the run metadata that is not part of the explain result.
type RunInfo struct {
	Source string
	Models []string
	Now    time.Time
}

// Build renders the artifacts for a finished run.
func Build(load *corpus.LoadResult, res *explain.Result, info RunInfo) *Artifacts {
	entries := load.Entries
	created := info.Now
	if created.IsZero() {
		created = time.Now().UTC()
	}

	files := make([]ManifestEntry, len(entries))
	for i, e := range entries {
		files[i] = ManifestEntry{
			Path:     displayPath(e.RelPath),
			Language: e.Language,
			Size:     e.Size,
			Outline:  e.Outline,
		}
		if i < len(res.Explanations) {
			files[i].Placeholder = explain.IsPlaceholder(res.Explanations[i])
		}
	}

	return &Artifacts{
		Code:         CodeDocument(entries),
		Explanations: ExplanationDocument(entries, res.Explanations),
		Quiz:         Quiz(res.Explanations),
		Manifest: Manifest{
			RunID:        res.RunID,
			Source:       info.Source,
			CreatedAt:    created,
			Models:       info.Models,
			BatchSize:    res.BatchSize,
			Placeholders: res.Placeholders,
			Attempts:     res.Attempts,
			Canceled:     res.Canceled,
			DurationMS:   res.Duration.Milliseconds(),
			Files:        files,
			Batches:      res.Batches,
			SkipReasons:  load.SkipReasons,
		},
	}
}

// Paths lists the files written by Writer.Write.
type Paths struct {
	Dir          string `json:"dir"`
	Code         string `json:"code"`
	Explanations string `json:"explanations"`
	Quiz         string `json:"quiz"`
	Manifest     string `json:"manifest"`
}

// Writer persists artifacts to disk.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a Writer. A nil logger uses slog.Default().
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Write stores the artifacts in dir, creating it if needed. Each file is
// replaced atomically so readers never observe a partial document.
func (w *Writer) Write(dir string, a *Artifacts) (*Paths, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	manifest, err := json.MarshalIndent(a.Manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	paths := &Paths{
		Dir:          dir,
		Code:         filepath.Join(dir, CodeFile),
		Explanations: filepath.Join(dir, ExplanationFile),
		Quiz:         filepath.Join(dir, QuizFile),
		Manifest:     filepath.Join(dir, ManifestFile),
	}
	files := []struct {
		path string
		data []byte
	}{
		{paths.Code, []byte(a.Code)},
		{paths.Explanations, []byte(a.Explanations)},
		{paths.Quiz, []byte(a.Quiz)},
		{paths.Manifest, append(manifest, '\n')},
	}
	for _, f := range files {
		if err := writeFileAtomic(f.path, f.data); err != nil {
			return nil, err
		}
	}

	w.logger.Info("assemble.write.complete",
		"dir", dir,
		"run_id", a.Manifest.RunID,
		"files", len(a.Manifest.Files),
	)
	return paths, nil
}

// writeFileAtomic writes to a temp file beside path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

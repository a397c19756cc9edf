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

// Package pipeline runs one end-to-end documentation job: collect the corpus,
// annotate it batch by batch, render the artifacts and record the run in the
// history store.
//
// The CLI and the HTTP front end both drive a Pipeline; they differ only in
// where the corpus comes from and where the artifacts go.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kraklabs/codedoc/pkg/assemble"
	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/explain"
	"github.com/kraklabs/codedoc/pkg/storage"
)

// Config configures a Pipeline.
type Config struct {
	Corpus    corpus.Options
	Explain   explain.Options
	OutputDir string
}

// Request describes one run. Zero fields fall back to the Config.
type Request struct {
	Source    corpus.Source
	OutputDir string
	MaxFiles  int

	// OnBatch, if set, is called after each batch in addition to the
	// configured hook.
	OnBatch func(explain.BatchReport)
	// OnStart is called once the corpus is loaded, before the first batch.
	OnStart func(files, batches int)
}

// Result summarizes one run.
type Result struct {
	RunID   string             `json:"run_id"`
	Source  string             `json:"source"`
	Files   int                `json:"files"`
	Skipped map[string]int     `json:"skipped,omitempty"`
	Explain *explain.Result    `json:"explain"`
	Paths   *assemble.Paths    `json:"paths"`
	Load    *corpus.LoadResult `json:"-"`
	Timings Timings            `json:"timings"`
}

// Timings breaks a run down by stage.
type Timings struct {
	Load    time.Duration `json:"load_ns"`
	Explain time.Duration `json:"explain_ns"`
	Write   time.Duration `json:"write_ns"`
	Total   time.Duration `json:"total_ns"`
}

// Pipeline wires the corpus loader, the orchestrator, the artifact writer and
// the optional history backend.
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	loader  *corpus.Loader
	client  explain.Completer
	writer  *assemble.Writer
	history storage.Backend
	now     func() time.Time
}

// New creates a Pipeline. history may be nil to skip run recording.
func New(cfg Config, client explain.Completer, history storage.Backend, logger *slog.Logger) (*Pipeline, error) {
	if client == nil {
		return nil, errors.New("pipeline: nil completion client")
	}
	if len(cfg.Explain.Models) == 0 {
		return nil, errors.New("pipeline: model chain is empty")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		loader:  corpus.NewLoader(logger),
		client:  client,
		writer:  assemble.NewWriter(logger),
		history: history,
		now:     time.Now,
	}, nil
}

// Close removes temporary checkouts and extractions.
func (p *Pipeline) Close() error {
	return p.loader.Close()
}

// Run executes the pipeline for req.
//
// A canceled context still yields a Result: unfinished batches carry
// placeholders, the artifacts are written and the run is recorded. The
// context error is returned alongside.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	runID := storage.NewRunID(start)
	log := p.logger.With("run_id", runID)
	log.Info("pipeline.start", "source", req.Source.Value, "type", req.Source.Type)

	opts := p.cfg.Corpus
	if req.MaxFiles > 0 {
		opts.MaxFiles = req.MaxFiles
	}
	outDir := req.OutputDir
	if outDir == "" {
		outDir = p.cfg.OutputDir
	}

	log.Info("pipeline.step.load")
	loadStart := time.Now()
	load, err := p.loader.Load(ctx, req.Source, opts)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	loadDuration := time.Since(loadStart)

	xopts := p.cfg.Explain
	xopts.RunID = runID
	if xopts.Batching == (explain.BatchingConfig{}) {
		xopts.Batching = explain.DefaultBatchingConfig()
	}
	hook := xopts.OnBatch
	xopts.OnBatch = func(r explain.BatchReport) {
		if hook != nil {
			hook(r)
		}
		if req.OnBatch != nil {
			req.OnBatch(r)
		}
	}
	orch, err := explain.New(p.client, xopts, log)
	if err != nil {
		return nil, err
	}

	if req.OnStart != nil {
		size := xopts.Batching.BatchSize(len(load.Entries))
		req.OnStart(len(load.Entries), (len(load.Entries)+size-1)/size)
	}

	log.Info("pipeline.step.explain", "files", len(load.Entries))
	explainStart := time.Now()
	xres, runErr := orch.Run(ctx, load.Entries)
	explainDuration := time.Since(explainStart)
	if xres == nil {
		return nil, runErr
	}

	log.Info("pipeline.step.write", "dir", outDir)
	writeStart := time.Now()
	artifacts := assemble.Build(load, xres, assemble.RunInfo{
		Source: req.Source.Value,
		Models: xopts.Models,
		Now:    start.UTC(),
	})
	paths, err := p.writer.Write(outDir, artifacts)
	if err != nil {
		return nil, fmt.Errorf("write artifacts: %w", err)
	}
	writeDuration := time.Since(writeStart)

	if p.history != nil {
		run := storage.RunFromResult(xres, req.Source.Value, xopts.Models, start, paths.Dir)
		// Recording must not be skipped because the caller went away.
		if err := p.history.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			log.Warn("pipeline.history.error", "err", err)
		}
	}

	res := &Result{
		RunID:   runID,
		Source:  req.Source.Value,
		Files:   len(load.Entries),
		Skipped: load.SkipReasons,
		Explain: xres,
		Paths:   paths,
		Load:    load,
		Timings: Timings{
			Load:    loadDuration,
			Explain: explainDuration,
			Write:   writeDuration,
			Total:   time.Since(start),
		},
	}
	log.Info("pipeline.complete",
		"files", res.Files,
		"placeholders", xres.Placeholders,
		"canceled", xres.Canceled,
		"duration_ms", res.Timings.Total.Milliseconds(),
	)
	return res, runErr
}

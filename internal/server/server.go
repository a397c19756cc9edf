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

// Package server exposes the documentation pipeline over HTTP.
//
// Endpoints:
//
//	POST /upload   multipart field "file" (.zip), optional ?max_files=N
//	GET  /health   liveness and the configured output directory
//	GET  /metrics  Prometheus metrics
//
// Only one run executes at a time; a concurrent upload is answered with 429.
// Result bundles are kept under <output>/temp_zips and removed after BundleTTL.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/kraklabs/codedoc/pkg/assemble"
	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/pipeline"
)

// Runner executes one pipeline run. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	OutputDir       string
	DefaultMaxFiles int
	MaxUploadBytes  int64
	BundleTTL       time.Duration
}

// DefaultConfig returns the settings used by `codedoc serve`.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		OutputDir:       "output",
		DefaultMaxFiles: 20,
		MaxUploadBytes:  64 << 20,
		BundleTTL:       time.Hour,
	}
}

// Server is the HTTP front end.
type Server struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
	busy   *semaphore.Weighted
	mux    *http.ServeMux
	now    func() time.Time
}

// New creates a Server.
func New(cfg Config, runner Runner, logger *slog.Logger) *Server {
	def := DefaultConfig()
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.DefaultMaxFiles <= 0 {
		cfg.DefaultMaxFiles = def.DefaultMaxFiles
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.BundleTTL <= 0 {
		cfg.BundleTTL = def.BundleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		busy:   semaphore.NewWeighted(1),
		mux:    http.NewServeMux(),
		now:    time.Now,
	}
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.MkdirAll(s.bundleDir(), 0755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	s.cleanupBundles()

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.http.start", "addr", s.cfg.Addr, "output_dir", s.cfg.OutputDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server.http.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "healthy",
		"output_dir": s.cfg.OutputDir,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxFiles := s.cfg.DefaultMaxFiles
	if v := r.URL.Query().Get("max_files"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "max_files must be a positive integer")
			return
		}
		maxFiles = n
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		writeError(w, http.StatusBadRequest, "Only .zip uploads allowed")
		return
	}

	if !s.busy.TryAcquire(1) {
		writeError(w, http.StatusTooManyRequests, "a documentation run is already in progress")
		return
	}
	defer s.busy.Release(1)

	s.cleanupBundles()

	work, err := os.MkdirTemp("", "codedoc-upload-*")
	if err != nil {
		s.fail(w, "create work dir", err)
		return
	}
	defer func() { _ = os.RemoveAll(work) }()

	uploadPath := filepath.Join(work, "upload.zip")
	if err := saveUpload(uploadPath, file); err != nil {
		s.fail(w, "save upload", err)
		return
	}

	res, err := s.runner.Run(r.Context(), pipeline.Request{
		Source:    corpus.Source{Type: corpus.SourceZip, Value: uploadPath},
		OutputDir: filepath.Join(work, "out"),
		MaxFiles:  maxFiles,
	})
	switch {
	case errors.Is(err, corpus.ErrEmptyCorpus):
		writeError(w, http.StatusBadRequest, "No allowed files found in zip")
		return
	case errors.Is(err, corpus.ErrUnsafeArchive), errors.Is(err, corpus.ErrInvalidArchive):
		writeError(w, http.StatusBadRequest, "invalid zip archive")
		return
	case res == nil && err != nil:
		s.fail(w, "run pipeline", err)
		return
	case err != nil:
		// Client went away mid-run; nobody is left to receive the bundle.
		s.logger.Warn("server.upload.canceled", "run_id", res.RunID, "err", err)
		return
	}

	ts := s.now().Unix()
	bundlePath := filepath.Join(s.bundleDir(), fmt.Sprintf("result_bundle_%d_%s.zip", ts, res.RunID))
	if err := writeBundle(bundlePath, res.Paths.Dir); err != nil {
		s.fail(w, "bundle artifacts", err)
		return
	}

	f, err := os.Open(bundlePath)
	if err != nil {
		s.fail(w, "open bundle", err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"code_documentation_%d.zip\"", ts))
	w.Header().Set("X-Codedoc-Run-Id", res.RunID)
	w.Header().Set("X-Codedoc-Placeholders", strconv.Itoa(res.Explain.Placeholders))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("server.upload.write_error", "run_id", res.RunID, "err", err)
		return
	}

	s.logger.Info("server.upload.complete",
		"run_id", res.RunID,
		"files", res.Files,
		"placeholders", res.Explain.Placeholders,
		"bundle", bundlePath,
	)
}

func (s *Server) fail(w http.ResponseWriter, step string, err error) {
	s.logger.Error("server.upload.error", "step", step, "err", err)
	writeError(w, http.StatusInternalServerError, "Processing failed; no outputs produced")
}

func (s *Server) bundleDir() string {
	return filepath.Join(s.cfg.OutputDir, "temp_zips")
}

// cleanupBundles removes result bundles older than BundleTTL.
func (s *Server) cleanupBundles() {
	matches, err := filepath.Glob(filepath.Join(s.bundleDir(), "result_bundle_*.zip"))
	if err != nil {
		return
	}
	cutoff := s.now().Add(-s.cfg.BundleTTL)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("server.cleanup.error", "path", path, "err", err)
			continue
		}
		s.logger.Info("server.cleanup.removed", "path", path)
	}
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func writeBundle(path, artifactDir string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := assemble.Bundle(f, artifactDir); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

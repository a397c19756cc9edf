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

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codedoc/internal/errors"
	"github.com/kraklabs/codedoc/internal/output"
	"github.com/kraklabs/codedoc/internal/ui"
	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/explain"
	"github.com/kraklabs/codedoc/pkg/llm"
	"github.com/kraklabs/codedoc/pkg/pipeline"
	"github.com/kraklabs/codedoc/pkg/storage"
)

// explainFlags are the per-run overrides accepted by 'codedoc explain'.
type explainFlags struct {
	OutputDir string
	Models    string
	Provider  string
	MaxFiles  int
	NoHistory bool
}

// runExplain executes the 'explain' CLI command.
//
// Flags:
//   - --output, -o: Artifact directory
//   - --models: Comma-separated model chain
//   - --provider: Provider type override
//   - --max-files: Corpus cap (0 = unlimited)
//   - --json: Emit batch events and the final result as JSON
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//   - --no-history: Do not record the run
//   - --debug: Debug logging
func runExplain(args []string, globals GlobalFlags) {
	if code := explainMain(args, globals); code != errors.ExitSuccess {
		os.Exit(code)
	}
}

func explainMain(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	var flags explainFlags
	fs.StringVarP(&flags.OutputDir, "output", "o", "", "Artifact directory (default from config: output)")
	fs.StringVar(&flags.Models, "models", "", "Comma-separated model chain, first model tried first")
	fs.StringVar(&flags.Provider, "provider", "", "Provider: openrouter, openai, openai-compatible, ollama, anthropic, mock")
	fs.IntVar(&flags.MaxFiles, "max-files", -1, "Maximum files to annotate (0 = unlimited, default from config)")
	fs.BoolVar(&flags.NoHistory, "no-history", false, "Do not record this run in the history database")
	jsonOut := fs.Bool("json", false, "Output batch events and the result as JSON")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codedoc explain [options] <path | git-url | archive.zip>

Description:
  Collect the source files of a project and annotate them in batches.
  Writes code_only.md, code_with_explanation.md, quiz.md and
  manifest.json to the output directory.

  Batches that cannot be explained after all retries get numbered
  placeholders ("Code file N"); the run still completes.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  codedoc explain .
  codedoc explain ./service --max-files 8 -o docs
  codedoc explain https://github.com/user/repo.git --models qwen/qwen3-coder:free
  codedoc explain project.zip --json > run.jsonl
`)
	}

	if err := fs.Parse(args); err != nil {
		return errors.ExitInput
	}
	globals.JSON = *jsonOut
	if globals.JSON {
		globals.Quiet = true
	}

	if fs.NArg() != 1 {
		return errors.Report(os.Stderr, errors.NewInputError(
			"Missing corpus source",
			"explain takes exactly one argument",
			"Run 'codedoc explain --help' for usage",
		), globals.JSON, globals.NoColor)
	}

	src, err := parseSource(fs.Arg(0))
	if err != nil {
		return errors.Report(os.Stderr, err, globals.JSON, globals.NoColor)
	}

	cfg, err := LoadConfig(globals.ConfigPath)
	if err != nil {
		return errors.Report(os.Stderr, configError(err), globals.JSON, globals.NoColor)
	}
	if err := applyExplainFlags(cfg, flags); err != nil {
		return errors.Report(os.Stderr, configError(err), globals.JSON, globals.NoColor)
	}

	logger := newLogger(os.Stderr, globals, *debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		startMetricsServer(ctx, *metricsAddr, logger)
	}

	p, history, err := buildPipeline(cfg, !flags.NoHistory && cfg.Output.History, logger)
	if err != nil {
		return errors.Report(os.Stderr, err, globals.JSON, globals.NoColor)
	}
	defer func() { _ = p.Close() }()
	if history != nil {
		defer func() { _ = history.Close() }()
	}

	progress := NewBatchProgress(NewProgressConfig(globals))
	req := pipeline.Request{
		Source:  src,
		OnStart: progress.Start,
		OnBatch: func(r explain.BatchReport) {
			progress.Update(r)
			if globals.JSON {
				_ = output.JSONLine(os.Stdout, batchEvent{Type: "batch", Report: r})
			}
		},
	}
	if globals.JSON {
		req.OnStart = func(files, batches int) {
			_ = output.JSONLine(os.Stdout, startEvent{Type: "start", Files: files, Batches: batches})
		}
	}

	res, runErr := p.Run(ctx, req)
	progress.Finish()
	if res == nil {
		return errors.Report(os.Stderr, runErr, globals.JSON, globals.NoColor)
	}

	if globals.JSON {
		_ = output.JSONLine(os.Stdout, resultEvent{Type: "result", Result: res})
	} else {
		printExplainResult(ui.NewPrinter(false), res)
	}

	if runErr != nil {
		return errors.Report(os.Stderr, errors.NewCanceledError(
			"Run canceled; artifacts contain placeholders for the remaining files", runErr,
		), globals.JSON, globals.NoColor)
	}
	return errors.ExitSuccess
}

type startEvent struct {
	Type    string `json:"type"`
	Files   int    `json:"files"`
	Batches int    `json:"batches"`
}

type batchEvent struct {
	Type   string              `json:"type"`
	Report explain.BatchReport `json:"report"`
}

type resultEvent struct {
	Type   string           `json:"type"`
	Result *pipeline.Result `json:"result"`
}

// parseSource classifies a command-line argument as a git URL, a zip
// archive or a directory.
func parseSource(arg string) (corpus.Source, error) {
	if corpus.LooksLikeGitURL(arg) {
		return corpus.Source{Type: corpus.SourceGitURL, Value: arg}, nil
	}
	info, err := os.Stat(arg)
	if err != nil {
		if os.IsNotExist(err) {
			return corpus.Source{}, errors.NewNotFoundError(
				"Source not found",
				fmt.Sprintf("%s does not exist", arg),
				"Pass a directory, a .zip archive or a git URL",
			)
		}
		return corpus.Source{}, errors.NewPermissionError("Cannot access source", err.Error(), "Check file permissions", err)
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		abs = arg
	}
	switch {
	case info.IsDir():
		return corpus.Source{Type: corpus.SourceLocalPath, Value: abs}, nil
	case strings.EqualFold(filepath.Ext(arg), ".zip"):
		return corpus.Source{Type: corpus.SourceZip, Value: abs}, nil
	}
	return corpus.Source{}, errors.NewInputError(
		"Unsupported source",
		fmt.Sprintf("%s is neither a directory nor a .zip archive", arg),
		"Pass a directory, a .zip archive or a git URL",
	)
}

// applyExplainFlags layers command-line overrides on top of cfg.
func applyExplainFlags(cfg *Config, f explainFlags) error {
	if f.Provider != "" && f.Provider != cfg.Provider.Type {
		cfg.Provider.Type = strings.ToLower(f.Provider)
		cfg.Provider.BaseURL = ""
		cfg.Provider.APIKeyEnv = ""
		cfg.resolveAPIKey()
	}
	if f.Models != "" {
		cfg.Models = splitList(f.Models)
	}
	if f.OutputDir != "" {
		cfg.Output.Dir = f.OutputDir
	}
	if f.MaxFiles >= 0 {
		cfg.Corpus.MaxFiles = f.MaxFiles
	}
	return cfg.Validate()
}

func configError(err error) error {
	return errors.NewConfigError(
		"Cannot load configuration",
		err.Error(),
		"Check .codedoc/project.yaml or run 'codedoc init'",
		err,
	)
}

// newLogger builds the text logger shared by explain and serve.
func newLogger(w io.Writer, globals GlobalFlags, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case debug || globals.Verbose > 0:
		level = slog.LevelDebug
	case globals.Quiet:
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// buildPipeline wires provider, client, history and pipeline from cfg. The
// returned backend is nil when history is disabled.
func buildPipeline(cfg *Config, withHistory bool, logger *slog.Logger) (*pipeline.Pipeline, storage.Backend, error) {
	provider, err := llm.NewProvider(cfg.ProviderSettings())
	if err != nil {
		return nil, nil, err
	}
	client := llm.NewClient(provider, cfg.ClientSettings(), logger)

	var history storage.Backend
	if withHistory {
		path := cfg.Output.HistoryPath
		if path == "" {
			if path, err = storage.DefaultHistoryPath(); err != nil {
				return nil, nil, errors.NewStorageError("Cannot locate history database", err.Error(), "Set output.history_path or pass --no-history", err)
			}
		}
		backend, err := storage.NewSQLiteBackend(storage.SQLiteConfig{Path: path})
		if err != nil {
			return nil, nil, errors.NewStorageError("Cannot open history database", err.Error(), "Set output.history_path or pass --no-history", err)
		}
		history = backend
	}

	p, err := pipeline.New(pipeline.Config{
		Corpus:    cfg.CorpusOptions(),
		Explain:   cfg.ExplainOptions(),
		OutputDir: cfg.Output.Dir,
	}, client, history, logger)
	if err != nil {
		if history != nil {
			_ = history.Close()
		}
		return nil, nil, err
	}
	return p, history, nil
}

func startMetricsServer(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics.http.error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

func printExplainResult(p *ui.Printer, res *pipeline.Result) {
	fmt.Fprintln(p.Out)
	p.Header("Annotation Complete")
	p.Field("Run ID:", res.RunID)
	p.Field("Source:", res.Source)
	p.Field("Files:", ui.CountText(res.Files))
	if res.Explain != nil {
		p.Field("Batch size:", res.Explain.BatchSize)
		p.Field("Batches:", len(res.Explain.Batches))
		p.Field("Attempts:", res.Explain.Attempts)
		if res.Explain.Placeholders > 0 {
			p.Warningf("%d of %d files have placeholder explanations", res.Explain.Placeholders, res.Files)
			for _, b := range res.Explain.Batches {
				if b.Genuine {
					continue
				}
				fmt.Fprintf(p.Out, "    batch %d: %s (files %d-%d)\n",
					b.Index+1, ui.OutcomeText(b.Outcome), b.Offset+1, b.Offset+b.Size)
			}
		}
	}

	if len(res.Skipped) > 0 {
		fmt.Fprintln(p.Out)
		fmt.Fprintln(p.Out, ui.Label("Skipped Files:"))
		reasons := make([]string, 0, len(res.Skipped))
		for reason := range res.Skipped {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(p.Out, "  %s: %d\n", reason, res.Skipped[reason])
		}
	}

	fmt.Fprintln(p.Out)
	fmt.Fprintln(p.Out, ui.Label("Timings:"))
	fmt.Fprintf(p.Out, "  Load:    %s\n", res.Timings.Load.Round(time.Millisecond))
	fmt.Fprintf(p.Out, "  Explain: %s\n", res.Timings.Explain.Round(time.Millisecond))
	fmt.Fprintf(p.Out, "  Write:   %s\n", res.Timings.Write.Round(time.Millisecond))
	fmt.Fprintf(p.Out, "  Total:   %s\n", res.Timings.Total.Round(time.Millisecond))

	if res.Paths != nil {
		fmt.Fprintln(p.Out)
		p.Successf("Artifacts written to %s", res.Paths.Dir)
		fmt.Fprintf(p.Out, "  %s\n  %s\n  %s\n",
			ui.DimText(res.Paths.Code), ui.DimText(res.Paths.Explanations), ui.DimText(res.Paths.Quiz))
	}
}

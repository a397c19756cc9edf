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
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codedoc/internal/errors"
	"github.com/kraklabs/codedoc/internal/output"
	"github.com/kraklabs/codedoc/pkg/storage"
)

// runHistory executes the 'history' CLI command.
//
// Without arguments it lists recent runs; with a run ID it shows that run's
// batches.
func runHistory(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.IntP("limit", "n", 20, "Number of runs to list")
	jsonOut := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codedoc history [options] [run-id]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  codedoc history
  codedoc history --limit 5 --json
  codedoc history 01JABCDEF...
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	globals.JSON = *jsonOut

	cfg, err := LoadConfig(globals.ConfigPath)
	if err != nil {
		errors.FatalError(configError(err), globals.JSON)
	}
	path := cfg.Output.HistoryPath
	if path == "" {
		if path, err = storage.DefaultHistoryPath(); err != nil {
			errors.FatalError(errors.NewStorageError("Cannot locate history database", err.Error(), "Set output.history_path", err), globals.JSON)
		}
	}
	backend, err := storage.NewSQLiteBackend(storage.SQLiteConfig{Path: path})
	if err != nil {
		errors.FatalError(errors.NewStorageError("Cannot open history database", err.Error(), "Check "+path, err), globals.JSON)
	}
	defer func() { _ = backend.Close() }()

	if err := showHistory(context.Background(), os.Stdout, backend, fs.Args(), *limit, globals.JSON); err != nil {
		_ = backend.Close()
		errors.FatalError(err, globals.JSON)
	}
}

func showHistory(ctx context.Context, w io.Writer, backend storage.Backend, args []string, limit int, jsonOut bool) error {
	if len(args) > 0 {
		run, err := backend.GetRun(ctx, args[0])
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NewNotFoundError("Run not found", args[0]+" is not in the history database", "List runs with 'codedoc history'")
		}
		if err != nil {
			return errors.NewStorageError("Cannot read run", err.Error(), "", err)
		}
		if jsonOut {
			return output.JSONTo(w, run)
		}
		return printRun(w, run)
	}

	runs, err := backend.ListRuns(ctx, limit)
	if err != nil {
		return errors.NewStorageError("Cannot list runs", err.Error(), "", err)
	}
	if jsonOut {
		if runs == nil {
			runs = []storage.Run{}
		}
		return output.JSONTo(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}
	return output.Table(w, []string{"id", "started", "files", "placeholders", "attempts", "duration", "source"}, runRows(runs))
}

func runRows(runs []storage.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		placeholders := strconv.Itoa(r.Placeholders)
		if r.Canceled {
			placeholders += " (canceled)"
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.Files),
			placeholders,
			strconv.Itoa(r.Attempts),
			r.Duration.Round(time.Second).String(),
			r.Source,
		})
	}
	return rows
}

func printRun(w io.Writer, run *storage.Run) error {
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  Source:       %s\n", run.Source)
	fmt.Fprintf(w, "  Started:      %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "  Files:        %d (batch size %d)\n", run.Files, run.BatchSize)
	fmt.Fprintf(w, "  Placeholders: %d\n", run.Placeholders)
	fmt.Fprintf(w, "  Models:       %s\n", strings.Join(run.Models, ", "))
	if run.OutputDir != "" {
		fmt.Fprintf(w, "  Output:       %s\n", run.OutputDir)
	}
	fmt.Fprintln(w)
	return output.Table(w, []string{"batch", "files", "outcome", "attempts", "models", "error"}, batchRows(run.Batches))
}

func batchRows(batches []storage.BatchRecord) [][]string {
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			strconv.Itoa(b.Index + 1),
			fmt.Sprintf("%d-%d", b.Offset+1, b.Offset+b.Size),
			b.Outcome,
			strconv.Itoa(b.Attempts),
			strings.Join(b.Models, ","),
			b.LastError,
		})
	}
	return rows
}

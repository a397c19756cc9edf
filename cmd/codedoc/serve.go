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
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codedoc/internal/errors"
	"github.com/kraklabs/codedoc/internal/server"
)

// runServe executes the 'serve' CLI command: the HTTP upload service.
func runServe(args []string, globals GlobalFlags) {
	def := server.DefaultConfig()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", def.Addr, "HTTP listen address")
	maxFiles := fs.Int("max-files", def.DefaultMaxFiles, "Default max_files when the request omits it")
	maxUpload := fs.Int64("max-upload-mb", def.MaxUploadBytes>>20, "Maximum upload size in MiB")
	bundleTTL := fs.Duration("bundle-ttl", def.BundleTTL, "How long result bundles are kept on disk")
	noHistory := fs.Bool("no-history", false, "Do not record runs in the history database")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codedoc serve [options]

Description:
  Serve POST /upload (multipart field "file" with a .zip archive and an
  optional ?max_files=N query parameter). The response is a zip bundle with the
  three Markdown artifacts. GET /health and GET /metrics are also served.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  codedoc serve
  codedoc serve --addr 127.0.0.1:9000 --max-files 10
  curl -F file=@project.zip "localhost:8000/upload?max_files=5" -o docs.zip
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(globals.ConfigPath)
	if err != nil {
		errors.FatalError(configError(err), false)
	}

	logger := newLogger(os.Stderr, globals, *debug)

	p, history, err := buildPipeline(cfg, !*noHistory && cfg.Output.History, logger)
	if err != nil {
		errors.FatalError(err, false)
	}
	defer func() { _ = p.Close() }()
	if history != nil {
		defer func() { _ = history.Close() }()
	}

	srv := server.New(server.Config{
		Addr:            *addr,
		OutputDir:       cfg.Output.Dir,
		DefaultMaxFiles: *maxFiles,
		MaxUploadBytes:  *maxUpload << 20,
		BundleTTL:       *bundleTTL,
	}, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server.exit", "err", err)
		stop()
		_ = p.Close()
		errors.FatalError(errors.NewNetworkError("Server failed", err.Error(), "Check that "+*addr+" is free", err), false)
	}
	logger.Info("server.stopped", "uptime", time.Since(start).Round(time.Second))
}

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
	"fmt"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codedoc/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are the options accepted before the command name.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Quiet      bool
	NoColor    bool
	Verbose    int
}

// main parses global flags and dispatches to a command handler.
//
// Commands:
//   - init: Create .codedoc/project.yaml
//   - explain: Annotate a directory, git URL or zip archive
//   - serve: Run the HTTP upload service
//   - history: List recorded runs
//   - version: Print build information
func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .codedoc/project.yaml (default: ./.codedoc/project.yaml)")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress progress and informational output")
		verbose     = flag.CountP("verbose", "v", "Increase log verbosity (-v, -vv)")
	)
	flag.CommandLine.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `codedoc - batch code annotation

codedoc collects the source files of a project, asks a chat-completion
model to explain them a few files per request, and writes three Markdown
artifacts: the code, the code with explanations, and a short quiz.
Rate limits rotate through a chain of models; failed batches degrade to
numbered placeholders instead of aborting the run.

Usage:
  codedoc [global options] <command> [options]

Commands:
  init       Create .codedoc/project.yaml configuration
  explain    Annotate a directory, git URL or .zip archive
  serve      Run the HTTP upload service
  history    List recorded runs
  version    Show version information

Global Options:
  --config     Path to .codedoc/project.yaml
  --no-color   Disable colored output
  -q, --quiet  Suppress progress and informational output
  -v           Increase log verbosity
  --version    Show version and exit

Examples:
  codedoc init
  codedoc explain ./myproject
  codedoc explain https://github.com/user/repo.git --max-files 10
  codedoc explain project.zip --json
  codedoc serve --addr :8000
  codedoc history --limit 5

Environment Variables:
  OPENROUTER_API_KEY   OpenRouter API key (also read from .env)
  CODEDOC_PROVIDER     Provider type (openrouter, openai, ollama, anthropic, mock)
  CODEDOC_MODELS       Comma-separated model chain
  CODEDOC_BASE_URL     Provider endpoint override
  CODEDOC_OUTPUT_DIR   Artifact directory

For detailed command help: codedoc <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	globals := GlobalFlags{
		ConfigPath: *configPath,
		Quiet:      *quiet,
		NoColor:    *noColor,
		Verbose:    *verbose,
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "explain":
		runExplain(cmdArgs, globals)
	case "serve":
		runServe(cmdArgs, globals)
	case "history":
		runHistory(cmdArgs, globals)
	case "version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("codedoc version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", date)
}

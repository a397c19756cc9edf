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
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codedoc/internal/errors"
	"github.com/kraklabs/codedoc/internal/ui"
)

type initFlags struct {
	force          bool
	nonInteractive bool
	provider       string
	models         string
	outputDir      string
}

// runInit executes the 'init' CLI command.
func runInit(args []string, globals GlobalFlags) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot get current directory", err.Error(), "", err), false)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		errors.FatalError(errors.NewConfigError(
			"Configuration already exists",
			configPath+" is present",
			"Use --force to overwrite",
			nil,
		), false)
	}

	cfg := createInitConfig(flags)
	if !flags.nonInteractive {
		runInteractiveConfig(bufio.NewReader(os.Stdin), os.Stdout, cfg)
	}
	if err := cfg.Validate(); err != nil {
		errors.FatalError(configError(err), false)
	}

	if err := SaveConfig(cfg, configPath); err != nil {
		errors.FatalError(errors.NewPermissionError("Cannot write configuration", err.Error(), "Check write permissions for "+ConfigDir(cwd), err), false)
	}

	printer := ui.NewPrinter(globals.Quiet)
	printer.Successf("Created %s", configPath)
	if addToGitignore(cwd) {
		printer.Infof("Added %s/ to .gitignore", configDirName)
	}
	printNextSteps(printer, cfg)
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVarP(&f.nonInteractive, "yes", "y", false, "Non-interactive mode (use defaults)")
	fs.StringVar(&f.provider, "provider", "", "Provider type (openrouter, openai, openai-compatible, ollama, anthropic, mock)")
	fs.StringVar(&f.models, "models", "", "Comma-separated model chain")
	fs.StringVar(&f.outputDir, "output", "", "Artifact directory")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codedoc init [options]

Creates .codedoc/project.yaml configuration file.

Examples:
  codedoc init
  codedoc init -y --provider ollama --models llama3.1,qwen2.5-coder
  codedoc init --force

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func createInitConfig(f initFlags) *Config {
	cfg := DefaultConfig()
	if f.provider != "" {
		setProvider(cfg, f.provider)
	}
	if f.models != "" {
		cfg.Models = splitList(f.models)
	}
	if f.outputDir != "" {
		cfg.Output.Dir = f.outputDir
	}
	return cfg
}

// setProvider switches provider type and resets the endpoint and key
// variable to that provider's defaults.
func setProvider(cfg *Config, providerType string) {
	providerType = strings.ToLower(strings.TrimSpace(providerType))
	if providerType == cfg.Provider.Type {
		return
	}
	cfg.Provider.Type = providerType
	cfg.Provider.BaseURL = ""
	cfg.Provider.APIKeyEnv = defaultKeyEnv(providerType)
}

func runInteractiveConfig(reader *bufio.Reader, w io.Writer, cfg *Config) {
	fmt.Fprintln(w, "codedoc Project Configuration")
	fmt.Fprintln(w, "=============================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Providers: openrouter, openai, openai-compatible, ollama, anthropic, mock")
	setProvider(cfg, prompt(reader, w, "Provider", cfg.Provider.Type))
	cfg.Provider.BaseURL = prompt(reader, w, "Base URL (empty for the provider default)", cfg.Provider.BaseURL)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Models are tried in order; a rate limit moves to the next one.")
	models := prompt(reader, w, "Model chain (comma-separated)", strings.Join(cfg.Models, ","))
	if list := splitList(models); len(list) > 0 {
		cfg.Models = list
	}

	cfg.Output.Dir = prompt(reader, w, "Output directory", cfg.Output.Dir)
	fmt.Fprintln(w)
}

func prompt(reader *bufio.Reader, w io.Writer, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(w, "%s [%s]: ", label, defaultValue)
	} else {
		fmt.Fprintf(w, "%s: ", label)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func printNextSteps(p *ui.Printer, cfg *Config) {
	if p.Quiet {
		return
	}
	fmt.Fprintln(p.Out)
	fmt.Fprintln(p.Out, "Next steps:")
	if env := cfg.Provider.APIKeyEnv; env != "" && os.Getenv(env) == "" {
		fmt.Fprintf(p.Out, "  1. Set %s (or add it to .env)\n", env)
	} else {
		fmt.Fprintln(p.Out, "  1. Credentials found")
	}
	fmt.Fprintln(p.Out, "  2. codedoc explain .")
	fmt.Fprintln(p.Out, "  3. codedoc history")
}

// addToGitignore appends .codedoc/ to an existing .gitignore. It reports
// whether the file was changed.
func addToGitignore(dir string) bool {
	gitignorePath := filepath.Join(dir, ".gitignore")

	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.Trim(strings.TrimSpace(line), "/")
		if line == configDirName {
			return false
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0600) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}
	_, err = f.WriteString("\n# codedoc configuration\n" + configDirName + "/\n")
	return err == nil
}

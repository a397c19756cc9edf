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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/explain"
	"github.com/kraklabs/codedoc/pkg/llm"
)

const (
	configDirName  = ".codedoc"
	configFileName = "project.yaml"
)

// Config is the codedoc project configuration (.codedoc/project.yaml).
type Config struct {
	Version  string                 `yaml:"version"`
	Provider ProviderConfig         `yaml:"provider"`
	Models   []string               `yaml:"models" validate:"required,min=1,dive,required"`
	Client   ClientConfig           `yaml:"client"`
	Retry    explain.BackoffConfig  `yaml:"retry"`
	Batching explain.BatchingConfig `yaml:"batching"`
	Pacing   PacingConfig           `yaml:"pacing"`
	Corpus   CorpusConfig           `yaml:"corpus"`
	Output   OutputConfig           `yaml:"output"`
}

// ProviderConfig selects the completion service.
type ProviderConfig struct {
	Type    string `yaml:"type" validate:"oneof=openrouter openai openai-compatible ollama anthropic mock"`
	BaseURL string `yaml:"base_url,omitempty"`
	// APIKeyEnv names the environment variable holding the credential.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	Referer   string `yaml:"referer,omitempty"`
	Title     string `yaml:"title,omitempty"`

	// APIKey is resolved from the environment and never written to disk.
	APIKey string `yaml:"-"`
}

// ClientConfig mirrors llm.ClientConfig.
type ClientConfig struct {
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxTokens      int           `yaml:"max_tokens" validate:"gte=1"`
	Temperature    float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxPromptChars int           `yaml:"max_prompt_chars" validate:"gte=1"`
	ASCIIOnly      bool          `yaml:"ascii_only"`
	SystemPrompt   string        `yaml:"system_prompt"`
}

// PacingConfig bounds the random pause between batches.
type PacingConfig struct {
	Min time.Duration `yaml:"min" validate:"gte=0"`
	Max time.Duration `yaml:"max" validate:"gtefield=Min"`
}

// CorpusConfig controls which files are collected.
type CorpusConfig struct {
	Extensions   []string `yaml:"extensions" validate:"min=1,dive,startswith=."`
	ExcludeDirs  []string `yaml:"exclude_dirs"`
	ExcludeGlobs []string `yaml:"exclude_globs,omitempty"`
	MaxFileSize  int64    `yaml:"max_file_size" validate:"gte=1"`
	MaxFiles     int      `yaml:"max_files" validate:"gte=0"`
	Outline      bool     `yaml:"outline"`
}

// OutputConfig controls where artifacts and history go.
type OutputConfig struct {
	Dir         string `yaml:"dir" validate:"required"`
	History     bool   `yaml:"history"`
	HistoryPath string `yaml:"history_path,omitempty"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	client := llm.DefaultClientConfig()
	opts := corpus.DefaultOptions()
	return &Config{
		Version: "1",
		Provider: ProviderConfig{
			Type:      llm.TypeOpenRouter,
			BaseURL:   llm.DefaultOpenRouterURL,
			APIKeyEnv: "OPENROUTER_API_KEY",
			Referer:   "http://localhost",
			Title:     "codedoc",
		},
		Models: []string{
			"qwen/qwen3-coder:free",
			"google/gemma-2-9b-it:free",
			"mistralai/mistral-7b-instruct:free",
		},
		Client: ClientConfig{
			Timeout:        client.Timeout,
			MaxTokens:      client.MaxTokens,
			Temperature:    client.Temperature,
			MaxPromptChars: client.MaxPromptChars,
			ASCIIOnly:      client.ASCIIOnly,
			SystemPrompt:   client.SystemPrompt,
		},
		Retry:    explain.DefaultBackoffConfig(),
		Batching: explain.DefaultBatchingConfig(),
		Pacing:   PacingConfig{Min: 2 * time.Second, Max: 5 * time.Second},
		Corpus: CorpusConfig{
			Extensions:   opts.Extensions,
			ExcludeDirs:  opts.ExcludeDirs,
			ExcludeGlobs: opts.ExcludeGlobs,
			MaxFileSize:  opts.MaxFileSize,
			MaxFiles:     opts.MaxFiles,
			Outline:      opts.Outline,
		},
		Output: OutputConfig{Dir: "output", History: true},
	}
}

// ConfigDir returns the .codedoc directory for a project root.
func ConfigDir(root string) string {
	return filepath.Join(root, configDirName)
}

// ConfigPath returns the project.yaml path for a project root.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), configFileName)
}

// LoadConfig builds the configuration from defaults, the project file (if
// any) and the environment. An explicit path must exist; the implicit
// ./.codedoc/project.yaml is optional.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		path = ConfigPath(cwd)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: config path chosen by the user
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.normalizeProvider()
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeProvider drops the OpenRouter endpoint defaults when the file
// selects another provider without naming its own.
func (c *Config) normalizeProvider() {
	if c.Provider.Type == llm.TypeOpenRouter {
		return
	}
	if c.Provider.BaseURL == llm.DefaultOpenRouterURL {
		c.Provider.BaseURL = ""
	}
	if c.Provider.APIKeyEnv == "OPENROUTER_API_KEY" {
		c.Provider.APIKeyEnv = ""
	}
}

// applyEnv applies CODEDOC_* overrides and resolves the credential.
func (c *Config) applyEnv() {
	if v := os.Getenv("CODEDOC_PROVIDER"); v != "" {
		if v != c.Provider.Type {
			c.Provider.BaseURL = ""
			c.Provider.APIKeyEnv = ""
		}
		c.Provider.Type = strings.ToLower(v)
	}
	if v := os.Getenv("CODEDOC_MODELS"); v != "" {
		c.Models = splitList(v)
	}
	if v := os.Getenv("CODEDOC_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("CODEDOC_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	c.resolveAPIKey()
}

func (c *Config) resolveAPIKey() {
	env := c.Provider.APIKeyEnv
	if env == "" {
		env = defaultKeyEnv(c.Provider.Type)
	}
	if env != "" {
		c.Provider.APIKey = os.Getenv(env)
	}
}

func defaultKeyEnv(providerType string) string {
	switch providerType {
	case llm.TypeOpenRouter:
		return "OPENROUTER_API_KEY"
	case llm.TypeOpenAI:
		return "OPENAI_API_KEY"
	case llm.TypeAnthropic:
		return "ANTHROPIC_API_KEY"
	}
	return ""
}

var validate = validator.New()

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SaveConfig writes cfg as YAML with a short header.
func SaveConfig(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# codedoc project configuration\n")
	buf.WriteString("# The API key is read from the environment variable named in provider.api_key_env.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ProviderSettings converts the provider section for llm.NewProvider.
func (c *Config) ProviderSettings() llm.ProviderConfig {
	return llm.ProviderConfig{
		Type:    c.Provider.Type,
		BaseURL: c.Provider.BaseURL,
		APIKey:  c.Provider.APIKey,
		Timeout: c.Client.Timeout,
		Referer: c.Provider.Referer,
		Title:   c.Provider.Title,
	}
}

// ClientSettings converts the client section for llm.NewClient.
func (c *Config) ClientSettings() llm.ClientConfig {
	return llm.ClientConfig{
		SystemPrompt:   c.Client.SystemPrompt,
		MaxTokens:      c.Client.MaxTokens,
		Temperature:    c.Client.Temperature,
		MaxPromptChars: c.Client.MaxPromptChars,
		Timeout:        c.Client.Timeout,
		ASCIIOnly:      c.Client.ASCIIOnly,
	}
}

// CorpusOptions converts the corpus section for corpus.Loader.
func (c *Config) CorpusOptions() corpus.Options {
	return corpus.Options{
		Extensions:   c.Corpus.Extensions,
		ExcludeDirs:  c.Corpus.ExcludeDirs,
		ExcludeGlobs: c.Corpus.ExcludeGlobs,
		MaxFileSize:  c.Corpus.MaxFileSize,
		MaxFiles:     c.Corpus.MaxFiles,
		Outline:      c.Corpus.Outline,
	}
}

// ExplainOptions converts the model chain, retry, batching and pacing
// sections for the orchestrator.
func (c *Config) ExplainOptions() explain.Options {
	opts := explain.DefaultOptions(c.Models...)
	opts.Backoff = c.Retry
	opts.Batching = c.Batching
	opts.PaceMin = c.Pacing.Min
	opts.PaceMax = c.Pacing.Max
	return opts
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from CODEDOC_* and credential variables.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CODEDOC_PROVIDER", "CODEDOC_MODELS", "CODEDOC_BASE_URL", "CODEDOC_OUTPUT_DIR",
		"OPENROUTER_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := ConfigPath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "openrouter", cfg.Provider.Type)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Provider.BaseURL)
	assert.Len(t, cfg.Models, 3)
	assert.Equal(t, 45*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 300, cfg.Client.MaxTokens)
	assert.InDelta(t, 0.3, cfg.Client.Temperature, 1e-9)
	assert.Equal(t, 8000, cfg.Client.MaxPromptChars)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Pacing.Min)
	assert.Equal(t, 5*time.Second, cfg.Pacing.Max)
	assert.Equal(t, 20, cfg.Corpus.MaxFiles)
	assert.Equal(t, "output", cfg.Output.Dir)
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Models, cfg.Models)
	assert.Empty(t, cfg.Provider.APIKey)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfigFile(t, dir, `
provider:
  type: ollama
models:
  - llama3.1
  - qwen2.5-coder
client:
  timeout: 10s
pacing:
  min: 0s
  max: 1s
batching:
  max_size: 6
corpus:
  max_files: 0
`)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Provider.Type)
	assert.Empty(t, cfg.Provider.BaseURL)
	assert.Equal(t, []string{"llama3.1", "qwen2.5-coder"}, cfg.Models)
	assert.Equal(t, 10*time.Second, cfg.Client.Timeout)
	assert.Equal(t, time.Duration(0), cfg.Pacing.Min)
	assert.Equal(t, time.Second, cfg.Pacing.Max)
	assert.Equal(t, 6, cfg.Batching.MaxSize)
	assert.Equal(t, 2, cfg.Batching.MinSize, "unset keys keep their defaults")
	assert.Equal(t, 300, cfg.Client.MaxTokens)
	assert.Equal(t, 0, cfg.Corpus.MaxFiles)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("CODEDOC_MODELS", "a/one, b/two ,")
	t.Setenv("CODEDOC_OUTPUT_DIR", "docs")
	t.Setenv("CODEDOC_BASE_URL", "http://127.0.0.1:9999/v1")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, []string{"a/one", "b/two"}, cfg.Models)
	assert.Equal(t, "docs", cfg.Output.Dir)
	assert.Equal(t, "http://127.0.0.1:9999/v1", cfg.Provider.BaseURL)
}

func TestLoadConfig_ProviderEnvResetsEndpoint(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("CODEDOC_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "ak-test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider.Type)
	assert.Empty(t, cfg.Provider.BaseURL)
	assert.Equal(t, "ak-test", cfg.Provider.APIKey)
}

func TestLoadConfig_ExplicitPathMustExist(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty model chain", "models: []\n"},
		{"blank model", "models: [\"\"]\n"},
		{"unknown provider", "provider:\n  type: carrier-pigeon\n"},
		{"pacing max below min", "pacing:\n  min: 5s\n  max: 1s\n"},
		{"extension without dot", "corpus:\n  extensions: [py]\n"},
		{"zero attempts", "retry:\n  max_attempts: 0\n"},
		{"malformed yaml", "models: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfigFile(t, t.TempDir(), tt.body)
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig_OmitsAPIKey(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-secret"
	cfg.Models = []string{"only/model"}
	path := ConfigPath(dir)
	require.NoError(t, SaveConfig(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.Contains(t, string(data), "timeout: 45s")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"only/model"}, loaded.Models)
	assert.Equal(t, cfg.Client.Timeout, loaded.Client.Timeout)
}

func TestConfigConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []string{"m1", "m2"}
	cfg.Pacing = PacingConfig{Min: time.Second, Max: 3 * time.Second}
	cfg.Corpus.MaxFiles = 7
	cfg.Provider.APIKey = "k"

	opts := cfg.ExplainOptions()
	assert.Equal(t, []string{"m1", "m2"}, opts.Models)
	assert.Equal(t, time.Second, opts.PaceMin)
	assert.Equal(t, 3*time.Second, opts.PaceMax)
	assert.Equal(t, cfg.Retry, opts.Backoff)
	assert.Equal(t, cfg.Batching, opts.Batching)

	assert.Equal(t, 7, cfg.CorpusOptions().MaxFiles)
	assert.Equal(t, cfg.Corpus.Extensions, cfg.CorpusOptions().Extensions)

	pc := cfg.ProviderSettings()
	assert.Equal(t, "openrouter", pc.Type)
	assert.Equal(t, "k", pc.APIKey)
	assert.Equal(t, "codedoc", pc.Title)

	cc := cfg.ClientSettings()
	assert.Equal(t, 300, cc.MaxTokens)
	assert.True(t, cc.ASCIIOnly)
	assert.NotEmpty(t, cc.SystemPrompt)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" , ,"))
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b "))
}

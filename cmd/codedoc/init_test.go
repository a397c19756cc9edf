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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompt(t *testing.T) {
	var out bytes.Buffer

	got := prompt(bufio.NewReader(strings.NewReader("\n")), &out, "Provider", "openrouter")
	assert.Equal(t, "openrouter", got)
	assert.Equal(t, "Provider [openrouter]: ", out.String())

	out.Reset()
	got = prompt(bufio.NewReader(strings.NewReader("  ollama  \n")), &out, "Provider", "openrouter")
	assert.Equal(t, "ollama", got)

	out.Reset()
	got = prompt(bufio.NewReader(strings.NewReader("")), &out, "Base URL", "")
	assert.Equal(t, "", got)
	assert.Equal(t, "Base URL: ", out.String())
}

func TestRunInteractiveConfig(t *testing.T) {
	input := strings.Join([]string{
		"ollama",          // provider
		"",                // base url: provider default
		"llama3.1, qwen2", // models
		"docs",            // output dir
	}, "\n") + "\n"

	cfg := DefaultConfig()
	var out bytes.Buffer
	runInteractiveConfig(bufio.NewReader(strings.NewReader(input)), &out, cfg)

	assert.Equal(t, "ollama", cfg.Provider.Type)
	assert.Empty(t, cfg.Provider.BaseURL)
	assert.Empty(t, cfg.Provider.APIKeyEnv)
	assert.Equal(t, []string{"llama3.1", "qwen2"}, cfg.Models)
	assert.Equal(t, "docs", cfg.Output.Dir)
	require.NoError(t, cfg.Validate())
}

func TestRunInteractiveConfig_KeepsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	var out bytes.Buffer
	runInteractiveConfig(bufio.NewReader(strings.NewReader("\n\n\n\n")), &out, cfg)

	def := DefaultConfig()
	assert.Equal(t, def.Provider, cfg.Provider)
	assert.Equal(t, def.Models, cfg.Models)
	assert.Equal(t, def.Output.Dir, cfg.Output.Dir)
}

func TestCreateInitConfig(t *testing.T) {
	cfg := createInitConfig(initFlags{provider: "OpenAI", models: "gpt-4o-mini", outputDir: "out"})
	assert.Equal(t, "openai", cfg.Provider.Type)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Provider.APIKeyEnv)
	assert.Empty(t, cfg.Provider.BaseURL)
	assert.Equal(t, []string{"gpt-4o-mini"}, cfg.Models)
	assert.Equal(t, "out", cfg.Output.Dir)

	def := createInitConfig(initFlags{})
	assert.Equal(t, DefaultConfig(), def)
}

func TestAddToGitignore(t *testing.T) {
	t.Run("no gitignore", func(t *testing.T) {
		dir := t.TempDir()
		assert.False(t, addToGitignore(dir))
		assert.NoFileExists(t, filepath.Join(dir, ".gitignore"))
	})

	t.Run("appends once", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".gitignore")
		require.NoError(t, os.WriteFile(path, []byte("bin/"), 0600))

		assert.True(t, addToGitignore(dir))
		assert.False(t, addToGitignore(dir))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "bin/\n\n# codedoc configuration\n.codedoc/\n", string(data))
	})

	t.Run("existing entry variants", func(t *testing.T) {
		for _, entry := range []string{".codedoc", ".codedoc/", "/.codedoc", "/.codedoc/"} {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(entry+"\n"), 0600))
			assert.False(t, addToGitignore(dir), entry)
		}
	})
}

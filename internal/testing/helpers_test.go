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

package testing

import (
	"archive/zip"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codedoc/pkg/llm"
)

func TestWriteCorpus(t *testing.T) {
	dir := WriteCorpus(t, map[string]string{
		"app/main.py": "print('hi')",
		"README.md":   "docs",
	})

	data, err := os.ReadFile(filepath.Join(dir, "app", "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(data))
}

func TestWriteZip(t *testing.T) {
	path := WriteZip(t, map[string]string{"src/a.go": "package a"})

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "src/a.go", zr.File[0].Name)
}

func TestCompletionStub_DefaultReply(t *testing.T) {
	stub := NewCompletionStub(t)
	provider, err := llm.NewProvider(llm.ProviderConfig{Type: llm.TypeOpenAICompatible, BaseURL: stub.URL()})
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{
		Model:    "m1",
		Messages: []llm.Message{{Role: "user", Content: "1. a.py (py):\n```py\nx\n```\n\n2. b.py (py):\n"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "1. Explains a.py\n2. Explains b.py\n", resp.Message.Content)
	assert.Equal(t, []string{"m1"}, stub.Models())
}

func TestCompletionStub_ScriptedStatus(t *testing.T) {
	stub := NewCompletionStub(t)
	stub.Reply = func(n int, req StubRequest) StubReply {
		return StubReply{Status: http.StatusTooManyRequests}
	}
	provider, err := llm.NewProvider(llm.ProviderConfig{Type: llm.TypeOpenAICompatible, BaseURL: stub.URL()})
	require.NoError(t, err)

	_, err = provider.Chat(context.Background(), llm.ChatRequest{Model: "m1", Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, llm.FailureRateLimited, llm.Classify(err))
}

func TestHistoryHelpers(t *testing.T) {
	backend := SetupHistory(t)
	InsertTestRun(t, backend, "src", 5, 1, time.Now())

	runs, err := backend.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Files)
}

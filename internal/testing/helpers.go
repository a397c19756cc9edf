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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kraklabs/codedoc/pkg/storage"
)

// WriteCorpus writes files (slash-separated relative path -> contents) under
// a fresh temp directory and returns its path.
func WriteCorpus(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for rel, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

// WriteZip packs files into a zip archive in a temp directory and returns
// the archive path.
func WriteZip(t *testing.T, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, contents := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(contents)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

// StubRequest is one chat completion request seen by CompletionStub.
type StubRequest struct {
	Model       string
	Prompt      string // content of the last message
	System      string
	MaxTokens   int
	Temperature float64
	Header      http.Header
}

// StubReply is the scripted answer to a request. A zero Status means 200.
type StubReply struct {
	Status  int
	Content string
	Delay   time.Duration
}

// CompletionStub is a scripted OpenAI-compatible completion server.
type CompletionStub struct {
	// Reply decides the answer to the n-th request (1-based). Nil answers
	// with NumberedReply.
	Reply func(n int, req StubRequest) StubReply

	server *httptest.Server
	mu     sync.Mutex
	reqs   []StubRequest
}

// NewCompletionStub starts a stub that is closed when the test ends.
func NewCompletionStub(t *testing.T) *CompletionStub {
	t.Helper()

	s := &CompletionStub{}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

// URL is the base URL to configure the provider with.
func (s *CompletionStub) URL() string { return s.server.URL }

// Requests returns a copy of every request received so far.
func (s *CompletionStub) Requests() []StubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubRequest, len(s.reqs))
	copy(out, s.reqs)
	return out
}

// Models returns the model of every request, in order.
func (s *CompletionStub) Models() []string {
	reqs := s.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Model
	}
	return out
}

func (s *CompletionStub) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}

	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	req := StubRequest{
		Model:       body.Model,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		Header:      r.Header.Clone(),
	}
	for _, m := range body.Messages {
		switch m.Role {
		case "system":
			req.System = m.Content
		default:
			req.Prompt = m.Content
		}
	}

	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	n := len(s.reqs)
	reply := s.Reply
	s.mu.Unlock()

	var out StubReply
	if reply != nil {
		out = reply(n, req)
	} else {
		out = NumberedReply(req.Prompt)
	}

	if out.Delay > 0 {
		select {
		case <-time.After(out.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if out.Status != 0 && out.Status != http.StatusOK {
		http.Error(w, fmt.Sprintf(`{"error":{"code":%d}}`, out.Status), out.Status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model": req.Model,
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": out.Content}},
		},
		"usage": map[string]int{"prompt_tokens": len(req.Prompt) / 4, "completion_tokens": len(out.Content) / 4},
	})
}

var promptHeader = regexp.MustCompile(`(?m)^(\d+)\. (\S+) \(`)

// NumberedReply answers a batch prompt with "N. Explains <path>" per entry.
func NumberedReply(prompt string) StubReply {
	var sb strings.Builder
	for _, m := range promptHeader.FindAllStringSubmatch(prompt, -1) {
		fmt.Fprintf(&sb, "%s. Explains %s\n", m[1], m[2])
	}
	return StubReply{Content: sb.String()}
}

// SetupHistory opens a history database in a temp directory. It is closed
// when the test ends.
func SetupHistory(t *testing.T) *storage.SQLiteBackend {
	t.Helper()

	backend, err := storage.NewSQLiteBackend(storage.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("failed to create history backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

// InsertTestRun records a run summary without batches.
func InsertTestRun(t *testing.T, backend storage.Backend, source string, files, placeholders int, started time.Time) *storage.Run {
	t.Helper()

	run := &storage.Run{
		ID:           storage.NewRunID(started),
		Source:       source,
		StartedAt:    started,
		Files:        files,
		Placeholders: placeholders,
		Models:       []string{"test/model"},
	}
	if err := backend.RecordRun(context.Background(), run); err != nil {
		t.Fatalf("failed to insert run: %v", err)
	}
	return run
}

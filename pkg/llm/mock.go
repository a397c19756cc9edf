// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0


package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// =============================================================================
// MOCK PROVIDER (for testing)
// =============================================================================

// MockResponse is one scripted reply. Err takes precedence over Text.
type MockResponse struct {
	Text string
	Err  error
}

// MockProvider is a test provider that returns predictable responses.
//
// Resolution order per call: ChatFunc, then the next scripted Responses entry,
// then a synthetic numbered list with one line per prompt entry.
type MockProvider struct {
	ChatFunc  func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Responses []MockResponse

	mu    sync.Mutex
	calls []ChatRequest
}

// NewMockProvider returns a MockProvider that replays responses in order.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{Responses: responses}
}

func (p *MockProvider) Name() string { return TypeMock }

// Calls returns a copy of every request received so far.
func (p *MockProvider) Calls() []ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChatRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var scripted *MockResponse
	if p.ChatFunc == nil && len(p.Responses) > 0 {
		r := p.Responses[0]
		p.Responses = p.Responses[1:]
		scripted = &r
	}
	p.mu.Unlock()

	if p.ChatFunc != nil {
		return p.ChatFunc(ctx, req)
	}
	if scripted != nil {
		if scripted.Err != nil {
			return nil, scripted.Err
		}
		return &ChatResponse{Message: Message{Role: "assistant", Content: scripted.Text}, Model: req.Model}, nil
	}

	lastMsg := ""
	if len(req.Messages) > 0 {
		lastMsg = req.Messages[len(req.Messages)-1].Content
	}
	return &ChatResponse{
		Message: Message{Role: "assistant", Content: mockNumberedList(lastMsg)},
		Model:   req.Model,
	}, nil
}

var mockEntryHeader = regexp.MustCompile(`(?m)^(\d+)\. (\S+) \([^)]*\):$`)

// mockNumberedList answers a batch prompt with one line per entry header.
func mockNumberedList(prompt string) string {
	var sb strings.Builder
	for _, m := range mockEntryHeader.FindAllStringSubmatch(prompt, -1) {
		fmt.Fprintf(&sb, "%s. [mock] Summary of %s.\n", m[1], m[2])
	}
	if sb.Len() == 0 {
		return fmt.Sprintf("[mock] Response to: %.50s...", prompt)
	}
	return sb.String()
}

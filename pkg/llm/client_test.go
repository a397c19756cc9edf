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
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete_BuildsRequest(t *testing.T) {
	mock := NewMockProvider(MockResponse{Text: "1. ok"})
	client := NewClient(mock, DefaultClientConfig(), nil)

	text, err := client.Complete(context.Background(), "Explain this", "model-a")
	require.NoError(t, err)
	assert.Equal(t, "1. ok", text)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, "model-a", req.Model)
	assert.Equal(t, 300, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "You are a helpful programming tutor. Be concise.", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "Explain this", req.Messages[1].Content)
}

func TestClient_Complete_TruncatesPrompt(t *testing.T) {
	mock := NewMockProvider(MockResponse{Text: "x"})
	client := NewClient(mock, DefaultClientConfig(), nil)

	long := strings.Repeat("a", 9000)
	_, err := client.Complete(context.Background(), long, "m")
	require.NoError(t, err)

	got := mock.Calls()[0].Messages[1].Content
	assert.Len(t, got, 8000)
}

func TestClient_Complete_StripsNonASCII(t *testing.T) {
	mock := NewMockProvider(MockResponse{Text: "1. Parses ✓ input — fast"})
	client := NewClient(mock, DefaultClientConfig(), nil)

	text, err := client.Complete(context.Background(), "p", "m")
	require.NoError(t, err)
	assert.Equal(t, "1. Parses  input  fast", text)
}

func TestClient_Complete_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"rate limited", &StatusError{Provider: "openrouter", StatusCode: 429}, FailureRateLimited},
		{"bad request", &StatusError{Provider: "openrouter", StatusCode: 400}, FailureInvalidRequest},
		{"server error", &StatusError{Provider: "openrouter", StatusCode: 503}, FailureTransient},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, FailureTransient},
		{"deadline", fmt.Errorf("openrouter chat: %w", context.DeadlineExceeded), FailureTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(NewMockProvider(MockResponse{Err: tt.err}), DefaultClientConfig(), nil)

			text, err := client.Complete(context.Background(), "p", "model-x")
			assert.Empty(t, text)

			var ce *CompletionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.want, ce.Kind)
			assert.Equal(t, "model-x", ce.Model)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClient_Complete_Timeout(t *testing.T) {
	mock := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := DefaultClientConfig()
	cfg.Timeout = 10 * time.Millisecond
	client := NewClient(mock, cfg, nil)

	_, err := client.Complete(context.Background(), "p", "m")
	assert.Equal(t, FailureTransient, Classify(err))
}

func TestClient_Complete_CallerCancel(t *testing.T) {
	mock := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	client := NewClient(mock, DefaultClientConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, "p", "m")
	assert.Equal(t, FailureCanceled, Classify(err))
}

func TestClient_Complete_RecoversPanic(t *testing.T) {
	mock := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		panic("provider bug")
	}}
	client := NewClient(mock, DefaultClientConfig(), nil)

	_, err := client.Complete(context.Background(), "p", "m")
	assert.Equal(t, FailureTransient, Classify(err))
	assert.Contains(t, err.Error(), "provider bug")
}

func TestTruncatePrompt(t *testing.T) {
	assert.Equal(t, "abc", TruncatePrompt("abc", 10))
	assert.Equal(t, "ab", TruncatePrompt("abc", 2))
	assert.Equal(t, "héé", TruncatePrompt("hééllo", 3))
	assert.Equal(t, "abc", TruncatePrompt("abc", 0))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureNone, Classify(nil))
	assert.Equal(t, FailureCanceled, Classify(context.Canceled))
	assert.Equal(t, FailureInvalidRequest, Classify(fmt.Errorf("x: %w", ErrMissingCredential)))
	assert.Equal(t, FailureTransient, Classify(errors.New("eof")))
	assert.Equal(t, FailureRateLimited, Classify(&CompletionError{Kind: FailureRateLimited, Err: errors.New("429")}))
}

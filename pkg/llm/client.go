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
	"log/slog"
	"strings"
	"time"
)

// ClientConfig tunes the Completion Client.
type ClientConfig struct {
	// SystemPrompt is sent ahead of every user prompt.
	SystemPrompt string

	// MaxTokens and Temperature are forwarded verbatim to the provider.
	MaxTokens   int
	Temperature float64

	// MaxPromptChars bounds the user prompt. Longer prompts are truncated.
	MaxPromptChars int

	// Timeout bounds one request.
	Timeout time.Duration

	// ASCIIOnly drops non-ASCII characters from responses.
	ASCIIOnly bool
}

// DefaultClientConfig returns the settings used by the annotation pipeline.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SystemPrompt:   SystemPrompts.CodeSummary,
		MaxTokens:      300,
		Temperature:    0.3,
		MaxPromptChars: 8000,
		Timeout:        45 * time.Second,
		ASCIIOnly:      true,
	}
}

// Client issues single completion requests against a Provider.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	provider Provider
	cfg      ClientConfig
	logger   *slog.Logger
}

// NewClient creates a Completion Client. Zero-valued numeric settings fall
// back to DefaultClientConfig.
func NewClient(provider Provider, cfg ClientConfig, logger *slog.Logger) *Client {
	def := DefaultClientConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = def.MaxPromptChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: provider, cfg: cfg, logger: logger}
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider { return c.provider }

// Complete performs one completion call for prompt against model.
//
// It returns the response text, or a *CompletionError whose Kind tells the
// caller how to react. Complete never retries and never panics.
func (c *Client) Complete(ctx context.Context, prompt, model string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &CompletionError{Kind: FailureTransient, Model: model, Err: fmt.Errorf("provider panic: %v", r)}
		}
	}()

	prompt = TruncatePrompt(prompt, c.cfg.MaxPromptChars)

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.Chat(reqCtx, ChatRequest{
		Messages:    BuildChatMessages(c.cfg.SystemPrompt, prompt),
		Model:       model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		kind := Classify(err)
		// Only the caller's own context counts as a cancellation.
		if kind == FailureCanceled && ctx.Err() == nil {
			kind = FailureTransient
		}
		c.logger.Debug("llm.request.failed",
			"provider", c.provider.Name(),
			"model", model,
			"kind", kind.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
		return "", &CompletionError{Kind: kind, Model: model, Err: err}
	}

	text = resp.Message.Content
	if c.cfg.ASCIIOnly {
		text = ToASCII(text)
	}
	c.logger.Debug("llm.request.ok",
		"provider", c.provider.Name(),
		"model", model,
		"chars", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// TruncatePrompt cuts prompt to at most maxChars characters.
func TruncatePrompt(prompt string, maxChars int) string {
	if maxChars <= 0 || len(prompt) <= maxChars {
		return prompt
	}
	n := 0
	for i := range prompt {
		if n == maxChars {
			return prompt[:i]
		}
		n++
	}
	return prompt
}

// ToASCII drops every non-ASCII character from s.
func ToASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, s)
}

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


// Package llm provides a unified interface for chat-completion providers
// and the single-shot Completion Client used by the annotation pipeline.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider defines the interface for chat completion backends.
type Provider interface {
	// Chat sends one chat completion request. Implementations perform exactly
	// one outbound call and never retry.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse contains the chat completion response.
type ChatResponse struct {
	Message      Message       `json:"message"`
	Model        string        `json:"model"`
	PromptTokens int           `json:"prompt_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// Provider type names accepted by NewProvider.
const (
	TypeOpenRouter       = "openrouter"
	TypeOpenAI           = "openai"
	TypeOpenAICompatible = "openai-compatible"
	TypeOllama           = "ollama"
	TypeAnthropic        = "anthropic"
	TypeMock             = "mock"
)

// Default endpoints.
const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultOpenAIURL     = "https://api.openai.com/v1"
	DefaultOllamaURL     = "http://localhost:11434"
)

// ProviderConfig holds configuration for creating providers.
type ProviderConfig struct {
	// Provider type: "openrouter", "openai", "openai-compatible", "ollama", "anthropic", "mock"
	Type string `json:"type"`

	// BaseURL for the API endpoint
	BaseURL string `json:"base_url,omitempty"`

	// APIKey for authenticated providers. When empty the provider's
	// conventional environment variable is consulted.
	APIKey string `json:"api_key,omitempty"`

	// Timeout is a transport-level backstop; callers normally bound each
	// request with a context deadline.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Referer and Title are sent as HTTP-Referer and X-Title to OpenRouter.
	Referer string `json:"referer,omitempty"`
	Title   string `json:"title,omitempty"`

	// HTTPClient overrides the HTTP client (tests).
	HTTPClient *http.Client `json:"-"`
}

// NewProvider creates a Provider based on configuration.
//
// Keyed providers fail here, before any request is made, when no API key can
// be found. The returned error wraps ErrMissingCredential.
//
// Environment variables:
//   - OPENROUTER_API_KEY: OpenRouter API key
//   - OPENAI_API_KEY, OPENAI_BASE_URL: OpenAI and compatible APIs
//   - OLLAMA_HOST: Ollama server URL (default: http://localhost:11434)
//   - ANTHROPIC_API_KEY: Anthropic API key
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	switch strings.ToLower(cfg.Type) {
	case TypeOpenRouter, "":
		return newOpenRouterProvider(cfg)
	case TypeOpenAI:
		return newOpenAIProvider(cfg, true)
	case TypeOpenAICompatible:
		return newOpenAIProvider(cfg, false)
	case TypeOllama, "local":
		return newOllamaProvider(cfg), nil
	case TypeAnthropic, "claude":
		return newAnthropicProvider(cfg)
	case TypeMock, "test":
		return &MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider type: %s (supported: openrouter, openai, openai-compatible, ollama, anthropic, mock)", cfg.Type)
	}
}

func httpClientFor(cfg ProviderConfig) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{Timeout: cfg.Timeout}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// OPENAI-COMPATIBLE PROVIDER
// =============================================================================

type openaiProvider struct {
	name    string
	baseURL string
	apiKey  string
	headers map[string]string
	client  *http.Client
}

func newOpenRouterProvider(cfg ProviderConfig) (*openaiProvider, error) {
	apiKey := firstNonEmpty(cfg.APIKey, os.Getenv("OPENROUTER_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter: %w (set OPENROUTER_API_KEY)", ErrMissingCredential)
	}
	return &openaiProvider{
		name:    TypeOpenRouter,
		baseURL: strings.TrimSuffix(firstNonEmpty(cfg.BaseURL, DefaultOpenRouterURL), "/"),
		apiKey:  apiKey,
		headers: map[string]string{
			"HTTP-Referer": firstNonEmpty(cfg.Referer, "http://localhost"),
			"X-Title":      firstNonEmpty(cfg.Title, "codedoc"),
		},
		client: httpClientFor(cfg),
	}, nil
}

func newOpenAIProvider(cfg ProviderConfig, requireKey bool) (*openaiProvider, error) {
	apiKey := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
	if requireKey && apiKey == "" {
		return nil, fmt.Errorf("openai: %w (set OPENAI_API_KEY)", ErrMissingCredential)
	}
	return &openaiProvider{
		name:    TypeOpenAI,
		baseURL: strings.TrimSuffix(firstNonEmpty(cfg.BaseURL, os.Getenv("OPENAI_BASE_URL"), DefaultOpenAIURL), "/"),
		apiKey:  apiKey,
		client:  httpClientFor(cfg),
	}, nil
}

func (p *openaiProvider) Name() string { return p.name }

func (p *openaiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("%s: model not specified: %w", p.name, ErrInvalidRequest)
	}

	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", p.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(p.name, resp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices: %w", p.name, ErrTransient)
	}

	return &ChatResponse{
		Message: Message{
			Role:    result.Choices[0].Message.Role,
			Content: result.Choices[0].Message.Content,
		},
		Model:        firstNonEmpty(result.Model, req.Model),
		PromptTokens: result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		Duration:     time.Since(start),
	}, nil
}

// =============================================================================
// OLLAMA PROVIDER
// =============================================================================

type ollamaProvider struct {
	baseURL string
	client  *http.Client
}

func newOllamaProvider(cfg ProviderConfig) *ollamaProvider {
	baseURL := firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_HOST"), os.Getenv("OLLAMA_BASE_URL"), DefaultOllamaURL)
	return &ollamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClientFor(cfg),
	}
}

func (p *ollamaProvider) Name() string { return TypeOllama }

func (p *ollamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("ollama: model not specified: %w", ErrInvalidRequest)
	}

	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
	}
	if len(options) > 0 {
		payload["options"] = options
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(TypeOllama, resp)
	}

	var result struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Model           string `json:"model"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	return &ChatResponse{
		Message: Message{
			Role:    result.Message.Role,
			Content: result.Message.Content,
		},
		Model:        firstNonEmpty(result.Model, req.Model),
		PromptTokens: result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		Duration:     time.Since(start),
	}, nil
}

func newStatusError(provider string, resp *http.Response) *StatusError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(bodyBytes)),
	}
}

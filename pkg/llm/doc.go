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


// Package llm provides a unified interface for chat-completion providers.
//
// The package has two layers. A [Provider] performs exactly one chat
// request against a backend. The [Client] wraps a provider with the
// settings of the annotation pipeline (system prompt, token budget,
// temperature, prompt truncation, per-request timeout) and turns every
// failure into a classified [CompletionError].
//
// # Supported Providers
//
//   - OpenRouter: default, OpenAI-compatible endpoint with free model tiers
//   - OpenAI: api.openai.com or any compatible server ("openai-compatible"
//     does not require a key)
//   - Ollama: local models, no API key required
//   - Anthropic: Claude models through the official SDK
//   - Mock: scripted responses for tests and offline runs
//
// # Quick Start
//
//	provider, err := llm.NewProvider(llm.ProviderConfig{Type: "openrouter"})
//	if errors.Is(err, llm.ErrMissingCredential) {
//	    // fatal: nothing has been sent yet
//	}
//
//	client := llm.NewClient(provider, llm.DefaultClientConfig(), logger)
//	text, err := client.Complete(ctx, prompt, "qwen/qwen3-coder:free")
//	switch llm.Classify(err) {
//	case llm.FailureNone:
//	    // use text
//	case llm.FailureRateLimited:
//	    // rotate to the next model and back off
//	case llm.FailureTransient:
//	    // back off and retry the same model
//	case llm.FailureInvalidRequest:
//	    // do not retry
//	}
//
// # Failure Classification
//
// HTTP 429 is the only rate-limit signal. Other 4xx responses (except 408)
// are rejected requests. Timeouts, connection errors, 408, 5xx and
// undecodable bodies are transient. Providers never retry on their own;
// retry and model rotation live with the caller.
//
// # Environment Variables
//
//   - OPENROUTER_API_KEY: OpenRouter API key
//   - OPENAI_API_KEY, OPENAI_BASE_URL: OpenAI and compatible services
//   - OLLAMA_HOST: Ollama server URL (default: http://localhost:11434)
//   - ANTHROPIC_API_KEY: Anthropic API key
package llm

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
	"net/http"
)

// Sentinel errors used to classify completion failures.
var (
	// ErrRateLimited marks a service-reported rate limit (HTTP 429).
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient marks request-level failures worth retrying on the same model.
	ErrTransient = errors.New("transient failure")

	// ErrInvalidRequest marks requests the service rejected as malformed.
	// Retrying cannot help.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMissingCredential is returned when a keyed provider has no API key.
	ErrMissingCredential = errors.New("missing API credential")
)

// StatusError is a non-2xx response from a completion endpoint.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s chat error (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s chat error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Is maps the status code onto the classification sentinels so callers can
// use errors.Is without knowing about StatusError.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrInvalidRequest:
		return e.StatusCode >= 400 && e.StatusCode < 500 &&
			e.StatusCode != http.StatusTooManyRequests &&
			e.StatusCode != http.StatusRequestTimeout
	case ErrTransient:
		return e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500
	}
	return false
}

// FailureKind classifies the outcome of one completion attempt.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRateLimited
	FailureTransient
	FailureInvalidRequest
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureRateLimited:
		return "rate_limited"
	case FailureTransient:
		return "transient"
	case FailureInvalidRequest:
		return "invalid_request"
	case FailureCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Classify maps an error returned by a Provider or Client onto a FailureKind.
// Anything that is not a rate limit, a rejected request, or a caller
// cancellation is transient: network errors, timeouts, 5xx, bad payloads.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var ce *CompletionError
	if errors.As(err, &ce) && ce.Kind != FailureNone {
		return ce.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrMissingCredential):
		return FailureInvalidRequest
	default:
		return FailureTransient
	}
}

// CompletionError is the classified failure returned by Client.Complete.
type CompletionError struct {
	Kind  FailureKind
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion %s (model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

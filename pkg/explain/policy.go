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

package explain

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kraklabs/codedoc/pkg/llm"
)

// BackoffConfig holds the wait parameters for both retryable failure kinds.
type BackoffConfig struct {
	// MaxAttempts is the total attempt budget for one batch across the whole
	// model chain, not per model.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1"`

	RateLimitBase   time.Duration `yaml:"rate_limit_base"`
	RateLimitCap    time.Duration `yaml:"rate_limit_cap"`
	RateLimitJitter time.Duration `yaml:"rate_limit_jitter"`

	TransientBase   time.Duration `yaml:"transient_base"`
	TransientCap    time.Duration `yaml:"transient_cap"`
	TransientJitter time.Duration `yaml:"transient_jitter"`
}

// DefaultBackoffConfig returns the production retry settings.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxAttempts:     3,
		RateLimitBase:   5 * time.Second,
		RateLimitCap:    120 * time.Second,
		RateLimitJitter: 5 * time.Second,
		TransientBase:   time.Second,
		TransientCap:    30 * time.Second,
		TransientJitter: 3 * time.Second,
	}
}

// Outcome is what the policy tells the caller to do after a failed attempt.
type Outcome int

const (
	// OutcomeRetry means wait, then try again with NextModelIndex.
	OutcomeRetry Outcome = iota
	// OutcomeExhausted means stop and record placeholders. It covers both an
	// empty budget and requests that must not be retried.
	OutcomeExhausted
	// OutcomeCanceled means the caller abandoned the run.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetry:
		return "retry"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCanceled:
		return "canceled"
	}
	return "unknown"
}

// Decision is the policy's answer for one failed attempt.
type Decision struct {
	Retry          bool
	NextModelIndex int
	Wait           time.Duration
	Outcome        Outcome
}

// Policy decides retries, model rotation and backoff waits.
// It is safe for concurrent use.
type Policy struct {
	cfg      BackoffConfig
	chainLen int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy creates a policy for a model chain of chainLen entries.
// A nil rng uses a time-seeded source.
func NewPolicy(cfg BackoffConfig, chainLen int, rng *rand.Rand) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if chainLen < 1 {
		chainLen = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Policy{cfg: cfg, chainLen: chainLen, rng: rng}
}

// MaxAttempts returns the attempt budget per batch.
func (p *Policy) MaxAttempts() int { return p.cfg.MaxAttempts }

// Decide handles a failed attempt. attempt is the zero-based number of the
// attempt that just failed; retriesRemaining counts attempts still allowed
// after it.
//
// Rate limits rotate to the next model in the chain, even when the budget is
// spent, so the following batch starts on a different model. Transient
// failures keep the model. Rejected requests and cancellations never retry.
func (p *Policy) Decide(kind llm.FailureKind, attempt, modelIndex, retriesRemaining int) Decision {
	switch kind {
	case llm.FailureCanceled:
		return Decision{NextModelIndex: modelIndex, Outcome: OutcomeCanceled}
	case llm.FailureInvalidRequest, llm.FailureNone:
		return Decision{NextModelIndex: modelIndex, Outcome: OutcomeExhausted}
	}

	next := modelIndex
	if kind == llm.FailureRateLimited {
		next = (modelIndex + 1) % p.chainLen
	}
	if retriesRemaining <= 0 {
		return Decision{NextModelIndex: next, Outcome: OutcomeExhausted}
	}
	return Decision{
		Retry:          true,
		NextModelIndex: next,
		Wait:           p.wait(kind, attempt),
		Outcome:        OutcomeRetry,
	}
}

// BaseWait returns the wait for a failed attempt without jitter.
func (p *Policy) BaseWait(kind llm.FailureKind, attempt int) time.Duration {
	base, capDur, _ := p.params(kind)
	return expBackoff(base, attempt, capDur)
}

func (p *Policy) wait(kind llm.FailureKind, attempt int) time.Duration {
	base, capDur, jitter := p.params(kind)
	d := expBackoff(base, attempt, 0)
	if jitter > 0 {
		p.mu.Lock()
		d += time.Duration(p.rng.Int63n(int64(jitter)))
		p.mu.Unlock()
	}
	if capDur > 0 && d > capDur {
		d = capDur
	}
	return d
}

func (p *Policy) params(kind llm.FailureKind) (base, capDur, jitter time.Duration) {
	if kind == llm.FailureRateLimited {
		return p.cfg.RateLimitBase, p.cfg.RateLimitCap, p.cfg.RateLimitJitter
	}
	return p.cfg.TransientBase, p.cfg.TransientCap, p.cfg.TransientJitter
}

// expBackoff returns base * 2^attempt, saturating at capDur when capDur > 0.
func expBackoff(base time.Duration, attempt int, capDur time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	exp := float64(base) * math.Pow(2, float64(attempt))
	if exp > float64(math.MaxInt64/2) {
		exp = float64(math.MaxInt64 / 2)
	}
	d := time.Duration(exp)
	if capDur > 0 && d > capDur {
		d = capDur
	}
	return d
}

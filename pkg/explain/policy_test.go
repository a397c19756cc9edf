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
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/codedoc/pkg/llm"
)

func newTestPolicy(chainLen int) *Policy {
	return NewPolicy(DefaultBackoffConfig(), chainLen, rand.New(rand.NewSource(1)))
}

func TestPolicy_RateLimitRotates(t *testing.T) {
	const chain = 3
	p := newTestPolicy(chain)

	for idx := 0; idx < chain; idx++ {
		for attempt := 0; attempt < 2; attempt++ {
			d := p.Decide(llm.FailureRateLimited, attempt, idx, 2-attempt)
			assert.True(t, d.Retry)
			assert.Equal(t, OutcomeRetry, d.Outcome)
			assert.Equal(t, (idx+1)%chain, d.NextModelIndex, "idx=%d attempt=%d", idx, attempt)
		}
	}
}

func TestPolicy_RateLimitRotatesEvenWhenExhausted(t *testing.T) {
	p := newTestPolicy(2)
	d := p.Decide(llm.FailureRateLimited, 2, 1, 0)
	assert.False(t, d.Retry)
	assert.Equal(t, OutcomeExhausted, d.Outcome)
	assert.Equal(t, 0, d.NextModelIndex)
	assert.Zero(t, d.Wait)
}

func TestPolicy_TransientKeepsModel(t *testing.T) {
	p := newTestPolicy(3)
	d := p.Decide(llm.FailureTransient, 0, 2, 2)
	assert.True(t, d.Retry)
	assert.Equal(t, 2, d.NextModelIndex)
}

func TestPolicy_InvalidRequestNeverRetries(t *testing.T) {
	p := newTestPolicy(3)
	d := p.Decide(llm.FailureInvalidRequest, 0, 1, 2)
	assert.False(t, d.Retry)
	assert.Equal(t, OutcomeExhausted, d.Outcome)
	assert.Equal(t, 1, d.NextModelIndex)
}

func TestPolicy_CanceledNeverRetries(t *testing.T) {
	p := newTestPolicy(3)
	d := p.Decide(llm.FailureCanceled, 0, 0, 2)
	assert.False(t, d.Retry)
	assert.Equal(t, OutcomeCanceled, d.Outcome)
}

func TestPolicy_WaitBounds(t *testing.T) {
	cfg := DefaultBackoffConfig()
	p := NewPolicy(cfg, 3, rand.New(rand.NewSource(42)))

	for attempt := 0; attempt < 6; attempt++ {
		for i := 0; i < 50; i++ {
			rl := p.Decide(llm.FailureRateLimited, attempt, 0, 1).Wait
			base := cfg.RateLimitBase * time.Duration(1<<attempt)
			assert.GreaterOrEqual(t, rl, min(base, cfg.RateLimitCap))
			assert.LessOrEqual(t, rl, cfg.RateLimitCap)
			if base+cfg.RateLimitJitter < cfg.RateLimitCap {
				assert.Less(t, rl, base+cfg.RateLimitJitter)
			}

			tr := p.Decide(llm.FailureTransient, attempt, 0, 1).Wait
			tbase := cfg.TransientBase * time.Duration(1<<attempt)
			assert.GreaterOrEqual(t, tr, min(tbase, cfg.TransientCap))
			assert.LessOrEqual(t, tr, cfg.TransientCap)
		}
	}
}

func TestPolicy_BaseWaitMonotonic(t *testing.T) {
	p := newTestPolicy(3)
	for _, kind := range []llm.FailureKind{llm.FailureRateLimited, llm.FailureTransient} {
		prev := time.Duration(0)
		for attempt := 0; attempt < 40; attempt++ {
			w := p.BaseWait(kind, attempt)
			assert.GreaterOrEqual(t, w, prev, "kind=%v attempt=%d", kind, attempt)
			prev = w
		}
	}
	assert.Equal(t, 5*time.Second, p.BaseWait(llm.FailureRateLimited, 0))
	assert.Equal(t, 20*time.Second, p.BaseWait(llm.FailureRateLimited, 2))
	assert.Equal(t, 120*time.Second, p.BaseWait(llm.FailureRateLimited, 10))
	assert.Equal(t, 30*time.Second, p.BaseWait(llm.FailureTransient, 10))
}

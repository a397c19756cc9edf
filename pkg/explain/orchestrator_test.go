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
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/llm"
)

func makeEntries(n int) []corpus.Entry {
	entries := make([]corpus.Entry, n)
	for i := range entries {
		entries[i] = corpus.Entry{
			RelPath:   fmt.Sprintf("pkg/f%d.py", i+1),
			Contents:  fmt.Sprintf("def f%d():\n    pass\n", i+1),
			Extension: "py",
			Language:  "python",
		}
	}
	return entries
}

var promptEntry = regexp.MustCompile(`(?m)^(\d+)\. (\S+) \(`)

// answer replies to a batch prompt with one numbered line per file.
func answer(prompt string) string {
	var sb strings.Builder
	for _, m := range promptEntry.FindAllStringSubmatch(prompt, -1) {
		fmt.Fprintf(&sb, "%s. Explains %s\n", m[1], m[2])
	}
	return sb.String()
}

type call struct {
	prompt string
	model  string
}

// fakeCompleter records calls and delegates to fn.
type fakeCompleter struct {
	mu    sync.Mutex
	calls []call
	fn    func(n int, prompt, model string) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt, model string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{prompt: prompt, model: model})
	n := len(f.calls)
	f.mu.Unlock()
	return f.fn(n, prompt, model)
}

func (f *fakeCompleter) models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.model
	}
	return out
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func failure(kind llm.FailureKind, model string) error {
	return &llm.CompletionError{Kind: kind, Model: model, Err: errors.New(kind.String())}
}

func newTestOrchestrator(t *testing.T, c Completer, sleeper *sleepRecorder, models ...string) *Orchestrator {
	t.Helper()
	if len(models) == 0 {
		models = []string{"model-a", "model-b"}
	}
	opts := DefaultOptions(models...)
	opts.Sleep = sleeper.sleep
	opts.Rand = rand.New(rand.NewSource(7))
	o, err := New(c, opts, nil)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_SevenFilesSecondBatchTimesOut(t *testing.T) {
	fc := &fakeCompleter{fn: func(_ int, prompt, model string) (string, error) {
		if strings.Contains(prompt, "pkg/f3.py") {
			return "", &llm.CompletionError{Kind: llm.FailureTransient, Model: model, Err: context.DeadlineExceeded}
		}
		return answer(prompt), nil
	}}
	sleeper := &sleepRecorder{}
	o := newTestOrchestrator(t, fc, sleeper)

	res, err := o.Run(context.Background(), makeEntries(7))
	require.NoError(t, err)

	assert.Equal(t, 2, res.BatchSize)
	require.Len(t, res.Explanations, 7)
	assert.Equal(t, []string{
		"Explains pkg/f1.py",
		"Explains pkg/f2.py",
		"Code file 3",
		"Code file 4",
		"Explains pkg/f5.py",
		"Explains pkg/f6.py",
		"Explains pkg/f7.py",
	}, res.Explanations)

	require.Len(t, res.Batches, 4)
	failed := res.Batches[1]
	assert.Equal(t, BatchExhausted, failed.Outcome)
	assert.Equal(t, 3, failed.Attempts)
	assert.False(t, failed.Genuine)
	assert.Equal(t, StateRecorded, failed.State)
	assert.NotEmpty(t, failed.LastError)
	assert.Equal(t, 2, res.Placeholders)

	// Transient failures keep the model.
	assert.Equal(t, []string{"model-a", "model-a", "model-a"}, failed.Models)

	// Two backoff waits inside batch 2 plus three pauses between four batches.
	assert.Len(t, sleeper.waits, 5)
}

func TestOrchestrator_RateLimitedEveryAttemptYieldsPlaceholders(t *testing.T) {
	fc := &fakeCompleter{fn: func(_ int, _, model string) (string, error) {
		return "", failure(llm.FailureRateLimited, model)
	}}
	sleeper := &sleepRecorder{}
	o := newTestOrchestrator(t, fc, sleeper, "a", "b", "c")

	res, err := o.Run(context.Background(), makeEntries(2))
	require.NoError(t, err)

	assert.Equal(t, []string{"Code file 1", "Code file 2"}, res.Explanations)
	assert.Equal(t, []string{"a", "b", "c"}, fc.models())
	assert.Equal(t, BatchExhausted, res.Batches[0].Outcome)

	require.Len(t, sleeper.waits, 2)
	assert.GreaterOrEqual(t, sleeper.waits[0], 5*time.Second)
	assert.GreaterOrEqual(t, sleeper.waits[1], 10*time.Second)
}

func TestOrchestrator_RotationPersistsAcrossBatches(t *testing.T) {
	fc := &fakeCompleter{fn: func(n int, prompt, model string) (string, error) {
		if n == 1 {
			return "", failure(llm.FailureRateLimited, model)
		}
		return answer(prompt), nil
	}}
	o := newTestOrchestrator(t, fc, &sleepRecorder{}, "a", "b", "c")

	res, err := o.Run(context.Background(), makeEntries(4))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "b"}, fc.models())
	assert.Zero(t, res.Placeholders)
	assert.Equal(t, 3, res.Attempts)
}

func TestOrchestrator_InvalidRequestIsNotRetried(t *testing.T) {
	fc := &fakeCompleter{fn: func(_ int, _, model string) (string, error) {
		return "", failure(llm.FailureInvalidRequest, model)
	}}
	sleeper := &sleepRecorder{}
	o := newTestOrchestrator(t, fc, sleeper)

	res, err := o.Run(context.Background(), makeEntries(2))
	require.NoError(t, err)

	assert.Len(t, fc.models(), 1)
	assert.Equal(t, BatchRejected, res.Batches[0].Outcome)
	assert.Equal(t, []string{"Code file 1", "Code file 2"}, res.Explanations)
	assert.Empty(t, sleeper.waits)
}

func TestOrchestrator_ParseMismatchUsesCorpusPositions(t *testing.T) {
	fc := &fakeCompleter{fn: func(n int, prompt, _ string) (string, error) {
		if n == 2 {
			return "1. Only one line", nil
		}
		return answer(prompt), nil
	}}
	o := newTestOrchestrator(t, fc, &sleepRecorder{})

	res, err := o.Run(context.Background(), makeEntries(4))
	require.NoError(t, err)

	assert.Equal(t, []string{"Explains pkg/f1.py", "Explains pkg/f2.py", "Code file 3", "Code file 4"}, res.Explanations)
	assert.Equal(t, BatchParseMismatch, res.Batches[1].Outcome)
	assert.Equal(t, 1, res.Batches[1].Attempts, "a parse mismatch is not retried")
}

func TestOrchestrator_EmptyItemGetsPlaceholder(t *testing.T) {
	fc := &fakeCompleter{fn: func(_ int, _, _ string) (string, error) {
		return "1. Parses input\n2.", nil
	}}
	o := newTestOrchestrator(t, fc, &sleepRecorder{})

	res, err := o.Run(context.Background(), makeEntries(2))
	require.NoError(t, err)

	assert.Equal(t, []string{"Parses input", "Code file 2"}, res.Explanations)
	assert.True(t, res.Batches[0].Genuine)
	assert.Equal(t, 1, res.Placeholders)
}

func TestOrchestrator_PacingBetweenBatchesOnly(t *testing.T) {
	fc := &fakeCompleter{fn: func(_ int, prompt, _ string) (string, error) { return answer(prompt), nil }}
	sleeper := &sleepRecorder{}
	o := newTestOrchestrator(t, fc, sleeper)

	_, err := o.Run(context.Background(), makeEntries(6))
	require.NoError(t, err)

	require.Len(t, sleeper.waits, 2)
	for _, w := range sleeper.waits {
		assert.GreaterOrEqual(t, w, 2*time.Second)
		assert.LessOrEqual(t, w, 5*time.Second)
	}
}

func TestOrchestrator_CancelAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := &fakeCompleter{fn: func(_ int, prompt, _ string) (string, error) { return answer(prompt), nil }}
	opts := DefaultOptions("a")
	opts.Sleep = (&sleepRecorder{}).sleep
	opts.OnBatch = func(r BatchReport) {
		if r.Index == 0 {
			cancel()
		}
	}
	o, err := New(fc, opts, nil)
	require.NoError(t, err)

	res, err := o.Run(ctx, makeEntries(6))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Canceled)

	assert.Len(t, fc.calls, 1)
	assert.Equal(t, []string{
		"Explains pkg/f1.py", "Explains pkg/f2.py",
		"Code file 3", "Code file 4", "Code file 5", "Code file 6",
	}, res.Explanations)
	require.Len(t, res.Batches, 3)
	assert.Equal(t, BatchCanceled, res.Batches[1].Outcome)
	assert.Equal(t, BatchCanceled, res.Batches[2].Outcome)
}

func TestOrchestrator_CancelDuringLastBatchBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := &fakeCompleter{fn: func(_ int, _, model string) (string, error) {
		cancel()
		return "", failure(llm.FailureTransient, model)
	}}
	o := newTestOrchestrator(t, fc, &sleepRecorder{}, "a")

	res, err := o.Run(ctx, makeEntries(2))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Canceled)

	require.Len(t, res.Batches, 1)
	assert.Equal(t, BatchCanceled, res.Batches[0].Outcome)
	assert.Equal(t, []string{"Code file 1", "Code file 2"}, res.Explanations)
	assert.Len(t, fc.calls, 1)
}

func TestOrchestrator_CardinalityUnderRandomFailures(t *testing.T) {
	kinds := []llm.FailureKind{llm.FailureNone, llm.FailureRateLimited, llm.FailureTransient, llm.FailureInvalidRequest}

	for seed := int64(1); seed <= 30; seed++ {
		rng := rand.New(rand.NewSource(seed))
		n := rng.Intn(26)

		fc := &fakeCompleter{fn: func(_ int, prompt, model string) (string, error) {
			switch kind := kinds[rng.Intn(len(kinds))]; kind {
			case llm.FailureNone:
				switch rng.Intn(3) {
				case 0:
					return "garbled answer", nil
				case 1:
					return answer(prompt) + "99. extra line", nil
				}
				return answer(prompt), nil
			default:
				return "", failure(kind, model)
			}
		}}
		o := newTestOrchestrator(t, fc, &sleepRecorder{}, "a", "b", "c")

		res, err := o.Run(context.Background(), makeEntries(n))
		require.NoError(t, err)
		require.Len(t, res.Explanations, n, "seed %d", seed)
		for i, e := range res.Explanations {
			assert.NotEmpty(t, e, "seed %d slot %d", seed, i)
		}

		covered := 0
		for _, b := range res.Batches {
			assert.Equal(t, StateRecorded, b.State)
			assert.LessOrEqual(t, b.Attempts, 3)
			covered += b.Size
		}
		assert.Equal(t, n, covered, "seed %d", seed)
	}
}

func TestOrchestrator_EmptyCorpus(t *testing.T) {
	fc := &fakeCompleter{fn: func(int, string, string) (string, error) { return "", nil }}
	o := newTestOrchestrator(t, fc, &sleepRecorder{})

	res, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Explanations)
	assert.Empty(t, res.Batches)
	assert.Empty(t, fc.calls)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultOptions("a"), nil)
	assert.Error(t, err)

	_, err = New(&fakeCompleter{}, DefaultOptions(), nil)
	assert.Error(t, err)

	_, err = New(&fakeCompleter{}, DefaultOptions("a", ""), nil)
	assert.Error(t, err)
}

func TestOrchestrator_WithMockProvider(t *testing.T) {
	client := llm.NewClient(&llm.MockProvider{}, llm.DefaultClientConfig(), nil)
	o := newTestOrchestrator(t, client, &sleepRecorder{})

	res, err := o.Run(context.Background(), makeEntries(5))
	require.NoError(t, err)
	require.Len(t, res.Explanations, 5)
	assert.Zero(t, res.Placeholders)
	assert.Equal(t, "[mock] Summary of pkg/f5.py.", res.Explanations[4])
}

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
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/kraklabs/codedoc/pkg/corpus"
	"github.com/kraklabs/codedoc/pkg/llm"
)

// Completer performs one completion request. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options configures an Orchestrator.
type Options struct {
	// Models is the fallback chain, tried in order on rate limits.
	Models []string

	Batching BatchingConfig
	Backoff  BackoffConfig

	// PaceMin and PaceMax bound the random pause between batches.
	PaceMin time.Duration
	PaceMax time.Duration

	// RunID is copied into the Result.
	RunID string

	// Sleep and Rand are injectable for tests. Nil means real time and a
	// time-seeded source.
	Sleep Sleeper
	Rand  *rand.Rand

	// OnBatch is called after every batch is recorded, in batch order.
	OnBatch func(BatchReport)
}

// DefaultOptions returns production settings for the given model chain.
func DefaultOptions(models ...string) Options {
	return Options{
		Models:   models,
		Batching: DefaultBatchingConfig(),
		Backoff:  DefaultBackoffConfig(),
		PaceMin:  2 * time.Second,
		PaceMax:  5 * time.Second,
	}
}

// BatchState is the lifecycle position of one batch.
type BatchState int

const (
	StatePending BatchState = iota
	StateRequesting
	StateRetrying
	StateParsing
	StateRecorded
)

func (s BatchState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRequesting:
		return "requesting"
	case StateRetrying:
		return "retrying"
	case StateParsing:
		return "parsing"
	case StateRecorded:
		return "recorded"
	}
	return "unknown"
}

// Batch outcomes as recorded in BatchReport.Outcome.
const (
	BatchParsed        = "parsed"
	BatchParseMismatch = "parse_mismatch"
	BatchExhausted     = "exhausted"
	BatchRejected      = "rejected"
	BatchCanceled      = "canceled"
)

// BatchReport describes how one batch was recorded.
type BatchReport struct {
	Index        int           `json:"index"`
	Offset       int           `json:"offset"`
	Size         int           `json:"size"`
	State        BatchState    `json:"-"`
	Outcome      string        `json:"outcome"`
	Genuine      bool          `json:"genuine"`
	Attempts     int           `json:"attempts"`
	Models       []string      `json:"models,omitempty"`
	Placeholders int           `json:"placeholders"`
	LastError    string        `json:"last_error,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// Result is the outcome of a run. len(Explanations) always equals the
// corpus size and no explanation is empty.
type Result struct {
	RunID        string        `json:"run_id,omitempty"`
	Explanations []string      `json:"explanations"`
	Batches      []BatchReport `json:"batches"`
	BatchSize    int           `json:"batch_size"`
	Placeholders int           `json:"placeholders"`
	Attempts     int           `json:"attempts"`
	Duration     time.Duration `json:"duration_ns"`
	Canceled     bool          `json:"canceled,omitempty"`
}

// Orchestrator drives the corpus through the completion service batch by
// batch. Batches run sequentially; an Orchestrator may serve several runs
// concurrently since per-run state lives in Run.
type Orchestrator struct {
	client Completer
	opts   Options
	policy *Policy
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Orchestrator. It fails only on unusable configuration, so a
// run never starts without a client and a model chain.
func New(client Completer, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("explain: nil completion client")
	}
	if len(opts.Models) == 0 {
		return nil, errors.New("explain: model chain is empty")
	}
	for _, m := range opts.Models {
		if m == "" {
			return nil, errors.New("explain: model chain contains an empty identifier")
		}
	}
	if opts.Batching == (BatchingConfig{}) {
		opts.Batching = DefaultBatchingConfig()
	}
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff.MaxAttempts = DefaultBackoffConfig().MaxAttempts
	}
	if opts.PaceMax < opts.PaceMin {
		opts.PaceMax = opts.PaceMin
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		client: client,
		opts:   opts,
		policy: NewPolicy(opts.Backoff, len(opts.Models), rand.New(rand.NewSource(rng.Int63()))),
		logger: logger,
		rng:    rng,
	}, nil
}

// Run annotates entries and returns one explanation per entry, in corpus order.
//
// Failures inside a batch never abort the run: the batch's slots receive
// placeholders and the next batch proceeds. Cancellation is observed between
// batches and during waits; the request in flight is allowed to finish. On
// cancellation Run still returns a complete Result, together with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, entries []corpus.Entry) (*Result, error) {
	start := time.Now()
	n := len(entries)
	size := o.opts.Batching.BatchSize(n)
	batches := Partition(entries, size)

	slots := make([]string, n)
	res := &Result{
		RunID:     o.opts.RunID,
		BatchSize: size,
		Batches:   make([]BatchReport, 0, len(batches)),
	}

	o.logger.Info("explain.run.start",
		"run_id", o.opts.RunID,
		"files", n,
		"batches", len(batches),
		"batch_size", size,
		"models", o.opts.Models,
	)

	modelIndex := 0
	var runErr error
	next := 0
	for next < len(batches) {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		report := o.processBatch(ctx, batches[next], len(batches), slots, &modelIndex)
		o.record(res, report)
		next++
		if report.Outcome == BatchCanceled {
			runErr = ctx.Err()
			if runErr == nil {
				runErr = context.Canceled
			}
			break
		}

		if next < len(batches) {
			if err := o.opts.Sleep(ctx, o.paceDelay()); err != nil {
				runErr = err
				break
			}
		}
	}

	for ; next < len(batches); next++ {
		b := batches[next]
		copy(slots[b.Offset:], Placeholders(b.Offset, len(b.Entries)))
		o.record(res, BatchReport{
			Index:        b.Index,
			Offset:       b.Offset,
			Size:         len(b.Entries),
			State:        StateRecorded,
			Outcome:      BatchCanceled,
			Placeholders: len(b.Entries),
		})
	}

	res.Explanations = slots
	res.Duration = time.Since(start)
	res.Canceled = runErr != nil
	recordRun(res.Duration)

	o.logger.Info("explain.run.complete",
		"run_id", o.opts.RunID,
		"files", n,
		"placeholders", res.Placeholders,
		"attempts", res.Attempts,
		"canceled", res.Canceled,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, runErr
}

func (o *Orchestrator) record(res *Result, report BatchReport) {
	res.Batches = append(res.Batches, report)
	res.Placeholders += report.Placeholders
	res.Attempts += report.Attempts
	if o.opts.OnBatch != nil {
		o.opts.OnBatch(report)
	}
}

// processBatch runs one batch to the Recorded state and writes its slots.
func (o *Orchestrator) processBatch(ctx context.Context, b Batch, total int, slots []string, modelIndex *int) BatchReport {
	start := time.Now()
	size := len(b.Entries)
	report := BatchReport{Index: b.Index, Offset: b.Offset, Size: size, State: StatePending}
	log := o.logger.With("batch", b.Index+1, "of", total)
	log.Info("explain.batch.start", "files", size, "offset", b.Offset)

	prompt := BuildBatchPrompt(b.Entries, o.opts.Batching.SnippetChars)
	// The request in flight is never interrupted by cancellation.
	reqCtx := context.WithoutCancel(ctx)
	maxAttempts := o.policy.MaxAttempts()

	var (
		text    string
		lastErr error
		success bool
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		model := o.opts.Models[*modelIndex]
		o.transition(log, &report, StateRequesting, "attempt", attempt+1, "model", model)
		report.Attempts++
		report.Models = append(report.Models, model)

		text, lastErr = o.client.Complete(reqCtx, prompt, model)
		if lastErr == nil {
			recordAttempt("success")
			success = true
			break
		}

		kind := llm.Classify(lastErr)
		recordAttempt(kind.String())
		d := o.policy.Decide(kind, attempt, *modelIndex, maxAttempts-attempt-1)
		if d.NextModelIndex != *modelIndex {
			recordRotation()
		}
		*modelIndex = d.NextModelIndex

		if !d.Retry {
			switch {
			case d.Outcome == OutcomeCanceled:
				report.Outcome = BatchCanceled
			case kind == llm.FailureInvalidRequest:
				report.Outcome = BatchRejected
			default:
				report.Outcome = BatchExhausted
			}
			log.Error("explain.batch.failed",
				"model", model,
				"kind", kind.String(),
				"attempts", report.Attempts,
				"err", lastErr,
			)
			break
		}

		o.transition(log, &report, StateRetrying, "kind", kind.String())
		recordRetry(d.Wait)
		log.Warn("explain.batch.retry",
			"attempt", attempt+1,
			"model", model,
			"next_model", o.opts.Models[d.NextModelIndex],
			"kind", kind.String(),
			"wait_ms", d.Wait.Milliseconds(),
			"err", lastErr,
		)
		if err := o.opts.Sleep(ctx, d.Wait); err != nil {
			report.Outcome = BatchCanceled
			lastErr = err
			break
		}
	}

	if success {
		o.transition(log, &report, StateParsing)
		if items, ok := ParseNumberedList(text, size); ok {
			report.Genuine = true
			report.Outcome = BatchParsed
			for j, item := range items {
				if item == "" {
					item = Placeholder(b.Offset + j + 1)
					report.Placeholders++
				}
				slots[b.Offset+j] = item
			}
		} else {
			recordParseMismatch()
			report.Outcome = BatchParseMismatch
			report.Placeholders = size
			copy(slots[b.Offset:], Placeholders(b.Offset, size))
			log.Warn("explain.batch.parse_mismatch", "expected", size, "response_chars", len(text))
		}
	} else {
		if report.Outcome == "" {
			report.Outcome = BatchExhausted
		}
		if lastErr != nil {
			report.LastError = lastErr.Error()
		}
		report.Placeholders = size
		copy(slots[b.Offset:], Placeholders(b.Offset, size))
	}

	report.Duration = time.Since(start)
	o.transition(log, &report, StateRecorded, "outcome", report.Outcome, "attempts", report.Attempts)
	recordBatch(report.Genuine, report.Placeholders, report.Duration)
	return report
}

func (o *Orchestrator) transition(log *slog.Logger, report *BatchReport, to BatchState, attrs ...any) {
	from := report.State
	report.State = to
	log.Debug("explain.batch.state", append([]any{"from", from.String(), "to", to.String()}, attrs...)...)
}

func (o *Orchestrator) paceDelay() time.Duration {
	spread := o.opts.PaceMax - o.opts.PaceMin
	if spread <= 0 {
		return o.opts.PaceMin
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts.PaceMin + time.Duration(o.rng.Int63n(int64(spread)+1))
}

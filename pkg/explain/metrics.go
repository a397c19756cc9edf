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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsExplain holds Prometheus metrics for the annotation pipeline.
type metricsExplain struct {
	once sync.Once

	// Batches
	batchesGenuine     prometheus.Counter
	batchesPlaceholder prometheus.Counter
	parseMismatches    prometheus.Counter
	placeholderSlots   prometheus.Counter

	// Attempts
	attempts       *prometheus.CounterVec
	retries        prometheus.Counter
	modelRotations prometheus.Counter

	// Durations
	batchDuration prometheus.Histogram
	backoffWait   prometheus.Histogram
	runDuration   prometheus.Histogram
}

var expMetrics metricsExplain

func (m *metricsExplain) init() {
	m.once.Do(func() {
		m.batchesGenuine = prometheus.NewCounter(prometheus.CounterOpts{Name: "codedoc_batches_genuine_total", Help: "Batches recorded with parsed explanations"})
		m.batchesPlaceholder = prometheus.NewCounter(prometheus.CounterOpts{Name: "codedoc_batches_placeholder_total", Help: "Batches recorded with placeholders"})
		m.parseMismatches = prometheus.NewCounter(prometheus.CounterOpts{Name: "codedoc_parse_mismatches_total", Help: "Responses whose numbered items did not match the batch size"})
		m.placeholderSlots = prometheus.NewCounter(prometheus.CounterOpts{Name: "codedoc_placeholder_slots_total", Help: "Explanation slots filled with placeholders"})

		m.attempts = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "codedoc_completion_attempts_total", Help: "Completion attempts by outcome"}, []string{"outcome"})
		m.retries = prometheus.NewCounter(prometheus.CounterOpts{Name: "codedoc_completion_retries_total", Help: "Completion retries"})
		m.modelRotations = prometheus.NewCounter(prometheus.CounterOpts{Name: "codedoc_model_rotations_total", Help: "Switches to the next model in the chain"})

		buckets := []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
		m.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codedoc_batch_seconds", Help: "Time from first request to recorded batch", Buckets: buckets})
		m.backoffWait = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codedoc_backoff_wait_seconds", Help: "Backoff waits requested by the retry policy", Buckets: buckets})
		m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codedoc_run_seconds", Help: "Total annotation run duration", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}})

		prometheus.MustRegister(
			m.batchesGenuine, m.batchesPlaceholder, m.parseMismatches, m.placeholderSlots,
			m.attempts, m.retries, m.modelRotations,
			m.batchDuration, m.backoffWait, m.runDuration,
		)
	})
}

// record helpers
func recordAttempt(outcome string) { expMetrics.init(); expMetrics.attempts.WithLabelValues(outcome).Inc() }
func recordRetry(wait time.Duration) {
	expMetrics.init()
	expMetrics.retries.Inc()
	expMetrics.backoffWait.Observe(wait.Seconds())
}
func recordRotation()      { expMetrics.init(); expMetrics.modelRotations.Inc() }
func recordParseMismatch() { expMetrics.init(); expMetrics.parseMismatches.Inc() }
func recordBatch(genuine bool, placeholders int, d time.Duration) {
	expMetrics.init()
	if genuine {
		expMetrics.batchesGenuine.Inc()
	} else {
		expMetrics.batchesPlaceholder.Inc()
	}
	expMetrics.placeholderSlots.Add(float64(placeholders))
	expMetrics.batchDuration.Observe(d.Seconds())
}
func recordRun(d time.Duration) { expMetrics.init(); expMetrics.runDuration.Observe(d.Seconds()) }

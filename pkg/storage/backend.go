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

package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Backend is the interface that all history backends must implement.
type Backend interface {
	// RecordRun stores a finished run together with its batch outcomes.
	RecordRun(ctx context.Context, run *Run) error

	// ListRuns returns the most recent runs, newest first, without batches.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// GetRun returns one run including its batches.
	GetRun(ctx context.Context, id string) (*Run, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Run summarizes one annotation run.
type Run struct {
	ID           string        `json:"id"`
	Source       string        `json:"source"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Files        int           `json:"files"`
	BatchSize    int           `json:"batch_size"`
	Placeholders int           `json:"placeholders"`
	Attempts     int           `json:"attempts"`
	Canceled     bool          `json:"canceled"`
	Models       []string      `json:"models"`
	OutputDir    string        `json:"output_dir,omitempty"`
	Batches      []BatchRecord `json:"batches,omitempty"`
}

// BatchRecord is the stored outcome of one batch.
type BatchRecord struct {
	Index        int           `json:"index"`
	Offset       int           `json:"offset"`
	Size         int           `json:"size"`
	Outcome      string        `json:"outcome"`
	Genuine      bool          `json:"genuine"`
	Attempts     int           `json:"attempts"`
	Placeholders int           `json:"placeholders"`
	Models       []string      `json:"models,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(ulid.DefaultEntropy(), 0)
)

// NewRunID returns a lexically sortable run identifier for t.
func NewRunID(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), idEntropy).String()
}

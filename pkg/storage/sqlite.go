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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend implements Backend on a local SQLite database.
type SQLiteBackend struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. Defaults to ~/.codedoc/history.db.
	Path string
}

// DefaultHistoryPath returns ~/.codedoc/history.db.
func DefaultHistoryPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".codedoc", "history.db"), nil
}

// NewSQLiteBackend opens or creates the history database.
func NewSQLiteBackend(config SQLiteConfig) (*SQLiteBackend, error) {
	if config.Path == "" {
		p, err := DefaultHistoryPath()
		if err != nil {
			return nil, err
		}
		config.Path = p
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", config.Path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		source       TEXT NOT NULL,
		started_at   TEXT NOT NULL,
		duration_ms  INTEGER NOT NULL,
		files        INTEGER NOT NULL,
		batch_size   INTEGER NOT NULL,
		placeholders INTEGER NOT NULL,
		attempts     INTEGER NOT NULL,
		canceled     INTEGER NOT NULL DEFAULT 0,
		models       TEXT,
		output_dir   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS batches (
		run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx          INTEGER NOT NULL,
		offset_pos   INTEGER NOT NULL,
		size         INTEGER NOT NULL,
		outcome      TEXT NOT NULL,
		genuine      INTEGER NOT NULL,
		attempts     INTEGER NOT NULL,
		placeholders INTEGER NOT NULL,
		models       TEXT,
		last_error   TEXT,
		duration_ms  INTEGER NOT NULL,
		PRIMARY KEY (run_id, idx)
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

// RecordRun stores run and its batches in one transaction.
func (b *SQLiteBackend) RecordRun(ctx context.Context, run *Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}
	if run.ID == "" {
		run.ID = NewRunID(run.StartedAt)
	}

	models, err := json.Marshal(run.Models)
	if err != nil {
		return fmt.Errorf("marshal models: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, source, started_at, duration_ms, files, batch_size,
		                  placeholders, attempts, canceled, models, output_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.StartedAt.UTC().Format(time.RFC3339Nano), run.Duration.Milliseconds(),
		run.Files, run.BatchSize, run.Placeholders, run.Attempts, boolInt(run.Canceled),
		string(models), run.OutputDir,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, br := range run.Batches {
		bm, err := json.Marshal(br.Models)
		if err != nil {
			return fmt.Errorf("marshal batch models: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batches (run_id, idx, offset_pos, size, outcome, genuine, attempts,
			                     placeholders, models, last_error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, br.Index, br.Offset, br.Size, br.Outcome, boolInt(br.Genuine), br.Attempts,
			br.Placeholders, string(bm), br.LastError, br.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert batch %d: %w", br.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means 20.
func (b *SQLiteBackend) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, source, started_at, duration_ms, files, batch_size, placeholders,
		       attempts, canceled, models, output_dir
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID and its batches.
func (b *SQLiteBackend) GetRun(ctx context.Context, id string) (*Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}

	row := b.db.QueryRowContext(ctx, `
		SELECT id, source, started_at, duration_ms, files, batch_size, placeholders,
		       attempts, canceled, models, output_dir
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT idx, offset_pos, size, outcome, genuine, attempts, placeholders,
		       models, last_error, duration_ms
		FROM batches WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			br         BatchRecord
			genuine    int
			models     sql.NullString
			lastErr    sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&br.Index, &br.Offset, &br.Size, &br.Outcome, &genuine, &br.Attempts,
			&br.Placeholders, &models, &lastErr, &durationMS); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		br.Genuine = genuine != 0
		br.LastError = lastErr.String
		br.Duration = time.Duration(durationMS) * time.Millisecond
		if models.Valid && models.String != "" {
			_ = json.Unmarshal([]byte(models.String), &br.Models)
		}
		run.Batches = append(run.Batches, br)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// Close closes the database. It is safe to call more than once.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r          Run
		startedAt  string
		durationMS int64
		canceled   int
		models     sql.NullString
		outputDir  sql.NullString
	)
	err := row.Scan(&r.ID, &r.Source, &startedAt, &durationMS, &r.Files, &r.BatchSize,
		&r.Placeholders, &r.Attempts, &canceled, &models, &outputDir)
	if err != nil {
		return r, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.Canceled = canceled != 0
	r.OutputDir = outputDir.String
	if models.Valid && models.String != "" {
		_ = json.Unmarshal([]byte(models.String), &r.Models)
	}
	return r, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codedoc/internal/errors"
	cdtest "github.com/kraklabs/codedoc/internal/testing"
	"github.com/kraklabs/codedoc/pkg/storage"
)

func TestShowHistory_Empty(t *testing.T) {
	backend := cdtest.SetupHistory(t)

	var buf bytes.Buffer
	require.NoError(t, showHistory(context.Background(), &buf, backend, nil, 20, false))
	assert.Equal(t, "No runs recorded yet.\n", buf.String())

	buf.Reset()
	require.NoError(t, showHistory(context.Background(), &buf, backend, nil, 20, true))
	assert.JSONEq(t, "[]", buf.String())
}

func TestShowHistory_List(t *testing.T) {
	backend := cdtest.SetupHistory(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := cdtest.InsertTestRun(t, backend, "/src/old", 4, 0, base)
	newer := cdtest.InsertTestRun(t, backend, "/src/new", 9, 3, base.Add(time.Hour))

	var buf bytes.Buffer
	require.NoError(t, showHistory(context.Background(), &buf, backend, nil, 20, false))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], newer.ID)
	assert.Contains(t, lines[1], "/src/new")
	assert.Contains(t, lines[2], older.ID)

	buf.Reset()
	require.NoError(t, showHistory(context.Background(), &buf, backend, nil, 1, true))
	var runs []storage.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, newer.ID, runs[0].ID)
}

func TestShowHistory_RunDetail(t *testing.T) {
	backend := cdtest.SetupHistory(t)
	run := &storage.Run{
		ID:        storage.NewRunID(time.Now()),
		Source:    "/src/app",
		StartedAt: time.Now(),
		Files:     3,
		BatchSize: 2,
		Models:    []string{"m/a", "m/b"},
		Batches: []storage.BatchRecord{
			{Index: 0, Offset: 0, Size: 2, Outcome: "parsed", Genuine: true, Attempts: 1, Models: []string{"m/a"}},
			{Index: 1, Offset: 2, Size: 1, Outcome: "exhausted", Attempts: 3, Placeholders: 1, Models: []string{"m/a", "m/b"}, LastError: "rate limited"},
		},
	}
	require.NoError(t, backend.RecordRun(context.Background(), run))

	var buf bytes.Buffer
	require.NoError(t, showHistory(context.Background(), &buf, backend, []string{run.ID}, 20, false))
	out := buf.String()
	assert.Contains(t, out, "Run "+run.ID)
	assert.Contains(t, out, "m/a, m/b")
	assert.Contains(t, out, "exhausted")
	assert.Contains(t, out, "rate limited")
	assert.Contains(t, out, "3-3")
}

func TestShowHistory_UnknownRun(t *testing.T) {
	backend := cdtest.SetupHistory(t)

	err := showHistory(context.Background(), &bytes.Buffer{}, backend, []string{"01NOPE"}, 20, false)
	require.Error(t, err)
	assert.Equal(t, errors.ExitNotFound, errors.FromError(err).ExitCode)
}

func TestRunRows(t *testing.T) {
	rows := runRows([]storage.Run{{
		ID:           "01A",
		StartedAt:    time.Now(),
		Files:        4,
		Placeholders: 2,
		Attempts:     5,
		Canceled:     true,
		Duration:     1400 * time.Millisecond,
		Source:       "repo.zip",
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, "01A", rows[0][0])
	assert.Equal(t, "2 (canceled)", rows[0][3])
	assert.Equal(t, "1s", rows[0][5])
	assert.Equal(t, "repo.zip", rows[0][6])
}

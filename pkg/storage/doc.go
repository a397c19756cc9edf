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

// Package storage keeps a history of annotation runs.
//
// Only run summaries and per-batch outcomes are stored. Explanation text is
// never persisted, so a later run always asks the completion service again.
//
// # Available Backends
//
//   - SQLiteBackend: local SQLite database (pure Go driver, WAL journal)
//
// # Quick Start
//
//	backend, err := storage.NewSQLiteBackend(storage.SQLiteConfig{Path: "history.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	run := &storage.Run{ID: storage.NewRunID(time.Now()), Source: "./src", Files: 12}
//	if err := backend.RecordRun(ctx, run); err != nil {
//	    log.Fatal(err)
//	}
//
//	runs, err := backend.ListRuns(ctx, 10)
package storage

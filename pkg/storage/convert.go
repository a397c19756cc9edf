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
	"time"

	"github.com/kraklabs/codedoc/pkg/explain"
)

// RunFromResult converts a finished explain run into a history record.
func RunFromResult(res *explain.Result, source string, models []string, started time.Time, outputDir string) *Run {
	run := &Run{
		ID:           res.RunID,
		Source:       source,
		StartedAt:    started,
		Duration:     res.Duration,
		Files:        len(res.Explanations),
		BatchSize:    res.BatchSize,
		Placeholders: res.Placeholders,
		Attempts:     res.Attempts,
		Canceled:     res.Canceled,
		Models:       models,
		OutputDir:    outputDir,
		Batches:      make([]BatchRecord, len(res.Batches)),
	}
	for i, b := range res.Batches {
		run.Batches[i] = BatchRecord{
			Index:        b.Index,
			Offset:       b.Offset,
			Size:         b.Size,
			Outcome:      b.Outcome,
			Genuine:      b.Genuine,
			Attempts:     b.Attempts,
			Placeholders: b.Placeholders,
			Models:       b.Models,
			LastError:    b.LastError,
			Duration:     b.Duration,
		}
	}
	return run
}

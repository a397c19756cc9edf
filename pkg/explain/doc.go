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

// Package explain turns a corpus into one short explanation per file.
//
// Files are grouped into contiguous batches (see [BatchingConfig.BatchSize]),
// each batch becomes a single prompt, and the numbered-list answer is split
// back into per-file explanations by [ParseBatchResponse]. The
// [Orchestrator] drives batches sequentially with paced pauses between them
// and consults a [Policy] after every failed attempt:
//
//   - rate limited: rotate to the next model in the chain, exponential wait
//     min(cap, 2^attempt*base + jitter)
//   - transient: same model, shorter exponential wait
//   - rejected request: no retry
//
// The attempt budget covers the whole chain. A batch that exhausts it, or
// whose answer does not contain exactly one numbered item per file, records
// placeholders ("Code file N", N being the corpus position) instead. Batch
// failures never abort a run, so a Result always carries exactly one
// non-empty explanation per corpus entry.
package explain

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

// Package assemble renders a finished annotation run into its artifacts.
//
// The documents are plain markdown built from the corpus and the ordered
// explanations produced by the explain package: a code listing, an
// explanation listing and a short quiz. No completion calls are made here;
// every artifact is reproducible from its inputs alone.
//
// Writer persists the artifacts (plus a JSON manifest describing the run)
// with atomic temp-file renames, and Bundle packs them into a zip archive
// for the HTTP front end.
package assemble

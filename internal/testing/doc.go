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

// Package testing provides shared fixtures for codedoc tests.
//
// # Corpus fixtures
//
// WriteCorpus lays out a source tree in a temp directory and WriteZip packs
// the same layout into an archive:
//
//	dir := cdtest.WriteCorpus(t, map[string]string{
//	    "app/main.py": "print('hi')",
//	    "README.md":   "skipped by the extension filter",
//	})
//
// # Completion service stub
//
// CompletionStub is an httptest server that speaks the OpenAI-compatible
// chat completions protocol. By default it answers every batch prompt with a
// well-formed numbered list; Reply scripts failures or malformed answers:
//
//	stub := cdtest.NewCompletionStub(t)
//	stub.Reply = func(n int, req cdtest.StubRequest) cdtest.StubReply {
//	    if n == 1 {
//	        return cdtest.StubReply{Status: http.StatusTooManyRequests}
//	    }
//	    return cdtest.NumberedReply(req.Prompt)
//	}
//	provider, _ := llm.NewProvider(llm.ProviderConfig{
//	    Type: llm.TypeOpenAICompatible, BaseURL: stub.URL(),
//	})
//
// # History fixtures
//
// SetupHistory opens a throwaway SQLite history database and InsertTestRun
// seeds it.
package testing

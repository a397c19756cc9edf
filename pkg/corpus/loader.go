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

package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Source types accepted by Loader.Load.
const (
	SourceLocalPath = "local_path"
	SourceGitURL    = "git_url"
	SourceZip       = "zip"
)

// Source identifies where a corpus comes from.
type Source struct {
	Type  string // local_path, git_url or zip
	Value string // directory, clone URL or archive path
}

// Options filters which files make up the corpus.
type Options struct {
	// Extensions is the allowlist, with leading dot. Matching is case-insensitive.
	Extensions []string

	// ExcludeDirs are directory names skipped at any depth.
	ExcludeDirs []string

	// ExcludeGlobs are slash-separated patterns matched against relative paths.
	ExcludeGlobs []string

	// MaxFileSize in bytes; larger files are skipped. Zero disables the cap.
	MaxFileSize int64

	// MaxFiles caps the corpus size. Zero means unlimited.
	MaxFiles int

	// Outline enables declaration outlines for supported languages.
	Outline bool
}

// DefaultOptions returns the collection settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Extensions:  []string{".py", ".js", ".html", ".css", ".ts", ".jsx", ".java", ".cpp", ".go"},
		ExcludeDirs: []string{"node_modules", ".git", "dist", "build", "__pycache__", "venv", ".idea", ".vscode"},
		MaxFileSize: 30_000,
		MaxFiles:    20,
		Outline:     true,
	}
}

// Entry is one collected source file. Entries are immutable once loaded.
type Entry struct {
	RelPath   string   // slash-separated path relative to the corpus root
	Contents  string   // file contents, invalid UTF-8 dropped
	Extension string   // lowercase extension without the dot, e.g. "py"
	Language  string   // detected language, empty if unknown
	Size      int64    // size on disk in bytes
	Outline   []string // top-level declarations, nil when unsupported
}

// LoadResult contains the collected corpus.
type LoadResult struct {
	RootPath    string // Absolute path to the corpus root
	Entries     []Entry
	TotalSize   int64
	Languages   map[string]int // Language -> file count
	SkipReasons map[string]int // Reason -> count (e.g., "excluded_dir", "too_large", "extension")
	Truncated   bool           // MaxFiles was reached
}

// ErrEmptyCorpus is returned when no file passes the filters.
var ErrEmptyCorpus = errors.New("no matching source files")

// Loader collects corpus entries from a directory, archive or git URL.
type Loader struct {
	logger     *slog.Logger
	tempDirs   []string
	tempDirsMu sync.Mutex
}

// NewLoader creates a new corpus loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Close removes temporary directories created for clones and archives.
func (l *Loader) Close() error {
	l.tempDirsMu.Lock()
	defer l.tempDirsMu.Unlock()

	var lastErr error
	for _, dir := range l.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			l.logger.Warn("corpus.cleanup.error", "dir", dir, "err", err)
			lastErr = err
		}
	}
	l.tempDirs = nil
	return lastErr
}

func (l *Loader) trackTemp(dir string) {
	l.tempDirsMu.Lock()
	l.tempDirs = append(l.tempDirs, dir)
	l.tempDirsMu.Unlock()
}

// Load resolves the source to a directory and collects its entries in
// lexical path order. ErrEmptyCorpus is returned when nothing matches.
func (l *Loader) Load(ctx context.Context, src Source, opts Options) (*LoadResult, error) {
	rootPath, err := l.resolve(ctx, src)
	if err != nil {
		return nil, err
	}

	l.logger.Info("corpus.load.start", "root", rootPath, "type", src.Type)

	result, err := l.walk(ctx, rootPath, opts)
	if err != nil {
		return nil, fmt.Errorf("walk corpus: %w", err)
	}

	l.logger.Info("corpus.load.complete",
		"files", len(result.Entries),
		"total_size", result.TotalSize,
		"languages", result.Languages,
		"skipped", result.SkipReasons,
	)

	if len(result.Entries) == 0 {
		return result, ErrEmptyCorpus
	}
	return result, nil
}

func (l *Loader) resolve(ctx context.Context, src Source) (string, error) {
	switch src.Type {
	case SourceGitURL:
		dir, err := l.clone(ctx, src.Value)
		if err != nil {
			return "", fmt.Errorf("clone git repo: %w", err)
		}
		return dir, nil
	case SourceZip:
		dir, err := os.MkdirTemp("", "codedoc-zip-*")
		if err != nil {
			return "", fmt.Errorf("create temp dir: %w", err)
		}
		l.trackTemp(dir)
		if err := ExtractZip(src.Value, dir); err != nil {
			return "", fmt.Errorf("extract archive: %w", err)
		}
		return dir, nil
	case SourceLocalPath, "":
		rootPath, err := filepath.Abs(src.Value)
		if err != nil {
			return "", fmt.Errorf("resolve local path: %w", err)
		}
		info, err := os.Stat(rootPath)
		if err != nil {
			return "", fmt.Errorf("stat local path: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("local path is not a directory: %s", rootPath)
		}
		return rootPath, nil
	default:
		return "", fmt.Errorf("unsupported corpus source type: %s", src.Type)
	}
}

func (l *Loader) walk(ctx context.Context, rootPath string, opts Options) (*LoadResult, error) {
	result := &LoadResult{
		RootPath:    rootPath,
		Languages:   make(map[string]int),
		SkipReasons: make(map[string]int),
	}

	allowed := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	excludedDirs := make(map[string]bool, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		excludedDirs[d] = true
	}

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn("corpus.walk.error", "path", path, "err", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(rootPath, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if excludedDirs[d.Name()] || matchesAny(rel, opts.ExcludeGlobs) {
				result.SkipReasons["excluded_dir"]++
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			result.SkipReasons["not_regular"]++
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !allowed[ext] {
			result.SkipReasons["extension"]++
			return nil
		}
		if matchesAny(rel, opts.ExcludeGlobs) {
			result.SkipReasons["excluded"]++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.SkipReasons["unreadable"]++
			return nil
		}
		if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
			result.SkipReasons["too_large"]++
			l.logger.Warn("corpus.walk.skip_large_file",
				"path", rel,
				"size", info.Size(),
				"limit", opts.MaxFileSize,
			)
			return nil
		}

		if opts.MaxFiles > 0 && len(result.Entries) >= opts.MaxFiles {
			result.Truncated = true
			return fs.SkipAll
		}

		data, err := os.ReadFile(path)
		if err != nil {
			result.SkipReasons["unreadable"]++
			l.logger.Warn("corpus.walk.read_error", "path", rel, "err", err)
			return nil
		}

		entry := Entry{
			RelPath:   rel,
			Contents:  strings.ToValidUTF8(string(data), ""),
			Extension: strings.TrimPrefix(ext, "."),
			Language:  DetectLanguage(rel),
			Size:      info.Size(),
		}
		if opts.Outline {
			entry.Outline = Outline(ctx, entry.Language, data)
		}

		result.Entries = append(result.Entries, entry)
		result.TotalSize += entry.Size
		if entry.Language != "" {
			result.Languages[entry.Language]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Truncated {
		l.logger.Warn("corpus.walk.max_files_reached", "limit", opts.MaxFiles)
	}
	return result, nil
}

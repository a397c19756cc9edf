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
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
)

var (
	// validSSHURL matches scp-like and ssh:// git URLs.
	validSSHURL = regexp.MustCompile(`^(git@|ssh://)[\w.\-@:/%~]+$`)

	dangerousChars = regexp.MustCompile("[;&|$`\\n\\r\\\\]")
)

// LooksLikeGitURL reports whether s should be treated as a git URL rather
// than a local path.
func LooksLikeGitURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "git@") || strings.HasPrefix(s, "ssh://") ||
		strings.HasSuffix(s, ".git")
}

// ValidateGitURL rejects URLs with embedded passwords, shell metacharacters
// or unsupported schemes.
func ValidateGitURL(gitURL string) error {
	if gitURL == "" {
		return fmt.Errorf("git URL is empty")
	}
	if dangerousChars.MatchString(gitURL) {
		return fmt.Errorf("git URL contains dangerous characters")
	}

	switch {
	case strings.HasPrefix(gitURL, "http://"), strings.HasPrefix(gitURL, "https://"):
		parsed, err := url.Parse(gitURL)
		if err != nil {
			return fmt.Errorf("invalid URL format: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("git URL missing host")
		}
		if parsed.User != nil {
			if _, hasPassword := parsed.User.Password(); hasPassword {
				return fmt.Errorf("git URL should not contain embedded password")
			}
		}
		return nil
	case strings.HasPrefix(gitURL, "git@"), strings.HasPrefix(gitURL, "ssh://"):
		if !validSSHURL.MatchString(gitURL) {
			return fmt.Errorf("invalid SSH git URL format")
		}
		return nil
	case strings.HasPrefix(gitURL, "file://"):
		return nil
	}
	return fmt.Errorf("unsupported git URL protocol: must be https://, git@, ssh://, or file://")
}

// redactURL strips credentials and query parameters for logging.
func redactURL(gitURL string) string {
	parsed, err := url.Parse(gitURL)
	if err != nil {
		return gitURL
	}
	parsed.RawQuery = ""
	if parsed.User != nil {
		parsed.User = url.User("***")
	}
	return parsed.String()
}

// clone makes a shallow single-branch clone into a temp dir owned by the loader.
func (l *Loader) clone(ctx context.Context, gitURL string) (string, error) {
	if err := ValidateGitURL(gitURL); err != nil {
		return "", fmt.Errorf("invalid git URL: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "codedoc-clone-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	logURL := redactURL(gitURL)
	l.logger.Info("corpus.clone.start", "url", logURL, "temp_dir", tmpDir)

	_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:          gitURL,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", fmt.Errorf("git clone failed: %w", err)
	}

	l.logger.Info("corpus.clone.success", "url", logURL, "temp_dir", tmpDir)
	l.trackTemp(tmpDir)
	return tmpDir, nil
}

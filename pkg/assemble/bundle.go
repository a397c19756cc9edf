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

package assemble

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// bundleFiles are the artifacts packed by Bundle, in archive order.
var bundleFiles = []string{CodeFile, ExplanationFile, QuizFile, ManifestFile}

// Bundle writes a zip archive of the artifacts found in dir to w. Missing
// artifacts are skipped; an archive with no artifacts is an error.
func Bundle(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)
	added := 0
	for _, name := range bundleFiles {
		ok, err := addFile(zw, filepath.Join(dir, name), name)
		if err != nil {
			_ = zw.Close()
			return err
		}
		if ok {
			added++
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize bundle: %w", err)
	}
	if added == 0 {
		return fmt.Errorf("bundle %s: no artifacts found", dir)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return false, fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return false, fmt.Errorf("copy %s: %w", name, err)
	}
	return true, nil
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"os"
	"path/filepath"
)

// EnsureAbsolute resolves filePath against directory when it is not
// already absolute, then cleans it. Compiler keys use this so the same
// binary reached via a relative and an absolute invocation collapses
// onto one index entry.
func EnsureAbsolute(directory string, filePath string) string {
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(directory, filePath)
	}
	return filepath.Clean(filePath)
}

// EnsureFileExists reports whether name can be stat'd at all; any
// stat failure counts as missing.
func EnsureFileExists(name string) bool {
	_, err := os.Stat(name)
	return nil == err
}

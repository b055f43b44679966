// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compilercache

import (
	"time"

	"github.com/bitmark-inc/compilerproxy/compilerinfo"
)

// Config is a plain struct a driver or a test can build without a
// config file; flag and environment parsing belong to the caller.
type Config struct {
	CacheDir      string
	CacheFilename string
	HoldingTime   time.Duration
}

// DefaultHoldingTime is how long a negative (failure) entry is trusted
// before Lookup re-evicts it and forces a fresh probe.
const DefaultHoldingTime = time.Hour

// Validator decides whether data is still good for the compiler at
// localCompilerPath. SetValidator is a test seam; the package installs
// defaultValidator at Init time.
type Validator func(data *compilerinfo.Data, localCompilerPath string) bool

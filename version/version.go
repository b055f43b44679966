// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

// keep the git tag "vX.Y" in step with major and minor here
const (
	Major   = "0"
	Minor   = "1"
	Version = Major + "." + Minor
)

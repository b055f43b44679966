// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package filestat is the file-identity oracle: a small, best-effort
// fingerprint of a path's size, modification time and directory-ness,
// used by compilercache to decide whether a cached compiler's local
// binary or resource files might have changed since it was stored.
//
// The oracle never reports a definite "unchanged" for a file whose
// mtime resolution cannot distinguish "just written" from "written a
// while ago"; see Stat.CanBeStale.
package filestat

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package compilerinfo defines the data model the compiler information
// cache stores: the lookup Key, the opaque Data payload describing one
// compiler, and the content hash used to detect when two keys describe
// the same physical compiler.
package compilerinfo

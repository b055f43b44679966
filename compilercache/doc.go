// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package compilercache is the compiler information cache: a
// process-wide, thread-safe mapping from a compilerinfo.Key to a
// reference-counted State holding an immutable compilerinfo.Data
// payload.
//
// Two invariants shape the whole package:
//
//   - every state reachable from the primary index is matched in the
//     secondary hash->keys index, so disabling one alias disables
//     every key sharing its compiler's content hash;
//   - a single sync.RWMutex guards both indices, every counter and
//     each State's stored stat; reference counts and the disable mark
//     on an individual State are atomic and never need the cache lock.
//
// Init/LoadIfEnabled/Quit follow the same explicit-singleton idiom as
// the rest of this tree: a package-level handle constructed once, torn
// down once, never built during static initialization.
package compilercache

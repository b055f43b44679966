// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compilercache

import (
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/compilerproxy/compilerinfo"
	"github.com/bitmark-inc/compilerproxy/counter"
	"github.com/bitmark-inc/compilerproxy/filestat"
)

// disableMark records why an alias class was disabled. A State holds
// it behind an atomic swap: writers (Store/Disable/load) are already
// serialized by the cache's exclusive lock, the atomic makes the
// first-writer-wins mark safe to read from a caller that holds no
// cache lock at all.
type disableMark struct {
	reason string
}

// State is the CompilerInfoState: the value half of the cache's
// primary index. The mutable fields split three ways: stat is guarded
// by the cache's RWMutex (exclusive to write, shared to read); refs
// and the disable mark are atomic, so a caller can release a state or
// inspect its disabled flag without reacquiring the cache.
type State struct {
	key  compilerinfo.Key
	data *compilerinfo.Data
	hash string

	disabled atomic.Value // *disableMark, set at most once

	// stat is the local compiler's fingerprint captured when this
	// state was stored (or last revalidated); Lookup compares
	// against it to decide whether to re-run the validator.
	stat     filestat.Stat
	storedAt time.Time

	used    counter.Counter
	refs    int32
	evicted bool
}

// Data returns the immutable payload this state owns.
func (s *State) Data() *compilerinfo.Data { return s.data }

// Key returns the key this state was stored under.
func (s *State) Key() compilerinfo.Key { return s.key }

// Hash returns H(data), the alias-class identity.
func (s *State) Hash() string { return s.hash }

// Disabled reports whether this state (or any alias sharing its hash)
// has been disabled, and the first reason recorded for it.
func (s *State) Disabled() (bool, string) {
	if m, ok := s.disabled.Load().(*disableMark); ok && nil != m {
		return true, m.reason
	}
	return false, ""
}

// markDisabled sets the disable mark. First-writer-wins is enforced
// here; callers must hold the cache's exclusive lock so concurrent
// Disable calls are serialized.
func (s *State) markDisabled(reason string) {
	if disabled, _ := s.Disabled(); disabled {
		return
	}
	s.disabled.Store(&disableMark{reason: reason})
}

// Used returns the number of successful Lookup hits against this
// state.
func (s *State) Used() uint64 { return s.used.Uint64() }

// Refs returns the current reference count, for tests and
// introspection only.
func (s *State) Refs() int32 { return atomic.LoadInt32(&s.refs) }

// Release drops one reference acquired by Lookup. The cache's own
// reference is released only on eviction, so a State can never be
// observed with zero references while it is still reachable from the
// primary index.
func (s *State) Release() {
	atomic.AddInt32(&s.refs, -1)
}

func (s *State) addRef() {
	atomic.AddInt32(&s.refs, 1)
}

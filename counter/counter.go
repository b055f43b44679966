// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package counter

import (
	"sync/atomic"
)

// Counter is a 64 bit statistics counter safe for concurrent use; the
// cache's hit/miss/store tallies and the transport's per-transaction
// retry/throttle counts are all instances of it.
type Counter uint64

// Increment adds 1, returning the new value.
func (ic *Counter) Increment() uint64 {
	return atomic.AddUint64((*uint64)(ic), 1)
}

// Decrement subtracts 1, returning the new value. There is no
// underflow guard; a counter that only ever goes up never needs one.
func (ic *Counter) Decrement() uint64 {
	return atomic.AddUint64((*uint64)(ic), ^uint64(0))
}

// Uint64 returns the current value.
func (ic *Counter) Uint64() uint64 {
	return atomic.LoadUint64((*uint64)(ic))
}

// IsZero checks for zero.
func (ic *Counter) IsZero() bool {
	return 0 == atomic.LoadUint64((*uint64)(ic))
}

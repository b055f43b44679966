// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bitmark-inc/compilerproxy/fault"
)

// backoff holds the retry/backoff state shared by every transaction on
// one client: the transport, not the transaction, backs off.
// consecutiveFailures drives the exponential delay; any success resets
// it.
type backoff struct {
	mu sync.Mutex

	consecutiveFailures int
	min                 time.Duration
	max                 time.Duration

	// limiter paces admission: reserve a slot, sleep the delay.
	limiter *rate.Limiter
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{
		min:     min,
		max:     max,
		limiter: rate.NewLimiter(rate.Every(time.Millisecond), 64),
	}
}

// throttle reserves an admission slot and sleeps out its delay;
// failure to reserve surfaces as Throttled.
func (b *backoff) throttle() error {
	r := b.limiter.Reserve()
	if !r.OK() {
		return fault.ErrThrottled
	}
	time.Sleep(r.Delay())
	return nil
}

// delay returns the current retry delay: exponential in the number of
// consecutive failures, with jitter, clamped to [min, max].
func (b *backoff) delay() time.Duration {
	b.mu.Lock()
	n := b.consecutiveFailures
	b.mu.Unlock()

	if n <= 0 {
		return b.min
	}

	d := b.min << uint(n-1)
	if d > b.max || d <= 0 {
		d = b.max
	}

	// jitter: uniform in [d/2, d)
	half := int64(d) / 2
	if half > 0 {
		d = time.Duration(half + rand.Int63n(half))
	}

	if d < b.min {
		d = b.min
	}
	if d > b.max {
		d = b.max
	}
	return d
}

func (b *backoff) onFailure() {
	b.mu.Lock()
	b.consecutiveFailures++
	b.mu.Unlock()
}

func (b *backoff) onSuccess() {
	b.mu.Lock()
	b.consecutiveFailures = 0
	b.mu.Unlock()
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"sync"
	"time"
)

// networkErrorStatus is a two-state {healthy, error} machine: fatal
// network errors or "no socket available" move it into error (firing
// the detected callback exactly once, an edge trigger); a 2xx
// response arms errorUntil, and once the clock passes that mark while
// still in error, it recovers (firing the recovered callback exactly
// once).
type networkErrorStatus struct {
	mu sync.Mutex

	inError        bool
	errorStartedAt time.Time
	errorUntil     *time.Time
	margin         time.Duration

	onDetected  func()
	onRecovered func()
}

func newNetworkErrorStatus(margin time.Duration, onDetected, onRecovered func()) *networkErrorStatus {
	if nil == onDetected {
		onDetected = func() {}
	}
	if nil == onRecovered {
		onRecovered = func() {}
	}
	return &networkErrorStatus{margin: margin, onDetected: onDetected, onRecovered: onRecovered}
}

// observeError records a fatal network error (or "no socket
// available"); it is a no-op if already in the error state.
func (n *networkErrorStatus) observeError(now time.Time) {
	n.mu.Lock()
	fire := false
	if !n.inError {
		n.inError = true
		n.errorStartedAt = now
		until := now.Add(n.margin)
		n.errorUntil = &until
		fire = true
	}
	n.mu.Unlock()

	if fire {
		n.onDetected()
	}
}

// observeSuccess records a 2xx response: it arms errorUntil and, if
// the state is still in error and the clock has already passed the
// previously armed errorUntil, recovers.
func (n *networkErrorStatus) observeSuccess(now time.Time) {
	n.mu.Lock()
	until := now.Add(n.margin)

	recover := false
	if n.inError && nil != n.errorUntil && !now.Before(*n.errorUntil) {
		n.inError = false
		recover = true
	}
	n.errorUntil = &until
	n.mu.Unlock()

	if recover {
		n.onRecovered()
	}
}

// IsInError reports the current state, for health/status reporting.
func (n *networkErrorStatus) IsInError() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inError
}

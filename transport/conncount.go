// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
	gocache "github.com/patrickmn/go-cache"

	"github.com/bitmark-inc/compilerproxy/counter"
)

const connTrackerSize = 128

// connTracker keeps per-host connection bookkeeping: an LRU of
// recently used hosts with transaction counts (for the status page)
// and a TTL cache of hosts whose last dial
// failed, which backs the "no socket available" fast-fail path of the
// network-error state machine. The sockets themselves belong to
// http.Transport.
type connTracker struct {
	counts    *lru.Cache
	dialFails *gocache.Cache
}

func newConnTracker(failTTL time.Duration) *connTracker {
	counts, _ := lru.New(connTrackerSize)
	return &connTracker{
		counts:    counts,
		dialFails: gocache.New(failTTL, 2*failTTL),
	}
}

// observe records one transaction against host.
func (t *connTracker) observe(host string) {
	if v, ok := t.counts.Get(host); ok {
		v.(*counter.Counter).Increment()
		return
	}
	c := new(counter.Counter)
	c.Increment()
	t.counts.Add(host, c)
}

// dialFailed marks host unreachable until the TTL expires.
func (t *connTracker) dialFailed(host string) {
	t.dialFails.SetDefault(host, time.Now())
}

// dialSucceeded clears any unreachable mark for host.
func (t *connTracker) dialSucceeded(host string) {
	t.dialFails.Delete(host)
}

// recentlyUnreachable reports whether the last dial to host failed
// within the TTL; transactions fail fast with a network error rather
// than queueing behind a dead socket.
func (t *connTracker) recentlyUnreachable(host string) bool {
	_, ok := t.dialFails.Get(host)
	return ok
}

// snapshot returns the current per-host transaction counts.
func (t *connTracker) snapshot() map[string]uint64 {
	m := make(map[string]uint64, t.counts.Len())
	for _, k := range t.counts.Keys() {
		if v, ok := t.counts.Get(k); ok {
			m[k.(string)] = v.(*counter.Counter).Uint64()
		}
	}
	return m
}

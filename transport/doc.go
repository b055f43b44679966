// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package transport is the HTTP Transport Core: a long-lived client to
// one remote endpoint that manages request/response framing, async
// transactions, retry/backoff, ramp-up admission and a network-error
// state machine, and exposes health for peer subsystems (in
// particular compilercache's disable-propagation policy, which mirrors
// this package's network-error edge triggers).
//
// Go's net/http already supplies connection pooling, HTTP/1.1 framing
// and TLS, so this package builds on http.Client/http.Transport rather
// than re-implementing a socket/TLS engine; goroutines bounded by a
// semaphore stand in for a dedicated worker-thread pool.
package transport

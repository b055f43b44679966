// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"

	"github.com/bitmark-inc/compilerproxy/counter"
)

// State is the per-transaction lifecycle ladder.
type State int

const (
	Init State = iota
	Pending
	SendingRequest
	RequestSent
	ReceivingResponse
	ResponseReceived
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Pending:
		return "pending"
	case SendingRequest:
		return "sending_request"
	case RequestSent:
		return "request_sent"
	case ReceivingResponse:
		return "receiving_response"
	case ResponseReceived:
		return "response_received"
	default:
		return "unknown"
	}
}

// Status is visible across threads: Finished, Err and ErrMessage are
// read by Wait/DoAsync callers without holding any transport lock.
type Status struct {
	mu sync.Mutex

	state State

	// per-phase durations, accumulated as each phase completes
	PendingDuration           time.Duration
	SendingRequestDuration    time.Duration
	ReceivingResponseDuration time.Duration

	RetryCount      counter.Counter
	ThrottleCount   counter.Counter
	ConnectFailures counter.Counter

	StatusCode int

	TraceID string

	finished int32 // atomic bool
	done     chan struct{}

	Err        error
	ErrMessage string
}

// NewStatus allocates a Status with a fresh random base58 trace id.
func NewStatus() *Status {
	id := make([]byte, 16)
	_, _ = rand.Read(id)
	return &Status{
		state:   Init,
		TraceID: base58.Encode(id),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Status) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Status) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Finished reports whether the transaction has reached a terminal
// state, exactly the flag Wait blocks on.
func (s *Status) Finished() bool {
	return atomic.LoadInt32(&s.finished) == 1
}

// finish marks the transaction terminal exactly once, closing done so
// every blocked Wait wakes up.
func (s *Status) finish(err error) {
	if !atomic.CompareAndSwapInt32(&s.finished, 0, 1) {
		return
	}
	s.mu.Lock()
	s.Err = err
	if nil != err {
		s.ErrMessage = err.Error()
	}
	s.mu.Unlock()
	close(s.done)
}

// Wait blocks until the transaction is finished.
func (s *Status) Wait() {
	<-s.done
}

// Done exposes the completion channel for select-based waiting.
func (s *Status) Done() <-chan struct{} {
	return s.done
}

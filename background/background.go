// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package background starts and stops a fixed set of goroutines as a
// unit, the pattern every long-running worker in this tree is built on
// (the OAuth2 token refresher and the cache package's expiry sweeper).
package background

// Process is implemented by anything that can run as a background
// task. Run must return promptly once shutdown is closed.
type Process interface {
	Run(args interface{}, shutdown <-chan struct{})
}

// Processes is the list of workers started together by Start.
type Processes []Process

type handle struct {
	shutdown chan struct{}
	finished chan struct{}
}

// T is the set of running background processes returned by Start.
type T struct {
	h []handle
}

// Start launches one goroutine per process, each sharing args.
func Start(processes Processes, args interface{}) *T {

	register := new(T)
	register.h = make([]handle, len(processes))

	for i, p := range processes {
		shutdown := make(chan struct{})
		finished := make(chan struct{})
		register.h[i].shutdown = shutdown
		register.h[i].finished = finished
		go func(p Process) {
			defer close(finished)
			p.Run(args, shutdown)
		}(p)
	}
	return register
}

// Stop signals every process to shut down and waits for all of them
// to finish before returning.
func (t *T) Stop() {
	for _, h := range t.h {
		close(h.shutdown)
	}
	for _, h := range t.h {
		<-h.finished
	}
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"math/rand"
	"time"
)

// rampUpPercent computes ramp_up ∈ [0, 100]: 0 before enabledFrom, a
// value growing linearly across window, and 100 once the window has
// fully elapsed. The zero time means "start ramped up."
func rampUpPercent(enabledFrom time.Time, window time.Duration, now time.Time) int {
	if enabledFrom.IsZero() {
		return 100
	}
	if now.Before(enabledFrom) {
		return 0
	}
	if window <= 0 {
		return 100
	}
	elapsed := now.Sub(enabledFrom)
	if elapsed >= window {
		return 100
	}
	return int(100 * int64(elapsed) / int64(window))
}

// admitRampUp flips a ramp_up/100 coin to decide whether a new
// transaction is admitted. percent==100 always admits; percent==0
// never does, without consuming randomness either way.
func admitRampUp(percent int) bool {
	if percent >= 100 {
		return true
	}
	if percent <= 0 {
		return false
	}
	return rand.Intn(100) < percent
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package filestat

import (
	"os"
	"time"
)

// staleMargin is the mtime-resolution/clock-skew guard: a file whose
// mtime lands within this margin of the moment it was stat'd cannot be
// trusted to be unchanged, because many filesystems (and virtualized
// clocks) cannot resolve "written just now" from "written earlier."
const staleMargin = time.Second

// Stat is a fingerprint of one path at the moment it was taken.
//
// Equality between two Stat values (see Equal) is structural over
// Size, Mtime and IsDir only; TakenAt is deliberately excluded; it
// exists solely to feed CanBeStale.
type Stat struct {
	Size    int64
	Mtime   time.Time
	IsDir   bool
	TakenAt time.Time
}

// invalidSize is the sentinel used for a path that could not be
// stat'd: missing, permission denied, or any other lookup failure.
const invalidSize = -1

// Invalid reports whether this Stat represents a failed or missing
// lookup rather than a real file.
func (s Stat) Invalid() bool {
	return s.Size == invalidSize
}

// Get - stat a path, best-effort but honest: any failure yields the
// invalid sentinel rather than an error the caller must plumb through.
func Get(path string) Stat {
	takenAt := time.Now()

	info, err := os.Stat(path)
	if nil != err {
		return Stat{Size: invalidSize, TakenAt: takenAt}
	}

	return Stat{
		Size:    info.Size(),
		Mtime:   info.ModTime(),
		IsDir:   info.IsDir(),
		TakenAt: takenAt,
	}
}

// Equal is structural equality over (Size, Mtime, IsDir); TakenAt does
// not participate.
func (s Stat) Equal(other Stat) bool {
	return s.Size == other.Size && s.Mtime.Equal(other.Mtime) && s.IsDir == other.IsDir
}

// CanBeStale reports whether s's mtime is close enough to the moment
// it was taken that a concurrent write could be invisible to it: true
// iff mtime + 1s >= taken_at.
func (s Stat) CanBeStale() bool {
	if s.Invalid() {
		return true
	}
	return s.Mtime.Add(staleMargin).After(s.TakenAt) || s.Mtime.Add(staleMargin).Equal(s.TakenAt)
}

// CanBeNewerThan reports whether old (captured earlier) might be stale
// relative to current (captured now): true iff old.CanBeStale() or the
// two fingerprints differ structurally.
func CanBeNewerThan(current, old Stat) bool {
	return old.CanBeStale() || !current.Equal(old)
}

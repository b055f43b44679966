// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compilerinfo

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/bitmark-inc/compilerproxy/util"
)

// ResourceFile is one file the compiler's behaviour depends on beyond
// the binary itself (a header, a builtin resource, a plugin) along
// with a hash of its content taken when the entry was probed.
type ResourceFile struct {
	Path string
	Hash string
}

// Data is the opaque CompilerInfoData payload: everything a probe
// learned about one compiler. The cache treats it as immutable once
// stored and never interprets Version/Target/Defines/SystemIncludePaths
// beyond carrying them; probing and validating their content is the
// prober's job.
type Data struct {
	Version            string
	Target             string
	Defines            []string
	SystemIncludePaths []string
	ResourceFiles      []ResourceFile

	// Failed marks this as a negative cache entry: the probe that
	// produced it did not succeed. Negative entries are still
	// cacheable: probing is expensive and tends to fail the same
	// way every time.
	Failed       bool
	FailedReason string
}

// IsValid is the payload's own half of the validity predicate:
// non-failure, with a version and target recorded. The
// other half, whether the referenced resource files are still fresh, is the
// cache's job via filestat, combined in compilercache's default
// Validator.
func (d *Data) IsValid() bool {
	if nil == d {
		return false
	}
	return !d.Failed && "" != d.Version && "" != d.Target
}

// Hash computes H(data): a stable, cheap-to-recompute content hash
// used to detect that two keys describe the same physical compiler
// (the secondary alias index). Field order is fixed, so no JSON
// canonicalization pass is needed.
func (d *Data) Hash() string {
	h, _ := blake2b.New256(nil)

	writeField(h, d.Version)
	writeField(h, d.Target)
	writeUint(h, uint64(len(d.Defines)))
	for _, def := range d.Defines {
		writeField(h, def)
	}
	writeUint(h, uint64(len(d.SystemIncludePaths)))
	for _, p := range d.SystemIncludePaths {
		writeField(h, p)
	}
	writeUint(h, uint64(len(d.ResourceFiles)))
	for _, rf := range d.ResourceFiles {
		writeField(h, rf.Path)
		writeField(h, rf.Hash)
	}
	if d.Failed {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	writeField(h, d.FailedReason)

	return hex.EncodeToString(h.Sum(nil))
}

func digestStrings(groups ...[]string) string {
	h, _ := blake2b.New256(nil)
	for _, group := range groups {
		writeUint(h, uint64(len(group)))
		for _, s := range group {
			writeField(h, s)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

type hashWriter interface {
	Write(p []byte) (int, error)
}

func writeField(h hashWriter, s string) {
	writeUint(h, uint64(len(s)))
	h.Write([]byte(s))
}

func writeUint(h hashWriter, v uint64) {
	h.Write(util.ToVarint64(v))
}

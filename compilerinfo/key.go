// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compilerinfo

import (
	"os"
	"path/filepath"

	"github.com/bitmark-inc/compilerproxy/util"
)

// Key identifies one compiler invocation's identity: the compiler
// binary, the working directory it was invoked from, and Base, an
// opaque digest of normalized flags and key environment variables
// produced by an external flag parser. Key only stores and renders
// what it is given.
type Key struct {
	Base              string
	Cwd               string
	LocalCompilerPath string
}

// ToString renders the key as a stable, collision-resistant string.
// cwdRelative selects between the two equally-valid renderings:
// cwd-relative (for driver-local display) and absolute (for
// cross-directory comparison, the one the cache uses as an index key).
func (k Key) ToString(cwdRelative bool) string {
	compilerPath := k.LocalCompilerPath
	if !cwdRelative {
		compilerPath = k.AbsLocalCompilerPath()
	}
	return k.Base + "\x00" + k.Cwd + "\x00" + compilerPath
}

// AbsLocalCompilerPath returns LocalCompilerPath resolved against Cwd
// if it is not already absolute.
func (k Key) AbsLocalCompilerPath() string {
	return util.EnsureAbsolute(k.Cwd, k.LocalCompilerPath)
}

// CreateKey is the key-construction function the cache exposes.
// flags and env are opaque content from an external flag parser;
// CreateKey only canonicalizes them into Base via the same
// varint/blake2b digest used for the content hash, so two invocations
// with identical flags and environment collapse onto one key. Cwd is
// the process's working directory at call time, so the result is not a
// function of the arguments alone, and CreateKey fails if that
// directory cannot be read.
func CreateKey(flags []string, localCompilerPath string, env []string) (Key, error) {
	cwd, err := os.Getwd()
	if nil != err {
		return Key{}, err
	}

	base := digestStrings(flags, env)

	return Key{
		Base:              base,
		Cwd:               filepath.Clean(cwd),
		LocalCompilerPath: localCompilerPath,
	}, nil
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util_test

import (
	"strings"
	"testing"

	"github.com/bitmark-inc/compilerproxy/util"
)

func TestFormatBytes(t *testing.T) {
	s := util.FormatBytes("sample", []byte{0x01, 0xab, 0xff})

	if !strings.HasPrefix(s, "sample := []byte{") {
		t.Errorf("unexpected prefix: %q", s)
	}
	for _, hex := range []string{"0x01", "0xab", "0xff"} {
		if !strings.Contains(s, hex) {
			t.Errorf("missing %s in: %q", hex, s)
		}
	}
	if !strings.HasSuffix(s, "\n}") {
		t.Errorf("unexpected suffix: %q", s)
	}
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"strings"
)

const formatBytesPerLine = 8

// FormatBytes renders data as a Go byte-slice literal named name,
// eight bytes per line; test routines use it to dump an expected hash
// or encoding in paste-ready form.
func FormatBytes(name string, data []byte) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString(" := []byte{")
	for i, b := range data {
		if 0 == i%formatBytesPerLine {
			sb.WriteString("\n\t")
		}
		fmt.Fprintf(&sb, "0x%02x, ", b)
	}
	sb.WriteString("\n}")
	return sb.String()
}

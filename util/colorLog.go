// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import "github.com/bitmark-inc/logger"

// ANSI colour codes for console output: the driver's banner and the
// coloured health transitions on its console log.
const (
	CoReset = "\x1b[0m"

	CoRed    = "\x1b[31m"
	CoGreen  = "\x1b[32m"
	CoYellow = "\x1b[33m"
	CoCyan   = "\x1b[36m"
)

// LogInfo prints a message at Info level wrapped in the given colour.
func LogInfo(log *logger.L, color string, message string) {
	log.Infof("%s%s%s", color, message, CoReset)
}

// LogWarn prints a message at Warn level wrapped in the given colour.
func LogWarn(log *logger.L, color string, message string) {
	log.Warnf("%s%s%s", color, message, CoReset)
}

// LogError prints a message at Error level wrapped in the given
// colour.
func LogError(log *logger.L, color string, message string) {
	log.Errorf("%s%s%s", color, message, CoReset)
}

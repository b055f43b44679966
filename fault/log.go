// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fault

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bitmark-inc/logger"
)

// last-resort logger channel, for messages that must reach the log
// even while the process is going down
var log *logger.L

// Initialise sets up the panic log channel; the driver calls this
// right after logger initialisation.
func Initialise() error {
	if nil != log {
		return ErrAlreadyInitialised
	}
	log = logger.New("PANIC")
	if nil == log {
		return ErrInvalidLoggerChannel
	}
	return nil
}

// Finalise flushes any pending log data.
func Finalise() {
	if nil != log {
		log.Flush()
		log = nil
	}
}

// Critical logs a simple string with the caller's position.
func Critical(message string) {
	if _, file, line, ok := runtime.Caller(1); ok {
		internalCriticalf("(%q:%d) "+message, file, line)
	} else {
		internalCriticalf("%s", message)
	}
}

// Criticalf logs a formatted message with the caller's position.
func Criticalf(format string, arguments ...interface{}) {
	if _, file, line, ok := runtime.Caller(1); ok {
		a := make([]interface{}, 2, 2+len(arguments))
		a[0] = file
		a[1] = line
		a = append(a, arguments...)
		internalCriticalf("(%q:%d) "+format, a...)
	} else {
		internalCriticalf(format, arguments...)
	}
}

// Panic logs the message, gives the log a moment to reach disk, then
// panics.
func Panic(message string) {
	internalCriticalf("%s", message)
	time.Sleep(100 * time.Millisecond)
	panic(message)
}

// PanicIfError is a conditional Panic carrying the failed operation's
// name.
func PanicIfError(message string, err error) {
	if nil == err {
		return
	}
	s := fmt.Sprintf("%s failed with error: %v", message, err)
	internalCriticalf("%s", s)
	time.Sleep(100 * time.Millisecond)
	panic(s)
}

// falls back to stdout when the log channel was never initialised
func internalCriticalf(format string, arguments ...interface{}) {
	if nil == log {
		fmt.Printf("*** "+format+"\n", arguments...)
	} else {
		log.Criticalf(format, arguments...)
		log.Flush()
	}
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// error instances
//
// Provides a single instance of errors to allow easy comparison
package fault

// error base
type GenericError string

// to allow for different classes of errors
type ExistsError GenericError
type InvalidError GenericError
type LengthError GenericError
type NotFoundError GenericError
type ProcessError GenericError
type RecordError GenericError
type TransportError GenericError

// common errors - keep in alphabetic order
var (
	ErrAlreadyInitialised    = ProcessError("already initialised")
	ErrCacheMiss             = NotFoundError("compiler info cache miss")
	ErrCanceled              = TransportError("transaction canceled")
	ErrDisabled              = InvalidError("compiler info disabled")
	ErrDuplicateCompilerInfo = ExistsError("compiler info duplicate store")
	ErrInvalidIPAddress      = InvalidError("invalid IP address")
	ErrInvalidLoggerChannel  = InvalidError("invalid logger channel")
	ErrInvalidPortNumber     = InvalidError("invalid port number")
	ErrJsonParseFail         = ProcessError("parse to json failed")
	ErrNotInitialised        = ProcessError("not initialised")
	ErrPersistence           = ProcessError("compiler info cache persistence failed")
	ErrRequiredCacheDir      = InvalidError("cache directory is required")
	ErrStale                 = NotFoundError("compiler info stale")
	ErrThrottled             = TransportError("request throttled")
	ErrTransportHttpError    = TransportError("http error response")
	ErrTransportNetworkError = TransportError("network error")
	ErrTransportTimeout      = TransportError("transport timeout")
	ErrUnmarshalTextFail     = ProcessError("unmarshal text failed")
)

// the error interface base method
func (e GenericError) Error() string { return string(e) }

// the error interface methods
func (e ExistsError) Error() string    { return string(e) }
func (e InvalidError) Error() string   { return string(e) }
func (e LengthError) Error() string    { return string(e) }
func (e NotFoundError) Error() string  { return string(e) }
func (e ProcessError) Error() string   { return string(e) }
func (e RecordError) Error() string    { return string(e) }
func (e TransportError) Error() string { return string(e) }

// determine the class of an error
func IsErrExists(e error) bool    { _, ok := e.(ExistsError); return ok }
func IsErrInvalid(e error) bool   { _, ok := e.(InvalidError); return ok }
func IsErrLength(e error) bool    { _, ok := e.(LengthError); return ok }
func IsErrNotFound(e error) bool  { _, ok := e.(NotFoundError); return ok }
func IsErrProcess(e error) bool   { _, ok := e.(ProcessError); return ok }
func IsErrRecord(e error) bool    { _, ok := e.(RecordError); return ok }
func IsErrTransport(e error) bool { _, ok := e.(TransportError); return ok }

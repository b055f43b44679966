// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fault - the error catalogue of the compile-service client
//
// One sentinel value per error kind the cache and transport surface,
// each belonging to a typed class (not found, invalid, process,
// exists, transport) so callers can compare exact values or test the
// class without matching strings.
package fault

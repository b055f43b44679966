// Copyright (c) 2014-2018 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cache maintains small in-memory, TTL-expiring pools shared
// by the transport and compiler-info layers.
//
//  ***** Data Structure *****
//
//  Pool           Key                 Value                  ExpiresAfter
//  |___ DNSAnswers    hostname            resolved addresses     5m
//  |___ OAuthTokens   account email       bearer token            55m
//  |___ FileStatMemo  local compiler path filestat.Stat           2s
//
//  ***** Purpose *****
//
//  DNSAnswers:
//    the transport resolver's TTL-bounded answer cache, so a burst of
//    transactions to the same host does not all pay for a round trip
//
//  OAuthTokens:
//    holds a refreshed bearer token between the refresh completing and
//    it being written through to the persistent leveldb token store
//
//  FileStatMemo:
//    memoizes filestat.Stat results for the lifetime of one cache
//    lookup pass over a compiler's resource file list
package cache

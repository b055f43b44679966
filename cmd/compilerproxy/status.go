// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"

	"github.com/bitmark-inc/compilerproxy/compilercache"
	"github.com/bitmark-inc/compilerproxy/transport"
	"github.com/bitmark-inc/compilerproxy/version"
)

// statusReply is the read-only status page payload: transport health,
// ramp-up and the cache's introspection counters.
type statusReply struct {
	Version          string              `json:"version"`
	Healthy          bool                `json:"healthy"`
	HealthyRecently  bool                `json:"healthy_recently"`
	RampUpPercent    int                 `json:"ramp_up_percent"`
	ConnectionCounts map[string]uint64   `json:"connection_counts"`
	CacheEntries     int                 `json:"cache_entries"`
	CacheStores      uint64              `json:"cache_stores"`
	CacheStoreDups   uint64              `json:"cache_store_dups"`
	CacheMisses      uint64              `json:"cache_misses"`
	CacheFailures    uint64              `json:"cache_failures"`
	CacheUsed        uint64              `json:"cache_used"`
	CompilerMismatch bool                `json:"compiler_mismatch"`
	Compilers        jsoniter.RawMessage `json:"compilers"`
}

func statusHandler(client *transport.Client) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		compilers, err := compilercache.DumpCompilersJSON()
		if nil != err {
			compilers = []byte("[]")
		}

		reply := statusReply{
			Version:          version.Version,
			Healthy:          client.IsHealthy(),
			HealthyRecently:  client.IsHealthyRecently(),
			RampUpPercent:    client.RampUp(),
			ConnectionCounts: client.ConnectionCounts(),
			CacheEntries:     compilercache.Count(),
			CacheStores:      compilercache.NumStores(),
			CacheStoreDups:   compilercache.NumStoreDups(),
			CacheMisses:      compilercache.NumMiss(),
			CacheFailures:    compilercache.NumFail(),
			CacheUsed:        compilercache.NumUsed(),
			CompilerMismatch: compilercache.HasCompilerMismatch(),
			Compilers:        jsoniter.RawMessage(compilers),
		}

		w.Header().Set("Content-Type", "application/json")
		raw, err := jsoniter.MarshalIndent(reply, "", "  ")
		if nil != err {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write(raw)
	}
}

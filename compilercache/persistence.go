// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compilercache

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/bitmark-inc/compilerproxy/compilerinfo"
	"github.com/bitmark-inc/compilerproxy/fault"
	"github.com/bitmark-inc/compilerproxy/filestat"
	"github.com/bitmark-inc/compilerproxy/util"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// persistedKey is one row of the primary-index section of the
// on-disk CompilerInfoDataTable.
type persistedKey struct {
	Base              string `json:"base"`
	Cwd               string `json:"cwd"`
	LocalCompilerPath string `json:"local_compiler_path"`
	Hash              string `json:"hash"`
}

// persistedValue is one row of the deduplicated value pool.
type persistedValue struct {
	Hash           string            `json:"hash"`
	Data           compilerinfo.Data `json:"data"`
	Disabled       bool              `json:"disabled,omitempty"`
	DisabledReason string            `json:"disabled_reason,omitempty"`
}

// table is the on-disk CompilerInfoDataTable: the key->hash rows of
// the primary index, a deduplicated value pool, the holding-time
// scalar, plus the observability-only loaded_size / loaded_timestamp
// fields.
type table struct {
	Keys            []persistedKey   `json:"keys"`
	Values          []persistedValue `json:"values"`
	HoldingTimeNS   int64            `json:"holding_time_ns"`
	LoadedSize      int64            `json:"loaded_size,omitempty"`
	LoadedTimestamp time.Time        `json:"loaded_timestamp,omitempty"`
}

func cachePath(c *cacheData) string {
	return filepath.Join(c.cacheDir, c.cacheFilename)
}

// LoadIfEnabled loads the persisted cache if a cache filename was
// configured. Any failure to read or parse degrades to an empty cache
// and is logged, never fatal.
func LoadIfEnabled() error {
	c, err := current()
	if nil != err {
		return err
	}

	if "" == c.cacheFilename {
		return nil
	}

	path := cachePath(c)
	if !util.EnsureFileExists(path) {
		return nil
	}
	raw, err := ioutil.ReadFile(path)
	if nil != err {
		c.log.Warnf("cache file %q unreadable, starting empty: %s", path, err)
		return nil
	}

	var t table
	if err := jsonAPI.Unmarshal(raw, &t); nil != err {
		c.log.Warnf("cache file %q corrupt, discarding: %s", path, err)
		return nil
	}

	c.Lock()
	defer c.Unlock()

	values := make(map[string]persistedValue, len(t.Values))
	for _, v := range t.Values {
		values[v.Hash] = v
	}

	c.primary = make(map[string]*State, len(t.Keys))
	c.secondary = make(map[string]map[string]struct{}, len(t.Values))
	if t.HoldingTimeNS > 0 {
		c.holdingTime = time.Duration(t.HoldingTimeNS)
	}

	for _, pk := range t.Keys {
		v, ok := values[pk.Hash]
		if !ok {
			continue
		}
		data := v.Data

		key := compilerinfo.Key{Base: pk.Base, Cwd: pk.Cwd, LocalCompilerPath: pk.LocalCompilerPath}
		keyStr := key.ToString(false)

		state := &State{
			key:      key,
			data:     &data,
			hash:     pk.Hash,
			stat:     filestat.Get(key.AbsLocalCompilerPath()),
			storedAt: time.Now(),
			refs:     1,
		}
		if v.Disabled {
			state.markDisabled(v.DisabledReason)
		}

		c.primary[keyStr] = state
		if nil == c.secondary[pk.Hash] {
			c.secondary[pk.Hash] = make(map[string]struct{})
		}
		c.secondary[pk.Hash][keyStr] = struct{}{}
	}

	c.loadedSize = int64(len(raw))
	c.loadedTimestamp = time.Now()

	return nil
}

// Save serializes the current mapping to the cache file atomically:
// write to a temp file, fsync, then rename over the target.
func Save() error {
	c, err := current()
	if nil != err {
		return err
	}
	return save(c)
}

func save(c *cacheData) error {
	if "" == c.cacheFilename {
		return nil
	}

	c.Lock()
	t := buildTableLocked(c)
	c.Unlock()

	raw, err := jsonAPI.Marshal(t)
	if nil != err {
		return fault.ErrJsonParseFail
	}

	path := cachePath(c)
	if err := os.MkdirAll(c.cacheDir, 0755); nil != err {
		return fault.ErrPersistence
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if nil != err {
		return fault.ErrPersistence
	}

	if _, err := f.Write(raw); nil != err {
		f.Close()
		os.Remove(tmpPath)
		return fault.ErrPersistence
	}
	if err := f.Sync(); nil != err {
		f.Close()
		os.Remove(tmpPath)
		return fault.ErrPersistence
	}
	if err := f.Close(); nil != err {
		os.Remove(tmpPath)
		return fault.ErrPersistence
	}

	if err := os.Rename(tmpPath, path); nil != err {
		os.Remove(tmpPath)
		return fault.ErrPersistence
	}

	return nil
}

// buildTableLocked must be called while c's lock is held. Entries
// whose local compiler no longer exists are dropped; failure entries
// are kept (negative results are useful).
func buildTableLocked(c *cacheData) table {
	t := table{HoldingTimeNS: int64(c.holdingTime)}

	seen := make(map[string]bool, len(c.secondary))

	for _, state := range c.primary {
		if filestat.Get(state.key.AbsLocalCompilerPath()).Invalid() {
			continue
		}

		t.Keys = append(t.Keys, persistedKey{
			Base:              state.key.Base,
			Cwd:               state.key.Cwd,
			LocalCompilerPath: state.key.LocalCompilerPath,
			Hash:              state.hash,
		})

		if !seen[state.hash] {
			seen[state.hash] = true
			disabled, reason := state.Disabled()
			t.Values = append(t.Values, persistedValue{
				Hash:           state.hash,
				Data:           *state.data,
				Disabled:       disabled,
				DisabledReason: reason,
			})
		}
	}

	return t
}

// dumpEntry is one row of DumpCompilersJSON's introspection output.
type dumpEntry struct {
	Key            string `json:"key"`
	Hash           string `json:"hash"`
	Disabled       bool   `json:"disabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	Used           uint64 `json:"used"`
}

// DumpCompilersJSON is a read-locked introspection dump of the primary
// index, used by the status page.
func DumpCompilersJSON() ([]byte, error) {
	c, err := current()
	if nil != err {
		return nil, err
	}

	c.RLock()
	entries := make([]dumpEntry, 0, len(c.primary))
	for keyStr, state := range c.primary {
		disabled, reason := state.Disabled()
		entries = append(entries, dumpEntry{
			Key:            keyStr,
			Hash:           state.hash,
			Disabled:       disabled,
			DisabledReason: reason,
			Used:           state.used.Uint64(),
		})
	}
	c.RUnlock()

	return jsonAPI.MarshalIndent(entries, "", "  ")
}

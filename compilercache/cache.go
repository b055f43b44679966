// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compilercache

import (
	"sync"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/compilerproxy/cache"
	"github.com/bitmark-inc/compilerproxy/compilerinfo"
	"github.com/bitmark-inc/compilerproxy/counter"
	"github.com/bitmark-inc/compilerproxy/fault"
	"github.com/bitmark-inc/compilerproxy/filestat"
)

type cacheData struct {
	sync.RWMutex

	primary   map[string]*State
	secondary map[string]map[string]struct{}

	cacheDir      string
	cacheFilename string
	holdingTime   time.Duration

	validator Validator

	numStores    counter.Counter
	numStoreDups counter.Counter
	numMiss      counter.Counter
	numFail      counter.Counter
	numUsed      counter.Counter

	loadedSize      int64
	loadedTimestamp time.Time

	log *logger.L
}

var globalData struct {
	sync.Mutex
	cache       *cacheData
	initialised bool
}

// Init performs process-wide singleton initialization. A second Init
// before Quit is a programming error.
func Init(cfg Config) error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.ErrAlreadyInitialised
	}

	if "" == cfg.CacheDir {
		return fault.ErrRequiredCacheDir
	}

	holdingTime := cfg.HoldingTime
	if holdingTime <= 0 {
		holdingTime = DefaultHoldingTime
	}

	c := &cacheData{
		primary:       make(map[string]*State),
		secondary:     make(map[string]map[string]struct{}),
		cacheDir:      cfg.CacheDir,
		cacheFilename: cfg.CacheFilename,
		holdingTime:   holdingTime,
		validator:     defaultValidator,
		log:           logger.New("compilercache"),
	}

	globalData.cache = c
	globalData.initialised = true

	registerMetrics(c)

	return nil
}

// Quit saves and releases the singleton. It is safe to call Quit
// without a prior successful Save; Quit itself calls Save once.
func Quit() {
	globalData.Lock()
	c := globalData.cache
	globalData.cache = nil
	globalData.initialised = false
	globalData.Unlock()

	if nil == c {
		return
	}
	if err := save(c); nil != err {
		c.log.Errorf("save on quit failed: %s", err)
	}
}

func current() (*cacheData, error) {
	globalData.Lock()
	c := globalData.cache
	globalData.Unlock()
	if nil == c {
		return nil, fault.ErrNotInitialised
	}
	return c, nil
}

// SetValidator replaces the default validator; a test seam.
func SetValidator(v Validator) error {
	c, err := current()
	if nil != err {
		return err
	}
	c.Lock()
	c.validator = v
	c.Unlock()
	return nil
}

// CreateKey is a pure pass-through to compilerinfo.CreateKey, kept at
// this layer so callers only need to import compilercache.
func CreateKey(flags []string, localCompilerPath string, env []string) (compilerinfo.Key, error) {
	return compilerinfo.CreateKey(flags, localCompilerPath, env)
}

// Lookup finds and validates the entry for key. It returns
// fault.ErrCacheMiss on a genuine miss and fault.ErrStale when a hit
// was invalidated by the validator; both are misses from the caller's
// point of view.
func Lookup(key compilerinfo.Key) (*State, error) {
	c, err := current()
	if nil != err {
		return nil, err
	}

	keyStr := key.ToString(false)

	// the stored stat is guarded by the cache lock (a concurrent
	// Lookup may refresh it below), so copy it out under shared mode
	c.RLock()
	state, ok := c.primary[keyStr]
	var storedStat filestat.Stat
	if ok {
		storedStat = state.stat
	}
	c.RUnlock()

	if !ok {
		c.numMiss.Increment()
		return nil, fault.ErrCacheMiss
	}

	if state.data.Failed {
		if time.Since(state.storedAt) < c.holdingTime {
			state.addRef()
			state.used.Increment()
			c.numUsed.Increment()
			return state, nil
		}
		c.Lock()
		evictIfCurrentLocked(c, keyStr, state)
		c.Unlock()
		c.numMiss.Increment()
		return nil, fault.ErrCacheMiss
	}

	path := state.key.AbsLocalCompilerPath()
	currentStat := filestat.Get(path)

	if filestat.CanBeNewerThan(currentStat, storedStat) {
		if !c.validator(state.data, path) {
			c.Lock()
			evictIfCurrentLocked(c, keyStr, state)
			c.Unlock()
			return nil, fault.ErrStale
		}
		c.Lock()
		state.stat = currentStat
		c.Unlock()
	}

	state.addRef()
	state.used.Increment()
	c.numUsed.Increment()
	return state, nil
}

// Store transfers ownership of data into the cache. Storing data
// identical to the existing entry counts a duplicate and keeps the
// existing state; a new entry whose hash aliases a disabled entry is
// created already disabled with the same reason.
func Store(key compilerinfo.Key, data *compilerinfo.Data) (*State, error) {
	c, err := current()
	if nil != err {
		return nil, err
	}

	hash := data.Hash()
	keyStr := key.ToString(false)

	c.Lock()
	defer c.Unlock()

	if existing, ok := c.primary[keyStr]; ok {
		if existing.hash == hash {
			c.numStoreDups.Increment()
			return existing, fault.ErrDuplicateCompilerInfo
		}
		evictLocked(c, keyStr, existing)
	}

	state := &State{
		key:      key,
		data:     data,
		hash:     hash,
		stat:     filestat.Get(key.AbsLocalCompilerPath()),
		storedAt: time.Now(),
		refs:     1,
	}
	if disabled, reason := aliasDisabledLocked(c, hash); disabled {
		state.markDisabled(reason)
	}

	c.primary[keyStr] = state
	if nil == c.secondary[hash] {
		c.secondary[hash] = make(map[string]struct{})
	}
	c.secondary[hash][keyStr] = struct{}{}

	c.numStores.Increment()

	if data.Failed {
		c.numFail.Increment()
	}

	return state, nil
}

// Disable marks state, and every state aliasing the same content
// hash, as disabled with reason. First-writer-wins: a state already
// disabled keeps its original reason.
func Disable(state *State, reason string) {
	c, err := current()
	if nil != err {
		return
	}

	c.Lock()
	defer c.Unlock()

	state.markDisabled(reason)

	for keyStr := range c.secondary[state.hash] {
		if s, ok := c.primary[keyStr]; ok {
			s.markDisabled(reason)
		}
	}
}

// HasCompilerMismatch is true iff any entry is disabled or currently
// stale per the validator, without mutating the cache.
func HasCompilerMismatch() bool {
	c, err := current()
	if nil != err {
		return false
	}

	c.RLock()
	defer c.RUnlock()

	for _, state := range c.primary {
		if disabled, _ := state.Disabled(); disabled {
			return true
		}
		if state.data.Failed {
			continue
		}
		path := state.key.AbsLocalCompilerPath()
		currentStat := filestat.Get(path)
		if filestat.CanBeNewerThan(currentStat, state.stat) && !c.validator(state.data, path) {
			return true
		}
	}
	return false
}

// Count returns the number of entries in the primary index.
func Count() int {
	c, err := current()
	if nil != err {
		return 0
	}
	c.RLock()
	defer c.RUnlock()
	return len(c.primary)
}

func NumStores() uint64 {
	c, err := current()
	if nil != err {
		return 0
	}
	return c.numStores.Uint64()
}

func NumStoreDups() uint64 {
	c, err := current()
	if nil != err {
		return 0
	}
	return c.numStoreDups.Uint64()
}

func NumMiss() uint64 {
	c, err := current()
	if nil != err {
		return 0
	}
	return c.numMiss.Uint64()
}

func NumFail() uint64 {
	c, err := current()
	if nil != err {
		return 0
	}
	return c.numFail.Uint64()
}

func NumUsed() uint64 {
	c, err := current()
	if nil != err {
		return 0
	}
	return c.numUsed.Uint64()
}

func LoadedSize() int64 {
	c, err := current()
	if nil != err {
		return 0
	}
	c.RLock()
	defer c.RUnlock()
	return c.loadedSize
}

func defaultValidator(data *compilerinfo.Data, localCompilerPath string) bool {
	if !data.IsValid() {
		return false
	}
	for _, rf := range data.ResourceFiles {
		if resourceStat(rf.Path).Invalid() {
			return false
		}
	}
	return true
}

// resourceStat consults the short-lived FileStatMemo pool so one
// validation pass over a long resource list does not re-stat paths
// shared between entries.
func resourceStat(path string) filestat.Stat {
	pool := cache.Pool.FileStatMemo
	if nil == pool {
		return filestat.Get(path)
	}
	if v, ok := pool.Get(path); ok {
		if st, ok := v.(filestat.Stat); ok {
			return st
		}
	}
	st := filestat.Get(path)
	pool.Put(path, st)
	return st
}

// evictIfCurrentLocked evicts only when the primary index still maps
// keyStr to this exact state: a concurrent Store may have replaced the
// entry between a lock-free check and reacquiring the lock, and the
// replacement must not be evicted on stale evidence.
func evictIfCurrentLocked(c *cacheData, keyStr string, state *State) {
	if c.primary[keyStr] == state {
		evictLocked(c, keyStr, state)
	}
}

// evictLocked removes state from both indices; it must be called while
// c's exclusive lock is held.
func evictLocked(c *cacheData, keyStr string, state *State) {
	delete(c.primary, keyStr)
	if keys, ok := c.secondary[state.hash]; ok {
		delete(keys, keyStr)
		if 0 == len(keys) {
			delete(c.secondary, state.hash)
		}
	}
	state.evicted = true
	state.Release()
}

// aliasDisabledLocked reports whether any existing state sharing hash
// is already disabled, and its reason, for propagation into a new
// Store. Must be called while c's lock is held.
func aliasDisabledLocked(c *cacheData, hash string) (bool, string) {
	for keyStr := range c.secondary[hash] {
		if s, ok := c.primary[keyStr]; ok {
			if disabled, reason := s.Disabled(); disabled {
				return true, reason
			}
		}
	}
	return false, ""
}

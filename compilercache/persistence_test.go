// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compilercache_test

import (
	"io/ioutil"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/compilerproxy/compilercache"
	"github.com/bitmark-inc/compilerproxy/compilerinfo"
)

type dumpRow struct {
	Key            string `json:"key"`
	Hash           string `json:"hash"`
	Disabled       bool   `json:"disabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	Used           uint64 `json:"used"`
}

func dumpRows(t *testing.T) []dumpRow {
	t.Helper()
	raw, err := compilercache.DumpCompilersJSON()
	require.NoError(t, err)

	var rows []dumpRow
	require.NoError(t, jsoniter.Unmarshal(raw, &rows))

	// used counters are runtime state, not part of the persisted
	// mapping
	for i := range rows {
		rows[i].Used = 0
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

// The mapping must survive Save + reload modulo entry ordering,
// including disabled flags and reasons.
func TestMarshalUnmarshalIdentity(t *testing.T) {
	dir, err := ioutil.TempDir("", "compilercache-identity-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := compilercache.Config{CacheDir: dir, CacheFilename: "compiler-info.cache", HoldingTime: time.Hour}
	require.NoError(t, compilercache.Init(cfg))

	compilerPath := tempCompiler(t, dir)

	sharedData := func() *compilerinfo.Data {
		return &compilerinfo.Data{
			Version:            "9.3.0",
			Target:             "x86_64-linux-gnu",
			Defines:            []string{"__GNUC__=9"},
			SystemIncludePaths: []string{"/usr/include"},
		}
	}

	k1 := compilerinfo.Key{Base: "b1", Cwd: dir, LocalCompilerPath: compilerPath}
	k2 := compilerinfo.Key{Base: "b2", Cwd: dir, LocalCompilerPath: compilerPath}
	k3 := compilerinfo.Key{Base: "b3", Cwd: dir, LocalCompilerPath: compilerPath}

	s1, err := compilercache.Store(k1, sharedData())
	require.NoError(t, err)
	_, err = compilercache.Store(k2, sharedData())
	require.NoError(t, err)
	_, err = compilercache.Store(k3, &compilerinfo.Data{Version: "12.0", Target: "aarch64-linux-gnu"})
	require.NoError(t, err)

	compilercache.Disable(s1, "miscompiles")

	before := dumpRows(t)
	compilercache.Quit()

	require.NoError(t, compilercache.Init(cfg))
	defer compilercache.Quit()
	require.NoError(t, compilercache.LoadIfEnabled())

	after := dumpRows(t)

	if diff := cmp.Diff(before, after); "" != diff {
		t.Fatalf("mapping changed across save/load (-before +after):\n%s", diff)
	}

	// disable propagation state survives too
	assert.True(t, compilercache.HasCompilerMismatch())
}

func TestLoadToleratesCorruptFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "compilercache-corrupt-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cachePath := dir + "/compiler-info.cache"
	require.NoError(t, ioutil.WriteFile(cachePath, []byte("{truncated"), 0644))

	cfg := compilercache.Config{CacheDir: dir, CacheFilename: "compiler-info.cache"}
	require.NoError(t, compilercache.Init(cfg))
	defer compilercache.Quit()

	require.NoError(t, compilercache.LoadIfEnabled())
	assert.Equal(t, 0, compilercache.Count())
}

func TestSaveDropsVanishedCompilers(t *testing.T) {
	dir, err := ioutil.TempDir("", "compilercache-vanish-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := compilercache.Config{CacheDir: dir, CacheFilename: "compiler-info.cache", HoldingTime: time.Hour}
	require.NoError(t, compilercache.Init(cfg))

	keepPath := tempCompiler(t, dir)
	vanishDir := dir + "/gone"
	require.NoError(t, os.MkdirAll(vanishDir, 0755))
	vanishPath := tempCompiler(t, vanishDir)

	_, err = compilercache.Store(
		compilerinfo.Key{Base: "keep", Cwd: dir, LocalCompilerPath: keepPath},
		&compilerinfo.Data{Version: "1.0", Target: "t"})
	require.NoError(t, err)
	_, err = compilercache.Store(
		compilerinfo.Key{Base: "vanish", Cwd: dir, LocalCompilerPath: vanishPath},
		&compilerinfo.Data{Version: "2.0", Target: "t"})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(vanishDir))
	compilercache.Quit()

	require.NoError(t, compilercache.Init(cfg))
	defer compilercache.Quit()
	require.NoError(t, compilercache.LoadIfEnabled())

	assert.Equal(t, 1, compilercache.Count())
}

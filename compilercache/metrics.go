// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compilercache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var metricsOnce sync.Once

// registerMetrics exports the cache's counters as Prometheus gauges.
// Registration happens lazily, on Init, so importing this package
// never requires a running registry.
func registerMetrics(c *cacheData) {
	metricsOnce.Do(func() {
		gauge := func(name, help string, f func() float64) {
			prometheus.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace: "compilerproxy",
					Subsystem: "compilercache",
					Name:      name,
					Help:      help,
				},
				f,
			))
		}

		gauge("entries", "number of entries in the primary index", func() float64 {
			return float64(Count())
		})
		gauge("stores_total", "number of Store calls that inserted a new entry", func() float64 {
			return float64(NumStores())
		})
		gauge("store_duplicates_total", "number of Store calls that observed an existing identical entry", func() float64 {
			return float64(NumStoreDups())
		})
		gauge("misses_total", "number of Lookup calls that missed", func() float64 {
			return float64(NumMiss())
		})
		gauge("failures_total", "number of stored negative (failed-probe) entries", func() float64 {
			return float64(NumFail())
		})
		gauge("used_total", "number of Lookup calls that hit", func() float64 {
			return float64(NumUsed())
		})
	})
}

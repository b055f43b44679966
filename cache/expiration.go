// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cache

import (
	"reflect"
	"time"
)

// expired entries (FileStatMemo's live only 2 seconds) can stay in
// memory for up to one sweep interval; Get already refuses expired
// entries, so the sweep is purely about reclaiming memory
const expirationCheckInterval = 30 * time.Second

type cleaner struct{}

func (c *cleaner) Run(args interface{}, shutdown <-chan struct{}) {
	ticker := time.NewTicker(expirationCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			deleteExpiredItems()
		}
	}
}

func deleteExpiredItems() {
	poolType := reflect.TypeOf(Pool)
	poolValue := reflect.ValueOf(&Pool).Elem()

	for i := 0; i < poolType.NumField(); i++ {
		p := poolValue.Field(i).Interface().(*poolData)

		p.Lock()
		for key, item := range p.items {
			if expired(item.expiresAt) {
				delete(p.items, key)
			}
		}
		p.Unlock()
	}
}

func expired(exp time.Time) bool {
	return !exp.IsZero() && time.Since(exp) > 0
}

// Copyright (c) 2014-2017 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cache

import (
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	Initialise()
	defer Finalise()

	Pool.OAuthTokens.Put("key-one", "data-one")
	Pool.OAuthTokens.Put("key-two", "data-two")
	Pool.OAuthTokens.Put("key-remove-me", "to be deleted")
	Pool.OAuthTokens.Delete("key-remove-me")
	Pool.OAuthTokens.Put("key-three", "data-three")
	Pool.OAuthTokens.Put("key-one", "data-one")     // duplicate
	Pool.OAuthTokens.Put("key-three", "data-three") // duplicate
	Pool.OAuthTokens.Put("key-four", "data-four")
	Pool.OAuthTokens.Put("key-delete-this", "to be deleted")
	Pool.OAuthTokens.Put("key-five", "data-five")
	Pool.OAuthTokens.Put("key-six", "data-six")
	Pool.OAuthTokens.Delete("key-delete-this")
	Pool.OAuthTokens.Put("key-seven", "data-seven")
	Pool.OAuthTokens.Put("key-one", "data-one(NEW)") // duplicate
	expectedItems := map[string]string{
		"key-one":   "data-one(NEW)",
		"key-two":   "data-two",
		"key-three": "data-three",
		"key-four":  "data-four",
		"key-five":  "data-five",
		"key-six":   "data-six",
		"key-seven": "data-seven",
	}

	if Pool.OAuthTokens.Size() != len(expectedItems) {
		t.Errorf("Length mismatch, got: %d  expected: %d", Pool.OAuthTokens.Size(), len(expectedItems))
	}

	for key, val := range Pool.OAuthTokens.Items() {
		expVal, ok := expectedItems[key]
		if !ok || val.(string) != expVal {
			t.Fail()
		}
	}
}

func TestExpiration(t *testing.T) {
	Initialise()
	defer Finalise()

	Pool.FileStatMemo.Put("a1", struct{}{})
	Pool.FileStatMemo.Put("a2", struct{}{})
	Pool.FileStatMemo.Put("a3", struct{}{})
	Pool.OAuthTokens.Put("b1", struct{}{})
	Pool.OAuthTokens.Put("b2", struct{}{})
	Pool.OAuthTokens.Put("b3", struct{}{})
	expectedKeysInPoolA := map[string]bool{"a1": false, "a2": false, "a3": false}
	expectedKeysInPoolB := map[string]bool{"b1": true, "b2": true, "b3": true}

	time.Sleep(3 * time.Second)
	deleteExpiredItems()

	for key, existed := range expectedKeysInPoolA {
		_, ok := Pool.FileStatMemo.Get(key)
		if ok != existed {
			t.Fatalf("the existence of key \"%s\" should be %t instead of %t", key, existed, ok)
		}
	}

	for key, existed := range expectedKeysInPoolB {
		_, ok := Pool.OAuthTokens.Get(key)
		if ok != existed {
			t.Fatalf("the existence of key \"%s\" should be %t instead of %t", key, existed, ok)
		}
	}
}

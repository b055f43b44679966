// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/oauth2"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// tokenStore persists refreshed OAuth2 tokens across process restarts
// in a small leveldb keyed by account email, so a restarted driver
// does not immediately re-mint a token.
type tokenStore struct {
	db *leveldb.DB
}

func openTokenStore(path string) (*tokenStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if nil != err {
		return nil, err
	}
	return &tokenStore{db: db}, nil
}

func (s *tokenStore) get(account string) (*oauth2.Token, bool) {
	raw, err := s.db.Get([]byte(account), nil)
	if nil != err {
		return nil, false
	}
	var tok oauth2.Token
	if err := jsonAPI.Unmarshal(raw, &tok); nil != err {
		return nil, false
	}
	return &tok, true
}

func (s *tokenStore) put(account string, tok *oauth2.Token) {
	raw, err := jsonAPI.Marshal(tok)
	if nil != err {
		return
	}
	_ = s.db.Put([]byte(account), raw, nil)
}

func (s *tokenStore) delete(account string) {
	_ = s.db.Delete([]byte(account), nil)
}

func (s *tokenStore) close() {
	_ = s.db.Close()
}

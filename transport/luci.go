// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// luciContext is the subset of a LUCI_CONTEXT file the token source
// needs: the local auth server's port, its shared secret, and the
// account to mint tokens for.
type luciContext struct {
	LocalAuth struct {
		RPCPort          int    `json:"rpc_port"`
		Secret           string `json:"secret"`
		DefaultAccountID string `json:"default_account_id"`
	} `json:"local_auth"`
}

// luciTokenSource mints access tokens from the LUCI local auth server
// described by a LUCI_CONTEXT file.
type luciTokenSource struct {
	ctx    luciContext
	scopes []string
	client *http.Client
}

func newLUCITokenSource(contextPath string, scopes []string) (*luciTokenSource, string, error) {
	raw, err := ioutil.ReadFile(contextPath)
	if nil != err {
		return nil, "", err
	}
	var ctx luciContext
	if err := jsonAPI.Unmarshal(raw, &ctx); nil != err {
		return nil, "", err
	}
	if 0 == ctx.LocalAuth.RPCPort {
		return nil, "", fmt.Errorf("luci context %q has no local_auth server", contextPath)
	}
	src := &luciTokenSource{
		ctx:    ctx,
		scopes: scopes,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	return src, ctx.LocalAuth.DefaultAccountID, nil
}

// Token implements oauth2.TokenSource against the local RPC endpoint.
func (l *luciTokenSource) Token() (*oauth2.Token, error) {
	request := struct {
		Scopes    []string `json:"scopes"`
		Secret    string   `json:"secret"`
		AccountID string   `json:"account_id"`
	}{
		Scopes:    l.scopes,
		Secret:    l.ctx.LocalAuth.Secret,
		AccountID: l.ctx.LocalAuth.DefaultAccountID,
	}

	body, err := jsonAPI.Marshal(request)
	if nil != err {
		return nil, err
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/rpc/LuciLocalAuthService.GetOAuthToken", l.ctx.LocalAuth.RPCPort)
	resp, err := l.client.Post(url, "application/json", bytes.NewReader(body))
	if nil != err {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if nil != err {
		return nil, err
	}
	if http.StatusOK != resp.StatusCode {
		return nil, fmt.Errorf("luci local auth: status %d", resp.StatusCode)
	}

	var reply struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
		AccessToken  string `json:"access_token"`
		Expiry       int64  `json:"expiry"`
	}
	if err := jsonAPI.Unmarshal(raw, &reply); nil != err {
		return nil, err
	}
	if 0 != reply.ErrorCode {
		return nil, fmt.Errorf("luci local auth: error %d: %s", reply.ErrorCode, reply.ErrorMessage)
	}

	return &oauth2.Token{
		AccessToken: reply.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Unix(reply.Expiry, 0),
	}, nil
}

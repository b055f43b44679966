// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/compilerproxy/background"
	"github.com/bitmark-inc/compilerproxy/cache"
)

// TokenSource supplies bearer tokens for outgoing requests.
// Invalidate discards the current token; the next Token call blocks
// until the shared refresher has minted a fresh one. The interface is
// the seam client tests mock.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// refreshMargin is how long before expiry the background refresher
// re-mints a token.
const refreshMargin = 5 * time.Minute

// oauthProvider is the production TokenSource: one background refresh
// task shared by all transactions, which suspend on a per-client
// condition until a refresh completes.
type oauthProvider struct {
	mu   sync.Mutex
	cond *sync.Cond

	source  oauth2.TokenSource
	current *oauth2.Token
	lastErr error

	refreshing bool
	demand     chan struct{}

	account string
	store   *tokenStore

	bg  *background.T
	log *logger.L
}

// Run implements background.Process: the single refresh task shared by
// all transactions. It refreshes on demand and proactively before the
// current token expires.
func (p *oauthProvider) Run(args interface{}, shutdown <-chan struct{}) {
	for {
		select {
		case <-shutdown:
			return
		case <-p.demand:
			p.refresh()
		case <-time.After(p.nextRefreshDelay()):
			p.mu.Lock()
			need := nil != p.current && !p.refreshing
			if need {
				p.refreshing = true
			}
			p.mu.Unlock()
			if need {
				p.refresh()
			}
		}
	}
}

// selectTokenSource picks the credential source by the first
// configured option field: refresh token, then service-account JSON,
// then GCE metadata, then LUCI context.
func selectTokenSource(ctx context.Context, opts OAuthOptions) (oauth2.TokenSource, string, error) {
	switch {
	case "" != opts.RefreshToken:
		cfg := &oauth2.Config{
			ClientID:     opts.RefreshTokenID,
			ClientSecret: opts.RefreshTokenSecret,
			Endpoint:     google.Endpoint,
			Scopes:       opts.Scopes,
		}
		return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: opts.RefreshToken}), opts.RefreshTokenID, nil

	case len(opts.ServiceAccountJSON) > 0:
		jwtCfg, err := google.JWTConfigFromJSON(opts.ServiceAccountJSON, opts.Scopes...)
		if nil != err {
			return nil, "", err
		}
		return jwtCfg.TokenSource(ctx), jwtCfg.Email, nil

	case opts.UseGCEMetadata:
		return google.ComputeTokenSource(""), "gce-default", nil

	case "" != opts.LUCIContextPath:
		src, account, err := newLUCITokenSource(opts.LUCIContextPath, opts.Scopes)
		if nil != err {
			return nil, "", err
		}
		return src, account, nil
	}
	return nil, "", nil
}

// newOAuthProvider returns nil when no credential source is
// configured: the client then sends unauthenticated requests.
func newOAuthProvider(opts OAuthOptions, log *logger.L) (*oauthProvider, error) {
	source, account, err := selectTokenSource(context.Background(), opts)
	if nil != err {
		return nil, err
	}
	if nil == source {
		return nil, nil
	}

	p := &oauthProvider{
		source:  source,
		account: account,
		demand:  make(chan struct{}, 1),
		log:     log,
	}
	p.cond = sync.NewCond(&p.mu)

	if "" != opts.TokenCachePath {
		store, err := openTokenStore(opts.TokenCachePath)
		if nil != err {
			log.Warnf("token cache %q unusable, proceeding without: %s", opts.TokenCachePath, err)
		} else {
			p.store = store
		}
	}

	// warm start: the in-memory staging pool first, then the
	// persistent store
	if nil != cache.Pool.OAuthTokens {
		if v, ok := cache.Pool.OAuthTokens.Get(account); ok {
			if tok, ok := v.(*oauth2.Token); ok && tok.Valid() {
				p.current = tok
			}
		}
	}
	if nil == p.current && nil != p.store {
		if tok, ok := p.store.get(account); ok && tok.Valid() {
			p.current = tok
		}
	}

	p.bg = background.Start(background.Processes{p}, nil)
	return p, nil
}

// Token returns a valid access token, triggering a refresh and
// suspending on the client condition if the current one is missing or
// stale.
func (p *oauthProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if nil != p.current && p.current.Valid() {
			return p.current.AccessToken, nil
		}

		if err := ctx.Err(); nil != err {
			return "", err
		}

		if !p.refreshing {
			p.refreshing = true
			p.lastErr = nil
			select {
			case p.demand <- struct{}{}:
			default:
			}
		}

		p.cond.Wait()

		if nil != p.lastErr {
			return "", p.lastErr
		}
	}
}

// Invalidate discards the current token everywhere: memory, the
// staging pool and the persistent store. Called on 401/403.
func (p *oauthProvider) Invalidate() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	if nil != cache.Pool.OAuthTokens {
		cache.Pool.OAuthTokens.Delete(p.account)
	}
	if nil != p.store {
		p.store.delete(p.account)
	}
}

// refresh mints a new token and wakes every suspended transaction.
func (p *oauthProvider) refresh() {
	tok, err := p.source.Token()

	p.mu.Lock()
	if nil != err {
		p.lastErr = err
		p.log.Errorf("token refresh failed: %s", err)
	} else {
		p.current = tok
		p.lastErr = nil
	}
	p.refreshing = false
	p.mu.Unlock()
	p.cond.Broadcast()

	if nil == err {
		if nil != cache.Pool.OAuthTokens {
			cache.Pool.OAuthTokens.Put(p.account, tok)
		}
		if nil != p.store {
			p.store.put(p.account, tok)
		}
	}
}

// nextRefreshDelay returns how long until the current token needs
// proactive refreshing.
func (p *oauthProvider) nextRefreshDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if nil == p.current || p.current.Expiry.IsZero() {
		return time.Hour
	}
	d := time.Until(p.current.Expiry) - refreshMargin
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (p *oauthProvider) stop() {
	p.bg.Stop()

	// wake anything still suspended so Shutdown cannot strand a
	// transaction on the condition
	p.mu.Lock()
	p.lastErr = context.Canceled
	p.refreshing = false
	p.mu.Unlock()
	p.cond.Broadcast()

	if nil != p.store {
		p.store.close()
	}
}

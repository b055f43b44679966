// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/compilerproxy/fault"
	"github.com/bitmark-inc/compilerproxy/util"
)

// Response is what a transaction produces: the status line and
// headers, plus a Body sink that consumed the payload. Construct one
// with NewResponse for an in-memory body or NewFileDownloadResponse to
// stream straight to a file.
type Response struct {
	StatusCode int
	Header     http.Header

	targetPath string
	parsed     *parsedBody
	download   *fileDownloadBody
}

// NewResponse returns a Response that buffers and decodes the payload
// in memory according to Content-Encoding.
func NewResponse() *Response {
	return &Response{}
}

// NewFileDownloadResponse returns a Response that streams the payload
// to targetPath with an atomic tmp/write/fsync/rename.
func NewFileDownloadResponse(targetPath string) *Response {
	return &Response{targetPath: targetPath}
}

// Bytes returns the decoded in-memory payload; nil for file downloads.
func (r *Response) Bytes() []byte {
	if nil == r.parsed {
		return nil
	}
	return r.parsed.Bytes()
}

// Body exposes the sink that consumed the payload.
func (r *Response) Body() Body {
	if nil != r.download {
		return r.download
	}
	if nil != r.parsed {
		return r.parsed
	}
	return nil
}

// Client is the HTTP transport core: one long-lived client to one
// remote endpoint, shared by every requester thread.
type Client struct {
	options Options
	log     *logger.L

	httpClient *http.Client
	hostPort   string

	sem     *semaphore.Weighted
	backoff *backoff
	health  healthWindow
	netErr  *networkErrorStatus
	tokens  TokenSource
	conns   *connTracker

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	activeCV  *sync.Cond
	numActive int
	shutdown  bool
}

// NewClient builds a transport from options. onNetworkErrorDetected
// and onNetworkRecovered are the edge-trigger callbacks of the
// network-error state machine; either may be nil.
func NewClient(options Options, onNetworkErrorDetected, onNetworkRecovered func()) (*Client, error) {
	options = options.withDefaults()

	if "" == options.DestHostName {
		return nil, fault.ErrInvalidIPAddress
	}
	if options.DestPort <= 0 || options.DestPort > 65535 {
		return nil, fault.ErrInvalidPortNumber
	}

	log := logger.New("transport")

	c := &Client{
		options:  options,
		log:      log,
		hostPort: net.JoinHostPort(options.DestHostName, fmt.Sprintf("%d", options.DestPort)),
		sem:      semaphore.NewWeighted(options.MaxConcurrentTransactions),
		backoff:  newBackoff(options.MinRetryBackoff, options.MaxRetryBackoff),
		netErr:   newNetworkErrorStatus(options.NetworkErrorMargin, onNetworkErrorDetected, onNetworkRecovered),
		conns:    newConnTracker(options.NetworkErrorMargin),
	}
	c.activeCV = sync.NewCond(&c.mu)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	tlsConfig, err := tlsConfigFor(options)
	if nil != err {
		return nil, err
	}

	res := newResolver()
	baseDial := res.dialContext(options.RequestTimeout)
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := baseDial(ctx, network, addr)
		if nil != err {
			c.conns.dialFailed(addr)
			return nil, err
		}
		c.conns.dialSucceeded(addr)
		return conn, nil
	}

	httpTransport := &http.Transport{
		Proxy:               proxyFunc(options),
		DialContext:         dial,
		TLSClientConfig:     tlsConfig,
		DisableKeepAlives:   !options.ReuseConnection,
		MaxIdleConnsPerHost: int(options.MaxConcurrentTransactions),
		IdleConnTimeout:     90 * time.Second,
	}

	c.httpClient = &http.Client{
		Transport: httpTransport,
		// a fatal redirect status must surface as-is, not be followed
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	tokens, err := newOAuthProvider(options.OAuth, log)
	if nil != err {
		return nil, err
	}
	if nil != tokens {
		c.tokens = tokens
	}

	if usesProxy(options) {
		log.Infof("proxy: %s:%d", options.ProxyHostName, options.ProxyPort)
	}
	log.Infof("client created for %s prefix %q", c.hostPort, options.URLPathPrefix)
	return c, nil
}

// tlsConfigFor builds the TLS client configuration: optional extra CA
// certificates and optional peer-certificate fingerprint pinning.
func tlsConfigFor(options Options) (*tls.Config, error) {
	if !options.UseTLS {
		return nil, nil
	}

	cfg := &tls.Config{}

	if len(options.SSLExtraCert) > 0 {
		pool, err := x509.SystemCertPool()
		if nil != err {
			pool = x509.NewCertPool()
		}
		for _, pem := range options.SSLExtraCert {
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fault.ErrUnmarshalTextFail
			}
		}
		cfg.RootCAs = pool
	}

	if "" != options.PinnedFingerprint {
		want := strings.ToLower(options.PinnedFingerprint)
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
			for _, raw := range rawCerts {
				fp := util.Fingerprint(raw)
				if hex.EncodeToString(fp[:]) == want {
					return nil
				}
			}
			return fault.ErrTransportNetworkError
		}
	}

	return cfg, nil
}

// SetTokenSource replaces the token source; a test seam in the same
// spirit as compilercache.SetValidator.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// InitRequest fills in the destination host, URL prefix and Host
// header on req, leaving method and path to the caller's arguments.
func (c *Client) InitRequest(req *http.Request, method, path string) error {
	if nil == req.URL {
		req.URL = new(url.URL)
	}
	req.Method = method
	req.URL.Scheme = "http"
	if c.options.UseTLS {
		req.URL.Scheme = "https"
	}
	req.URL.Host = c.hostPort
	req.URL.Path = c.options.URLPathPrefix + path
	req.Host = c.hostPort

	if nil == req.Header {
		req.Header = make(http.Header)
	}
	return nil
}

// Do runs one transaction synchronously, returning once
// status.Finished is set.
func (c *Client) Do(ctx context.Context, req *http.Request, resp *Response, status *Status) error {
	c.transact(ctx, req, resp, status)
	return status.Err
}

// DoAsync runs the transaction on its own goroutine; callback (which
// may be nil) runs once status.Finished flips. The caller retains
// ownership of req, resp and status until then.
func (c *Client) DoAsync(ctx context.Context, req *http.Request, resp *Response, status *Status, callback func()) {
	go func() {
		c.transact(ctx, req, resp, status)
		if nil != callback {
			callback()
		}
	}()
}

// Wait blocks until the transaction reaches a terminal state.
func (c *Client) Wait(status *Status) {
	status.Wait()
}

// Shutdown rejects new work and fails all in-flight transactions with
// a cancellation error, returning once the last one drains.
func (c *Client) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.mu.Unlock()

	c.cancel()

	c.mu.Lock()
	for c.numActive > 0 {
		c.activeCV.Wait()
	}
	c.mu.Unlock()

	if p, ok := c.tokens.(*oauthProvider); ok && nil != p {
		p.stop()
	}

	c.httpClient.CloseIdleConnections()
	c.log.Info("shutdown complete")
}

// IsHealthy reports overall transport health: not shut down and not in
// the network-error state.
func (c *Client) IsHealthy() bool {
	c.mu.Lock()
	down := c.shutdown
	c.mu.Unlock()
	return !down && !c.netErr.IsInError()
}

// IsHealthyRecently reports whether, over the rolling window, the
// fraction of non-2xx responses stays below the configured threshold.
// An empty window counts as healthy.
func (c *Client) IsHealthyRecently() bool {
	bad, total := c.health.badFraction(time.Now())
	if 0 == total {
		return true
	}
	return float64(bad)/float64(total)*100 < c.options.NetworkErrorThresholdPercent
}

// RampUp returns the current admission percentage in [0, 100].
func (c *Client) RampUp() int {
	return rampUpPercent(c.options.EnabledFrom, c.options.RampUpWindow, time.Now())
}

// ConnectionCounts returns per-host transaction counts for the status
// page.
func (c *Client) ConnectionCounts() map[string]uint64 {
	return c.conns.snapshot()
}

// transact drives one transaction through admission, the retry loop
// and completion. All terminal paths go through status.finish.
func (c *Client) transact(ctx context.Context, req *http.Request, resp *Response, status *Status) {
	if nil == ctx {
		ctx = context.Background()
	}

	// admission: shutdown, then ramp-up, then backoff pacing
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		status.finish(fault.ErrCanceled)
		return
	}
	c.numActive++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.numActive--
		if 0 == c.numActive {
			c.activeCV.Broadcast()
		}
		c.mu.Unlock()
	}()

	if !admitRampUp(c.RampUp()) {
		status.ThrottleCount.Increment()
		status.finish(fault.ErrThrottled)
		return
	}

	if err := c.backoff.throttle(); nil != err {
		status.ThrottleCount.Increment()
		status.finish(err)
		return
	}

	if c.conns.recentlyUnreachable(c.hostPort) {
		// no socket available: a network-error trigger without
		// touching the wire
		c.netErr.observeError(time.Now())
		status.finish(fault.ErrTransportNetworkError)
		return
	}

	status.setState(Pending)
	pendingStart := time.Now()

	if err := c.sem.Acquire(ctx, 1); nil != err {
		status.finish(fault.ErrCanceled)
		return
	}
	defer c.sem.Release(1)

	status.mu.Lock()
	status.PendingDuration = time.Since(pendingStart)
	status.mu.Unlock()

	c.conns.observe(c.hostPort)

	var lastErr error

	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		select {
		case <-c.ctx.Done():
			status.finish(fault.ErrCanceled)
			return
		case <-ctx.Done():
			status.finish(fault.ErrCanceled)
			return
		default:
		}

		if attempt > 0 {
			status.RetryCount.Increment()
			select {
			case <-time.After(c.backoff.delay()):
			case <-c.ctx.Done():
				status.finish(fault.ErrCanceled)
				return
			case <-ctx.Done():
				status.finish(fault.ErrCanceled)
				return
			}
		}

		retriable, err := c.attempt(ctx, req, resp, status)
		if nil == err {
			status.finish(nil)
			return
		}
		lastErr = err
		if !retriable {
			status.finish(err)
			return
		}
		c.backoff.onFailure()
		c.log.Warnf("[%s] attempt %d failed: %s", status.TraceID, attempt, err)
	}

	status.finish(lastErr)
}

// attempt runs one wire round trip. The bool result reports whether
// the error is retriable: connection failures, socket timeouts and
// idempotent-method 5xx are; fatal statuses (302, 401, 403) and other
// HTTP errors are not.
func (c *Client) attempt(ctx context.Context, req *http.Request, resp *Response, status *Status) (bool, error) {
	attemptCtx, cancelAttempt := context.WithTimeout(ctx, c.options.RequestTimeout)
	defer cancelAttempt()

	// fold the client-wide shutdown context in
	go func() {
		select {
		case <-c.ctx.Done():
			cancelAttempt()
		case <-attemptCtx.Done():
		}
	}()

	httpReq := req.Clone(attemptCtx)
	if nil != req.GetBody {
		body, err := req.GetBody()
		if nil != err {
			return false, fault.ErrTransportNetworkError
		}
		httpReq.Body = body
	}

	if nil != c.tokens {
		tok, err := c.tokens.Token(attemptCtx)
		if nil != err {
			return false, fault.ErrTransportNetworkError
		}
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	status.setState(SendingRequest)
	sendStart := time.Now()
	var receiveStart time.Time

	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) {
			status.setState(RequestSent)
			status.mu.Lock()
			status.SendingRequestDuration = time.Since(sendStart)
			status.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			status.setState(ReceivingResponse)
			receiveStart = time.Now()
		},
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(attemptCtx, trace))

	httpResp, err := c.httpClient.Do(httpReq)
	if nil != err {
		status.ConnectFailures.Increment()
		now := time.Now()

		if isTimeout(err) {
			return true, fault.ErrTransportTimeout
		}
		if nil != attemptCtx.Err() && nil == ctx.Err() && nil == c.ctx.Err() {
			return true, fault.ErrTransportTimeout
		}
		c.netErr.observeError(now)
		return true, fault.ErrTransportNetworkError
	}
	defer httpResp.Body.Close()

	now := time.Now()
	c.health.observe(httpResp.StatusCode, now)

	resp.StatusCode = httpResp.StatusCode
	resp.Header = httpResp.Header

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		if err := c.consumeBody(httpResp, resp); nil != err {
			c.netErr.observeError(time.Now())
			return false, err
		}
		c.netErr.observeSuccess(now)
		c.backoff.onSuccess()
		if !receiveStart.IsZero() {
			status.mu.Lock()
			status.ReceivingResponseDuration = time.Since(receiveStart)
			status.mu.Unlock()
		}
		status.setState(ResponseReceived)
		status.mu.Lock()
		status.StatusCode = httpResp.StatusCode
		status.mu.Unlock()
		return false, nil

	case http.StatusFound == httpResp.StatusCode,
		http.StatusUnauthorized == httpResp.StatusCode,
		http.StatusForbidden == httpResp.StatusCode:
		// fatal network errors: trigger the edge, invalidate any
		// bearer token so the next attempt re-mints
		c.netErr.observeError(now)
		if nil != c.tokens && http.StatusFound != httpResp.StatusCode {
			c.tokens.Invalidate()
		}
		status.mu.Lock()
		status.StatusCode = httpResp.StatusCode
		status.mu.Unlock()
		return false, fault.ErrTransportNetworkError

	case httpResp.StatusCode >= 500 && isIdempotent(req.Method):
		status.mu.Lock()
		status.StatusCode = httpResp.StatusCode
		status.mu.Unlock()
		return true, fault.ErrTransportHttpError

	default:
		status.mu.Lock()
		status.StatusCode = httpResp.StatusCode
		status.mu.Unlock()
		return false, fault.ErrTransportHttpError
	}
}

// consumeBody drains the wire into the Response's sink, enforcing the
// Content-Length contract: a mismatch between the declared and
// received byte count is a network error.
func (c *Client) consumeBody(httpResp *http.Response, resp *Response) error {
	if "" != resp.targetPath {
		dl, err := newFileDownloadBody(resp.targetPath)
		if nil != err {
			return err
		}
		resp.download = dl
		if err := dl.WriteFrom(httpResp.Body); nil != err {
			return err
		}
		if httpResp.ContentLength >= 0 && dl.ByteCount() != httpResp.ContentLength {
			return fault.ErrTransportNetworkError
		}
		return nil
	}

	pb, err := newParsedBody(httpResp)
	if nil != err {
		return err
	}
	resp.parsed = pb

	// only an identity body can be compared against Content-Length;
	// decoded bodies legitimately differ
	encoding := httpResp.Header.Get("Content-Encoding")
	if ("" == encoding || "identity" == encoding) &&
		httpResp.ContentLength >= 0 && pb.ByteCount() != httpResp.ContentLength {
		return fault.ErrTransportNetworkError
	}

	buf, err := pb.Next()
	if nil != err {
		return fault.ErrTransportNetworkError
	}
	if state, err := pb.Process(len(buf)); Ok != state {
		if nil != err {
			return err
		}
		return fault.ErrTransportNetworkError
	}
	return nil
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	type timeouter interface {
		Timeout() bool
	}
	for e := err; nil != e; {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return true
		}
		type unwrapper interface {
			Unwrap() error
		}
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

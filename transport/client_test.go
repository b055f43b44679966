// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/compilerproxy/fault"
	"github.com/bitmark-inc/compilerproxy/transport"
	"github.com/bitmark-inc/compilerproxy/transport/mocks"
)

func newTestClient(t *testing.T, serverURL string, opts transport.Options) *transport.Client {
	t.Helper()

	host, port := hostPortOf(t, serverURL)
	opts.DestHostName = host
	opts.DestPort = port
	if opts.MinRetryBackoff == 0 {
		opts.MinRetryBackoff = time.Millisecond
	}
	if opts.MaxRetryBackoff == 0 {
		opts.MaxRetryBackoff = 5 * time.Millisecond
	}

	c, err := transport.NewClient(opts, nil, nil)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prefix/compile", r.URL.Path)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, transport.Options{URLPathPrefix: "/prefix"})

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))

	resp := transport.NewResponse()
	status := transport.NewStatus()

	require.NoError(t, c.Do(context.Background(), req, resp, status))

	assert.True(t, status.Finished())
	assert.Equal(t, transport.ResponseReceived, status.State())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("hello"), resp.Bytes())
	assert.True(t, c.IsHealthy())
	assert.True(t, c.IsHealthyRecently())
}

func TestRetryOnIdempotent5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, transport.Options{MaxRetries: 3})

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))

	resp := transport.NewResponse()
	status := transport.NewStatus()

	require.NoError(t, c.Do(context.Background(), req, resp, status))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 2, status.RetryCount.Uint64())
}

func TestNoRetryOnNonIdempotent5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, transport.Options{MaxRetries: 3})

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodPost, "/compile"))

	resp := transport.NewResponse()
	status := transport.NewStatus()

	err := c.Do(context.Background(), req, resp, status)
	assert.Equal(t, fault.ErrTransportHttpError, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestContentLengthMismatchIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		// declare ten bytes, deliver five, slam the connection
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhello"))
		conn.Close()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, transport.Options{MaxRetries: 0})

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/artifact"))

	resp := transport.NewResponse()
	status := transport.NewStatus()

	err := c.Do(context.Background(), req, resp, status)
	assert.Equal(t, fault.ErrTransportNetworkError, err)
}

func TestThrottledBeforeEnabledFrom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, transport.Options{
		EnabledFrom:  time.Now().Add(time.Hour),
		RampUpWindow: time.Hour,
	})

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))

	status := transport.NewStatus()
	err := c.Do(context.Background(), req, transport.NewResponse(), status)
	assert.Equal(t, fault.ErrThrottled, err)
	assert.EqualValues(t, 1, status.ThrottleCount.Uint64())
	assert.Equal(t, 0, c.RampUp())
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	detected := 0
	host, port := hostPortOf(t, srv.URL)
	c, err := transport.NewClient(transport.Options{
		DestHostName:    host,
		DestPort:        port,
		MinRetryBackoff: time.Millisecond,
		MaxRetryBackoff: 5 * time.Millisecond,
	}, func() { detected++ }, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	ctl := gomock.NewController(t)
	defer ctl.Finish()

	tokens := mocks.NewMockTokenSource(ctl)
	tokens.EXPECT().Token(gomock.Any()).Return("test-token", nil)
	tokens.EXPECT().Invalidate()
	c.SetTokenSource(tokens)

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))

	status := transport.NewStatus()
	err = c.Do(context.Background(), req, transport.NewResponse(), status)
	assert.Equal(t, fault.ErrTransportNetworkError, err)
	assert.Equal(t, 1, detected)
	assert.False(t, c.IsHealthy())
}

func TestShutdownCancelsInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	host, port := hostPortOf(t, srv.URL)
	c, err := transport.NewClient(transport.Options{
		DestHostName:    host,
		DestPort:        port,
		MinRetryBackoff: time.Millisecond,
		MaxRetryBackoff: 5 * time.Millisecond,
		RequestTimeout:  time.Minute,
	}, nil, nil)
	require.NoError(t, err)

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))

	status := transport.NewStatus()
	done := make(chan struct{})
	c.DoAsync(context.Background(), req, transport.NewResponse(), status, func() {
		close(done)
	})

	time.Sleep(50 * time.Millisecond)
	c.Shutdown()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transaction did not finish after Shutdown")
	}

	assert.True(t, status.Finished())
	assert.Equal(t, fault.ErrCanceled, status.Err)

	// new work is rejected outright
	status2 := transport.NewStatus()
	err = c.Do(context.Background(), req, transport.NewResponse(), status2)
	assert.Equal(t, fault.ErrCanceled, err)
}

func TestConnectionRefusedFastFail(t *testing.T) {
	// a server that is already gone
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srvURL := srv.URL
	srv.Close()

	detected := 0
	host, port := hostPortOf(t, srvURL)
	c, err := transport.NewClient(transport.Options{
		DestHostName:    host,
		DestPort:        port,
		MinRetryBackoff: time.Millisecond,
		MaxRetryBackoff: 2 * time.Millisecond,
		MaxRetries:      1,
	}, func() { detected++ }, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))

	status := transport.NewStatus()
	err = c.Do(context.Background(), req, transport.NewResponse(), status)
	assert.Equal(t, fault.ErrTransportNetworkError, err)
	assert.Equal(t, 1, detected)
	assert.True(t, status.ConnectFailures.Uint64() >= 1)

	// the next transaction fails fast on the unreachable mark
	// without touching the wire
	status2 := transport.NewStatus()
	err = c.Do(context.Background(), req, transport.NewResponse(), status2)
	assert.Equal(t, fault.ErrTransportNetworkError, err)
	assert.EqualValues(t, 0, status2.ConnectFailures.Uint64())
}

func TestWaitBlocksUntilFinished(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, transport.Options{})

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))

	status := transport.NewStatus()
	c.DoAsync(context.Background(), req, transport.NewResponse(), status, nil)

	c.Wait(status)
	assert.True(t, status.Finished())
	assert.NoError(t, status.Err)
}

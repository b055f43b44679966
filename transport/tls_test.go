// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport_test

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitmark-inc/certgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/compilerproxy/fault"
	"github.com/bitmark-inc/compilerproxy/transport"
	"github.com/bitmark-inc/compilerproxy/util"
)

func selfSignedServer(t *testing.T) (*httptest.Server, []byte, tls.Certificate) {
	t.Helper()

	certPEM, keyPEM, err := certgen.NewTLSCertPair(
		"transport test cert",
		time.Now().Add(time.Hour),
		true,
		[]string{"127.0.0.1"},
	)
	require.NoError(t, err)

	keyPair, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secure"))
	}))
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{keyPair}}
	srv.StartTLS()

	return srv, certPEM, keyPair
}

func TestTLSWithExtraCert(t *testing.T) {
	srv, certPEM, _ := selfSignedServer(t)
	defer srv.Close()

	host, port := hostPortOf(t, srv.URL)
	c, err := transport.NewClient(transport.Options{
		DestHostName:    host,
		DestPort:        port,
		UseTLS:          true,
		SSLExtraCert:    [][]byte{certPEM},
		MinRetryBackoff: time.Millisecond,
		MaxRetryBackoff: 5 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))
	assert.Equal(t, "https", req.URL.Scheme)

	resp := transport.NewResponse()
	require.NoError(t, c.Do(context.Background(), req, resp, transport.NewStatus()))
	assert.Equal(t, []byte("secure"), resp.Bytes())
}

func TestTLSFingerprintPinning(t *testing.T) {
	srv, certPEM, keyPair := selfSignedServer(t)
	defer srv.Close()

	fp := util.Fingerprint(keyPair.Certificate[0])

	host, port := hostPortOf(t, srv.URL)
	c, err := transport.NewClient(transport.Options{
		DestHostName:      host,
		DestPort:          port,
		UseTLS:            true,
		SSLExtraCert:      [][]byte{certPEM},
		PinnedFingerprint: hex.EncodeToString(fp[:]),
		MinRetryBackoff:   time.Millisecond,
		MaxRetryBackoff:   5 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))
	require.NoError(t, c.Do(context.Background(), req, transport.NewResponse(), transport.NewStatus()))
}

func TestTLSWrongPinRejected(t *testing.T) {
	srv, certPEM, _ := selfSignedServer(t)
	defer srv.Close()

	host, port := hostPortOf(t, srv.URL)
	c, err := transport.NewClient(transport.Options{
		DestHostName:      host,
		DestPort:          port,
		UseTLS:            true,
		SSLExtraCert:      [][]byte{certPEM},
		PinnedFingerprint: "0000000000000000000000000000000000000000000000000000000deadbeef",
		MinRetryBackoff:   time.Millisecond,
		MaxRetryBackoff:   2 * time.Millisecond,
		MaxRetries:        1,
	}, nil, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	req := new(http.Request)
	require.NoError(t, c.InitRequest(req, http.MethodGet, "/compile"))

	err = c.Do(context.Background(), req, transport.NewResponse(), transport.NewStatus())
	assert.Equal(t, fault.ErrTransportNetworkError, err)
}

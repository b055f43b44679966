// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// proxyFunc resolves Options.ProxyHostName/Port, falling back to the
// environment proxy variables httpproxy.FromEnvironment already knows
// how to read, into the func(*http.Request) (*url.URL, error) shape
// http.Transport.Proxy expects.
func proxyFunc(o Options) func(*http.Request) (*url.URL, error) {
	if "" == o.ProxyHostName {
		cfg := httpproxy.FromEnvironment()
		return func(req *http.Request) (*url.URL, error) {
			return cfg.ProxyFunc()(req.URL)
		}
	}

	proxyURL := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", o.ProxyHostName, o.ProxyPort)}
	return http.ProxyURL(proxyURL)
}

// usesProxy reports whether o configures an explicit proxy; when true
// the request-target for outgoing requests must be absolute-form,
// which http.Transport already does automatically once Proxy is
// non-nil and returns a URL.
func usesProxy(o Options) bool {
	return "" != o.ProxyHostName
}

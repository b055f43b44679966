// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/bitmark-inc/compilerproxy/cache"
)

// resolver performs explicit A-record lookups via miekg/dns, staged
// through the shared cache.Pool.DNSAnswers TTL pool so a burst of
// transactions to the same host does not all pay for a round trip. It
// falls back to net.DefaultResolver if the DNS round trip itself
// fails, never blocking a transaction on oracle recursion.
type resolver struct {
	client     *dns.Client
	serverAddr string // "host:port" of a recursive resolver, e.g. from /etc/resolv.conf
}

func newResolver() *resolver {
	serverAddr := "127.0.0.1:53"
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); nil == err && len(cfg.Servers) > 0 {
		serverAddr = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	}
	return &resolver{client: new(dns.Client), serverAddr: serverAddr}
}

// Resolve returns IP addresses for host, preferring the in-process TTL
// cache, then a direct A-record query, then net.DefaultResolver.
func (r *resolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); nil != ip {
		return []net.IP{ip}, nil
	}

	pool := cache.Pool.DNSAnswers
	if nil != pool {
		if v, ok := pool.Get(host); ok {
			if addrs, ok := v.([]net.IP); ok {
				return addrs, nil
			}
		}
	}

	if addrs, err := r.queryA(host); nil == err && len(addrs) > 0 {
		if nil != pool {
			pool.Put(host, addrs)
		}
		return addrs, nil
	}

	addrs, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if nil != err {
		return nil, err
	}
	if nil != pool {
		pool.Put(host, addrs)
	}
	return addrs, nil
}

func (r *resolver) queryA(host string) ([]net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	resp, _, err := r.client.Exchange(m, r.serverAddr)
	if nil != err {
		return nil, err
	}

	addrs := make([]net.IP, 0, len(resp.Answer))
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			addrs = append(addrs, a.A)
		}
	}
	return addrs, nil
}

// dialContext adapts Resolve into the func(ctx, network, addr) shape
// http.Transport.DialContext expects, picking the first resolved
// address.
func (r *resolver) dialContext(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if nil != err {
			return dialer.DialContext(ctx, network, addr)
		}
		ips, err := r.Resolve(ctx, host)
		if nil != err || 0 == len(ips) {
			return dialer.DialContext(ctx, network, addr)
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
	}
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"time"
)

// OAuthOptions selects one OAuth2 credential source. The first
// non-empty field wins: refresh token, service account JSON, GCE
// metadata, LUCI context.
type OAuthOptions struct {
	RefreshToken       string
	RefreshTokenID     string
	RefreshTokenSecret string

	ServiceAccountJSON []byte

	UseGCEMetadata bool

	LUCIContextPath string

	Scopes []string

	// TokenCachePath, if set, backs a persistent leveldb token cache
	// keyed by account email so a restarted driver doesn't
	// immediately re-mint a token.
	TokenCachePath string
}

// Options is a plain struct a driver or a test can build without a
// config file; flag and environment parsing belong to the caller.
type Options struct {
	DestHostName  string
	DestPort      int
	URLPathPrefix string

	ProxyHostName string
	ProxyPort     int

	UseTLS            bool
	SSLExtraCert      [][]byte
	PinnedFingerprint string // hex-encoded SHA-256, empty disables pinning

	ReuseConnection bool

	OAuth OAuthOptions

	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	MaxRetries      int

	NetworkErrorMargin           time.Duration
	NetworkErrorThresholdPercent float64

	// EnabledFrom marks when ramp-up begins; the zero time means
	// "start ramped up" (ramp_up == 100 immediately).
	EnabledFrom  time.Time
	RampUpWindow time.Duration

	MaxConcurrentTransactions int64

	RequestTimeout time.Duration
}

// defaults applied by NewClient when the caller leaves a field zero.
const (
	defaultMinRetryBackoff              = 100 * time.Millisecond
	defaultMaxRetryBackoff              = 30 * time.Second
	defaultMaxRetries                   = 3
	defaultNetworkErrorMargin           = 5 * time.Second
	defaultNetworkErrorThresholdPercent = 30.0
	defaultRampUpWindow                 = 30 * time.Second
	defaultMaxConcurrentTransactions    = 64
	defaultRequestTimeout               = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MinRetryBackoff <= 0 {
		o.MinRetryBackoff = defaultMinRetryBackoff
	}
	if o.MaxRetryBackoff <= 0 {
		o.MaxRetryBackoff = defaultMaxRetryBackoff
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.NetworkErrorMargin <= 0 {
		o.NetworkErrorMargin = defaultNetworkErrorMargin
	}
	if o.NetworkErrorThresholdPercent <= 0 {
		o.NetworkErrorThresholdPercent = defaultNetworkErrorThresholdPercent
	}
	if o.RampUpWindow <= 0 {
		o.RampUpWindow = defaultRampUpWindow
	}
	if o.MaxConcurrentTransactions <= 0 {
		o.MaxConcurrentTransactions = defaultMaxConcurrentTransactions
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	return o
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"crypto/sha256"
)

// FingerprintBytes holds one certificate fingerprint.
type FingerprintBytes [sha256.Size]byte

// Fingerprint digests a DER certificate for TLS peer pinning.
//
// SHA-256 so a pinned value can be double checked on the command line
// against the remote executor's certificate:
//
//	openssl x509 -noout -in remote.crt -fingerprint -sha256
func Fingerprint(certificate []byte) FingerprintBytes {
	return sha256.Sum256(certificate)
}

// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bitmark-inc/compilerproxy/fault"
)

// BodyState is the result of one Process call.
type BodyState int

const (
	Ok BodyState = iota
	Incomplete
	Error
)

// Body is the capability interface response sinks implement: the
// transport hands a buffer to Next, copies socket bytes into it, then
// calls Process with the byte count (0 == EOF, <0 == transport
// error).
type Body interface {
	Next() ([]byte, error)
	Process(n int) (BodyState, error)
	ByteCount() int64
}

// parsedBody is an in-memory response body supporting identity,
// chunked (handled transparently by net/http itself), deflate and
// gzip content-encodings.
type parsedBody struct {
	buf      bytes.Buffer
	scratch  []byte
	count    int64
	encoding string
}

// newParsedBody wraps an *http.Response body, decoding it according to
// Content-Encoding. Brotli and LZMA are recognized but not supported;
// requesting either returns an error rather than silently
// mis-decoding.
func newParsedBody(resp *http.Response) (*parsedBody, error) {
	encoding := resp.Header.Get("Content-Encoding")

	switch encoding {
	case "", "identity", "chunked":
		raw, err := ioutil.ReadAll(resp.Body)
		if nil != err {
			return nil, fault.ErrTransportNetworkError
		}
		pb := &parsedBody{encoding: encoding}
		pb.buf.Write(raw)
		pb.count = int64(len(raw))
		return pb, nil

	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if nil != err {
			return nil, fault.ErrTransportHttpError
		}
		defer zr.Close()
		raw, err := ioutil.ReadAll(zr)
		if nil != err {
			return nil, fault.ErrTransportNetworkError
		}
		pb := &parsedBody{encoding: encoding}
		pb.buf.Write(raw)
		pb.count = int64(len(raw))
		return pb, nil

	case "deflate":
		zr := flate.NewReader(resp.Body)
		defer zr.Close()
		raw, err := ioutil.ReadAll(zr)
		if nil != err {
			return nil, fault.ErrTransportNetworkError
		}
		pb := &parsedBody{encoding: encoding}
		pb.buf.Write(raw)
		pb.count = int64(len(raw))
		return pb, nil

	case "br", "brotli", "lzma":
		return nil, fmt.Errorf("%w: unsupported content-encoding %q", fault.ErrTransportHttpError, encoding)

	default:
		return nil, fmt.Errorf("%w: unrecognized content-encoding %q", fault.ErrTransportHttpError, encoding)
	}
}

// Next returns the fully buffered body; parsedBody decodes eagerly so
// Process is always called with the whole count at once.
func (b *parsedBody) Next() ([]byte, error) {
	b.scratch = b.buf.Bytes()
	return b.scratch, nil
}

func (b *parsedBody) Process(n int) (BodyState, error) {
	if n < 0 {
		return Error, fault.ErrTransportNetworkError
	}
	return Ok, nil
}

func (b *parsedBody) ByteCount() int64 { return b.count }

// Bytes returns the fully decoded body.
func (b *parsedBody) Bytes() []byte { return b.buf.Bytes() }

// fileDownloadBody writes a response body straight to a target path
// using an atomic open-tmp/write/fsync/rename sequence.
type fileDownloadBody struct {
	targetPath string
	tmpFile    *os.File
	count      int64
}

func newFileDownloadBody(targetPath string) (*fileDownloadBody, error) {
	tmpPath := targetPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if nil != err {
		return nil, fault.ErrPersistence
	}
	return &fileDownloadBody{targetPath: targetPath, tmpFile: f}, nil
}

// Next is unused for file downloads: the caller streams directly via
// WriteFrom since net/http already exposes an io.Reader.
func (b *fileDownloadBody) Next() ([]byte, error) {
	return nil, io.EOF
}

func (b *fileDownloadBody) Process(n int) (BodyState, error) {
	if n < 0 {
		return Error, fault.ErrTransportNetworkError
	}
	return Ok, nil
}

func (b *fileDownloadBody) ByteCount() int64 { return b.count }

// WriteFrom streams r into the temp file, then fsyncs and renames it
// into place.
func (b *fileDownloadBody) WriteFrom(r io.Reader) error {
	n, err := io.Copy(b.tmpFile, r)
	b.count = n
	if nil != err {
		b.tmpFile.Close()
		os.Remove(b.tmpFile.Name())
		return fault.ErrTransportNetworkError
	}
	if err := b.tmpFile.Sync(); nil != err {
		b.tmpFile.Close()
		os.Remove(b.tmpFile.Name())
		return fault.ErrPersistence
	}
	if err := b.tmpFile.Close(); nil != err {
		os.Remove(b.tmpFile.Name())
		return fault.ErrPersistence
	}
	if err := os.MkdirAll(filepath.Dir(b.targetPath), 0755); nil != err {
		return fault.ErrPersistence
	}
	if err := os.Rename(b.tmpFile.Name(), b.targetPath); nil != err {
		return fault.ErrPersistence
	}
	return nil
}

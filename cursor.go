// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.

// Package pcapreader decodes PCAP, PCAPNG, and Zstandard-framed PCAPNG
// capture files into a uniform, lazily-advancing Cursor of packets plus
// the interface and section metadata accumulated along the way.
//
// The package never writes capture files, never dissects packet payloads
// beyond link-layer framing, and never captures live traffic - it is a
// pure, read-only decoder.
package pcapreader

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// cursorOptions configures an OpenReader call.
type cursorOptions struct {
	warner   Warner
	maxBlock uint32
}

// Option configures OpenReader, following the functional-options pattern
// used across the retrieval pack (e.g. pion/webrtc's SettingEngine-style
// configuration).
type Option func(*cursorOptions)

// WithWarner overrides the sink that receives best-effort diagnostics
// about skipped or unsupported (but well-framed) blocks.
func WithWarner(w Warner) Option {
	return func(o *cursorOptions) { o.warner = w }
}

// WithLogger is a convenience wrapper around WithWarner for callers that
// already carry a *logrus.Logger.
func WithLogger(log *logrus.Logger) Option {
	return func(o *cursorOptions) { o.warner = &logrusWarner{log: log} }
}

// WithMaxBlockLength bounds the accepted PCAPNG block_total_length,
// guarding against pathological allocations on corrupt or adversarial
// input. Zero (the default) means unbounded, deferring entirely to the
// file-size bound already enforced by the envelope check.
func WithMaxBlockLength(n uint32) Option {
	return func(o *cursorOptions) { o.maxBlock = n }
}

// OpenReader probes filepath's format and returns a Cursor positioned
// just past the 24-byte file header for PCAP, or at the first block
// (the section header, read by the first NextPacket) for PCAPNG. Callers
// must call Close when done; the cursor exclusively owns the underlying
// byte source until then.
func OpenReader(filepath string, opts ...Option) (Cursor, error) {
	o := &cursorOptions{warner: newDefaultWarner()}
	for _, opt := range opts {
		opt(o)
	}

	format, err := probeFormat(filepath)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatPCAPMicro, FormatPCAPNano:
		tsFormat := TimestampMicroseconds
		if format == FormatPCAPNano {
			tsFormat = TimestampNanoseconds
		}
		c := newPCAPCursor(filepath, tsFormat, &mmapSource{filepath: filepath})
		if err := c.open(); err != nil {
			return nil, err
		}
		return c, nil

	case FormatPCAPNG:
		c := newPCAPNGCursor(filepath, &mmapSource{filepath: filepath}, o.warner, o.maxBlock)
		if err := c.open(); err != nil {
			return nil, err
		}
		return c, nil

	case FormatZstd:
		c := newPCAPNGCursor(filepath, &zstdSource{filepath: filepath}, o.warner, o.maxBlock)
		if err := c.open(); err != nil {
			return nil, err
		}
		return c, nil

	default:
		return nil, newErr(KindUnknownFormat, 0, fmt.Errorf("%q did not match any supported format", filepath))
	}
}

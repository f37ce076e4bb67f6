// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"encoding/binary"
	"fmt"
)

// Option codes shared across block kinds.
const optEndOfOpt = 0
const optComment = 1

// Section Header Block option codes.
const (
	shbHardware    = 2
	shbOS          = 3
	shbUserApplIDB = 4 // shb_userappl
)

// Interface Description Block option codes.
const (
	ifName        = 2
	ifDescription = 3
	ifIPv4Addr    = 4
	ifMACAddr     = 6
	ifTsresol     = 9
	ifFilter      = 11
	ifOS          = 12
	ifTsoffset    = 14
)

// rawOption is one decoded (code, value) tuple from an option list, with
// padding already stripped.
type rawOption struct {
	code  uint16
	value []byte
}

// parseOptions iterates the (code, length, value, pad) tuples in a
// PCAPNG option list. It stops at opt_endofopt or when the body is
// exhausted - exhaustion without a terminator is not an error, since the
// trailing opt_endofopt is conventional rather than required by the
// format.
func parseOptions(body []byte) ([]rawOption, error) {
	var opts []rawOption
	offset := 0

	for {
		if len(body)-offset < 4 {
			return opts, nil
		}

		code := binary.LittleEndian.Uint16(body[offset:])
		length := binary.LittleEndian.Uint16(body[offset+2:])

		if code == optEndOfOpt && length == 0 {
			return opts, nil
		}

		valueStart := offset + 4
		valueEnd := valueStart + int(length)
		if valueEnd > len(body) {
			return opts, newErr(KindMalformedOption, int64(offset), fmt.Errorf("option code %d declares length %d, exceeding body", code, length))
		}

		opts = append(opts, rawOption{code: code, value: body[valueStart:valueEnd]})

		padded := (int(length) + 3) &^ 3
		offset = valueStart + padded
	}
}

func optString(opts []rawOption, code uint16) *string {
	for _, o := range opts {
		if o.code == code {
			s := string(o.value)
			return &s
		}
	}
	return nil
}

func optByte(opts []rawOption, code uint16) (byte, bool) {
	for _, o := range opts {
		if o.code == code && len(o.value) >= 1 {
			return o.value[0], true
		}
	}
	return 0, false
}

// shbOptions is the decoded option set of a Section Header Block.
type shbOptions struct {
	comment         *string
	hardware        *string
	os              *string
	userApplication *string
}

func parseSHBOptions(opts []rawOption) shbOptions {
	return shbOptions{
		comment:         optString(opts, optComment),
		hardware:        optString(opts, shbHardware),
		os:              optString(opts, shbOS),
		userApplication: optString(opts, shbUserApplIDB),
	}
}

// idbOptions is the decoded option set of an Interface Description Block.
type idbOptions struct {
	comment     *string
	name        *string
	description *string
	ipv4Addr    *string
	macAddr     *string
	tsresol     TimestampResolution
	filter      *string
	os          *string
	tsoffset    int64
}

func parseIDBOptions(opts []rawOption) idbOptions {
	o := idbOptions{
		tsresol: defaultTimestampResolution(),
	}
	o.comment = optString(opts, optComment)
	o.name = optString(opts, ifName)
	o.description = optString(opts, ifDescription)
	o.filter = optString(opts, ifFilter)
	o.os = optString(opts, ifOS)

	if b, ok := optByte(opts, ifTsresol); ok {
		o.tsresol = TimestampResolution{
			Exponent: b & 0x7F,
			Base2:    b&0x80 != 0,
		}
	}

	for _, opt := range opts {
		switch opt.code {
		case ifIPv4Addr:
			if len(opt.value) >= 4 {
				s := formatIPv4(opt.value[:4])
				o.ipv4Addr = &s
			}
		case ifMACAddr:
			if len(opt.value) >= 6 {
				s := formatMAC(opt.value[:6])
				o.macAddr = &s
			}
		case ifTsoffset:
			if len(opt.value) >= 8 {
				o.tsoffset = int64(binary.LittleEndian.Uint64(opt.value))
			}
		}
	}

	return o
}

func formatIPv4(b []byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func formatMAC(b []byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5])
}

// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Format identifies one of the three on-disk encodings this package
// understands, as dispatched by the first 32 bits of the file.
type Format int

const (
	FormatUnknown Format = iota
	FormatPCAPMicro
	FormatPCAPNano
	FormatPCAPNG
	FormatZstd
)

func (f Format) String() string {
	switch f {
	case FormatPCAPMicro:
		return "pcap (microseconds)"
	case FormatPCAPNano:
		return "pcap (nanoseconds)"
	case FormatPCAPNG:
		return "pcapng"
	case FormatZstd:
		return "zstd-framed pcapng"
	default:
		return "unknown"
	}
}

const (
	magicPCAPMicro = 0xA1B2C3D4
	magicPCAPNano  = 0xA1B23C4D
	magicPCAPNG    = 0x0A0D0D0A
	magicZstd      = 0xFD2FB528
)

// probeFormat reads the first 4 bytes of filepath and dispatches on the
// exact little-endian magic number that begins every PCAP, PCAPNG, and
// Zstandard-framed file.
func probeFormat(filepath string) (Format, error) {
	f, err := os.Open(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return FormatUnknown, newErr(KindNotFound, 0, err)
		}
		return FormatUnknown, newErr(KindIOError, 0, err)
	}
	defer f.Close()

	var b [4]byte
	n, err := f.ReadAt(b[:], 0)
	if n < len(b) {
		if err == io.EOF || err == nil {
			return FormatUnknown, newErr(KindTooShort, 0, nil)
		}
		return FormatUnknown, newErr(KindIOError, 0, err)
	}

	magic := binary.LittleEndian.Uint32(b[:])
	switch magic {
	case magicPCAPMicro:
		return FormatPCAPMicro, nil
	case magicPCAPNano:
		return FormatPCAPNano, nil
	case magicPCAPNG:
		return FormatPCAPNG, nil
	case magicZstd:
		return FormatZstd, nil
	default:
		return FormatUnknown, newErr(KindUnknownFormat, 0, fmt.Errorf("magic 0x%08x", magic))
	}
}

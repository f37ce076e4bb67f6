// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// zstdSource decompresses a whole single-frame Zstandard file into a heap
// buffer up front (no streaming), then hands that buffer off as an
// ordinary byteSource for the PCAPNG walker to traverse: read the frame
// header's declared content size, allocate exactly that many bytes,
// decompress once, and verify the emitted size matches what the header
// promised. The decompression itself is delegated to
// github.com/klauspost/compress/zstd; only the frame-header size check
// below is hand-rolled, since that decoder doesn't expose a content-size
// precheck ahead of a full decode.
type zstdSource struct {
	filepath string
	bufferSource
}

func (s *zstdSource) open() error {
	if !strings.HasSuffix(s.filepath, ".zst") && !strings.HasSuffix(s.filepath, ".zstd") {
		return newErr(KindNotZstd, 0, fmt.Errorf("filename %q does not end in .zst or .zstd", s.filepath))
	}

	mm := &mmapSource{filepath: s.filepath}
	if err := mm.open(); err != nil {
		return err
	}
	defer mm.close()
	compressed := mm.bytes()

	contentSize, hasSize, err := zstdFrameContentSize(compressed)
	if err != nil {
		return newErr(KindNotZstd, 0, err)
	}
	if !hasSize {
		return newErr(KindUnknownDecompressedSize, 0, fmt.Errorf("%q: frame header does not declare a content size", s.filepath))
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return newErr(KindDecompressError, 0, err)
	}
	defer dec.Close()

	out := make([]byte, 0, contentSize)
	out, err = dec.DecodeAll(compressed, out)
	if err != nil {
		return newErr(KindDecompressError, 0, err)
	}
	if uint64(len(out)) != contentSize {
		return newErr(KindSizeMismatch, 0, fmt.Errorf("decompressed %d bytes, frame header declared %d", len(out), contentSize))
	}

	s.buf = out
	return nil
}

// zstdFrameContentSize parses just enough of an RFC 8878 frame header to
// recover Frame_Content_Size. hasSize is false when the field is absent
// (Frame_Content_Size_flag == 0 and Single_Segment_flag == 0), which is
// distinct from a parse failure.
func zstdFrameContentSize(data []byte) (size uint64, hasSize bool, err error) {
	if len(data) < 5 {
		return 0, false, fmt.Errorf("frame shorter than magic+descriptor")
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != magicZstd {
		return 0, false, fmt.Errorf("not a zstd frame: magic 0x%08x", magic)
	}

	fhd := data[4]
	dictIDFlag := fhd & 0x3
	singleSegment := (fhd>>5)&0x1 == 1
	fcsFieldCode := (fhd >> 6) & 0x3

	offset := 5
	if !singleSegment {
		offset++ // Window_Descriptor, 1 byte
	}

	var dictIDSize int
	switch dictIDFlag {
	case 0:
		dictIDSize = 0
	case 1:
		dictIDSize = 1
	case 2:
		dictIDSize = 2
	case 3:
		dictIDSize = 4
	}
	offset += dictIDSize

	var fcsSize int
	switch fcsFieldCode {
	case 0:
		if singleSegment {
			fcsSize = 1
		} else {
			fcsSize = 0
		}
	case 1:
		fcsSize = 2
	case 2:
		fcsSize = 4
	case 3:
		fcsSize = 8
	}

	if fcsSize == 0 {
		return 0, false, nil
	}
	if len(data) < offset+fcsSize {
		return 0, false, fmt.Errorf("frame header truncated before Frame_Content_Size")
	}

	raw := data[offset : offset+fcsSize]
	switch fcsSize {
	case 1:
		size = uint64(raw[0])
	case 2:
		// A 2-byte field is offset by 256 per RFC 8878 section 3.1.1.1.4.
		size = uint64(binary.LittleEndian.Uint16(raw)) + 256
	case 4:
		size = uint64(binary.LittleEndian.Uint32(raw))
	case 8:
		size = binary.LittleEndian.Uint64(raw)
	}
	return size, true, nil
}

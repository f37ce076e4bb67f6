// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"encoding/binary"
	"fmt"
)

// PCAPNG block types, per draft-ietf-opsawg-pcapng.
const (
	blockSHB           = 0x0A0D0D0A
	blockIDB           = 0x00000001
	blockPB            = 0x00000002 // legacy Packet Block, deprecated
	blockSPB           = 0x00000003
	blockNRB           = 0x00000004
	blockISB           = 0x00000005
	blockEPB           = 0x00000006
	blockDSB           = 0x0000000A
	blockCustomCopy    = 0x00000BAD
	blockCustomNoCopy  = 0x40000BAD
)

const byteOrderMagic = 0x1A2B3C4D

// pcapngCursor decodes the block-structured PCAPNG format. It is written
// entirely against the byteSource interface so the same walker serves
// both a memory-mapped plain .pcapng file and the heap buffer produced by
// the Zstandard adapter - the block grammar is identical either way,
// only where the bytes live differs.
type pcapngCursor struct {
	filepath string
	src      byteSource
	warner   Warner
	maxBlock uint32

	fileSize int64
	offset   int64
	state    cursorState

	linkType    LinkType
	interfaces  []TraceInterface
	section     SectionMetadata
	seenUnknown map[uint32]bool
}

func newPCAPNGCursor(filepath string, src byteSource, warner Warner, maxBlock uint32) *pcapngCursor {
	return &pcapngCursor{
		filepath:    filepath,
		src:         src,
		warner:      warner,
		maxBlock:    maxBlock,
		seenUnknown: make(map[uint32]bool),
	}
}

func (c *pcapngCursor) open() error {
	if err := c.src.open(); err != nil {
		return err
	}
	c.fileSize = c.src.size()
	if c.fileSize < 12 {
		c.src.close()
		return newErr(KindTooShort, 0, fmt.Errorf("need at least 12 bytes for a PCAPNG block, have %d", c.fileSize))
	}
	c.offset = 0
	c.state = stateOpen
	return nil
}

// readEnvelope validates and returns the generic block envelope at the
// cursor's current offset: type, total length, and the body slice
// (excluding the 8-byte leading type+length and the 4-byte trailing
// length copy). It verifies the trailing copy matches the leading one,
// resolving Open Question #4 in favor of strict verification.
func (c *pcapngCursor) readEnvelope() (blockType uint32, blockLen uint32, body []byte, err error) {
	data := c.src.bytes()
	remaining := c.fileSize - c.offset
	if remaining < 12 {
		return 0, 0, nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("need at least 12 bytes for block envelope, have %d", remaining))
	}

	blockType = binary.LittleEndian.Uint32(data[c.offset:])
	blockLen = binary.LittleEndian.Uint32(data[c.offset+4:])

	if blockLen < 12 || blockLen%4 != 0 {
		return 0, 0, nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("invalid block_total_length %d", blockLen))
	}
	if c.maxBlock != 0 && blockLen > c.maxBlock {
		return 0, 0, nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("block_total_length %d exceeds configured maximum %d", blockLen, c.maxBlock))
	}
	if c.offset+int64(blockLen) > c.fileSize {
		return 0, 0, nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("block_total_length %d extends past end of file", blockLen))
	}

	trailing := binary.LittleEndian.Uint32(data[c.offset+int64(blockLen)-4:])
	if trailing != blockLen {
		return 0, 0, nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("trailing block_total_length %d does not match leading %d", trailing, blockLen))
	}

	body = data[c.offset+8 : c.offset+int64(blockLen)-4]
	return blockType, blockLen, body, nil
}

func (c *pcapngCursor) warnOnce(blockType uint32, label string) {
	if c.seenUnknown[blockType] {
		return
	}
	c.seenUnknown[blockType] = true
	c.warner.Warnf("pcapreader: %s (block type 0x%08x) in %q, skipping", label, blockType, c.filepath)
}

func (c *pcapngCursor) NextPacket() (*Packet, error) {
	if c.state == stateUnopened || c.state == stateClosed {
		return nil, newErr(KindIllegalState, c.offset, fmt.Errorf("cursor is not open"))
	}
	if c.state == stateExhausted {
		return nil, nil
	}

	for {
		if c.offset >= c.fileSize {
			c.state = stateExhausted
			return nil, nil
		}

		blockType, blockLen, body, err := c.readEnvelope()
		if err != nil {
			return nil, err
		}

		switch blockType {
		case blockSHB:
			if err := c.handleSHB(body); err != nil {
				return nil, err
			}
			c.offset += int64(blockLen)
		case blockIDB:
			if err := c.handleIDB(body); err != nil {
				return nil, err
			}
			c.offset += int64(blockLen)
		case blockEPB:
			p, err := c.handleEPB(body)
			if err != nil {
				return nil, err
			}
			c.offset += int64(blockLen)
			return p, nil
		case blockPB:
			p, err := c.handlePB(body)
			if err != nil {
				return nil, err
			}
			c.offset += int64(blockLen)
			return p, nil
		case blockSPB:
			c.warnOnce(blockType, "simple packet block decoding not implemented")
			c.offset += int64(blockLen)
		case blockISB:
			if err := c.handleISB(body); err != nil {
				return nil, err
			}
			c.offset += int64(blockLen)
		case blockNRB:
			c.warnOnce(blockType, "name resolution block decoding not implemented")
			c.offset += int64(blockLen)
		case blockDSB:
			c.warnOnce(blockType, "decryption secrets block decoding not implemented")
			c.offset += int64(blockLen)
		case blockCustomCopy, blockCustomNoCopy:
			c.warnOnce(blockType, "custom block decoding not implemented")
			c.offset += int64(blockLen)
		default:
			c.warnOnce(blockType, "unknown block type")
			c.offset += int64(blockLen)
		}
	}
}

func (c *pcapngCursor) handleSHB(body []byte) error {
	if len(body) < 16 {
		return newErr(KindMalformedBlock, c.offset, fmt.Errorf("SHB body too short: %d bytes", len(body)))
	}

	magic := binary.LittleEndian.Uint32(body[0:4])
	if magic != byteOrderMagic {
		return newErr(KindUnsupportedByteOrder, c.offset, fmt.Errorf("byte_order_magic 0x%08x", magic))
	}

	opts, err := parseOptions(body[16:])
	if err != nil {
		return err
	}
	so := parseSHBOptions(opts)

	// A new SHB starts a new section: metadata is overwritten and the
	// interface table is cleared, since IDB indices in PCAPNG are scoped
	// to the section they appear in and must not leak across a section
	// boundary.
	c.section = SectionMetadata{
		Comment:         so.comment,
		OS:              so.os,
		Hardware:        so.hardware,
		UserApplication: so.userApplication,
	}
	c.interfaces = nil
	return nil
}

func (c *pcapngCursor) handleIDB(body []byte) error {
	if len(body) < 8 {
		return newErr(KindMalformedBlock, c.offset, fmt.Errorf("IDB body too short: %d bytes", len(body)))
	}

	linkType := binary.LittleEndian.Uint16(body[0:2])

	opts, err := parseOptions(body[8:])
	if err != nil {
		return err
	}
	io := parseIDBOptions(opts)

	iface := TraceInterface{
		LinkType:            LinkType(linkType),
		Name:                io.name,
		Description:         io.description,
		Filter:              io.filter,
		OS:                  io.os,
		IPv4Address:         io.ipv4Addr,
		MACAddress:          io.macAddr,
		TimestampResolution: io.tsresol,
		TimestampOffset:     io.tsoffset,
	}

	if len(c.interfaces) == 0 {
		c.linkType = LinkType(linkType)
	}
	c.interfaces = append(c.interfaces, iface)
	return nil
}

// epbHeaderSize covers interface_id, ts_high, ts_low, captured_len,
// original_len - the fixed-size prefix shared by EPB and legacy PB.
const epbHeaderSize = 20

func (c *pcapngCursor) handleEPB(body []byte) (*Packet, error) {
	if len(body) < epbHeaderSize {
		return nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("EPB body too short: %d bytes", len(body)))
	}

	interfaceID := binary.LittleEndian.Uint32(body[0:4])
	tsHigh := binary.LittleEndian.Uint32(body[4:8])
	tsLow := binary.LittleEndian.Uint32(body[8:12])
	capturedLen := binary.LittleEndian.Uint32(body[12:16])
	originalLen := binary.LittleEndian.Uint32(body[16:20])

	payloadAvail := int64(len(body) - epbHeaderSize)
	if int64(capturedLen) > payloadAvail {
		return nil, newErr(KindTruncated, c.offset, fmt.Errorf("EPB declares %d bytes of payload, only %d remain in block", capturedLen, payloadAvail))
	}
	payload := body[epbHeaderSize : epbHeaderSize+int(capturedLen)]

	if int(interfaceID) >= len(c.interfaces) {
		return nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("EPB references interface %d, only %d known", interfaceID, len(c.interfaces)))
	}

	ticks := uint64(tsHigh)<<32 | uint64(tsLow)
	sec, subUs := c.interfaces[interfaceID].TimestampResolution.Split(ticks)

	return &Packet{
		TimestampSeconds:    sec,
		TimestampSubseconds: subUs,
		CapturedLength:      capturedLen,
		OriginalLength:      originalLen,
		InterfaceIndex:      int32(interfaceID),
		Data:                payload,
	}, nil
}

func (c *pcapngCursor) handlePB(body []byte) (*Packet, error) {
	if len(body) < epbHeaderSize {
		return nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("PB body too short: %d bytes", len(body)))
	}

	interfaceID := binary.LittleEndian.Uint16(body[0:2])
	// body[2:4] is drops_count, not surfaced.
	tsHigh := binary.LittleEndian.Uint32(body[4:8])
	tsLow := binary.LittleEndian.Uint32(body[8:12])
	capturedLen := binary.LittleEndian.Uint32(body[12:16])
	originalLen := binary.LittleEndian.Uint32(body[16:20])

	payloadAvail := int64(len(body) - epbHeaderSize)
	if int64(capturedLen) > payloadAvail {
		return nil, newErr(KindTruncated, c.offset, fmt.Errorf("PB declares %d bytes of payload, only %d remain in block", capturedLen, payloadAvail))
	}
	payload := body[epbHeaderSize : epbHeaderSize+int(capturedLen)]

	if int(interfaceID) >= len(c.interfaces) {
		return nil, newErr(KindMalformedBlock, c.offset, fmt.Errorf("PB references interface %d, only %d known", interfaceID, len(c.interfaces)))
	}

	ticks := uint64(tsHigh)<<32 | uint64(tsLow)
	sec, subUs := c.interfaces[interfaceID].TimestampResolution.Split(ticks)

	return &Packet{
		TimestampSeconds:    sec,
		TimestampSubseconds: subUs,
		CapturedLength:      capturedLen,
		OriginalLength:      originalLen,
		InterfaceIndex:      int32(interfaceID),
		Data:                payload,
	}, nil
}

// handleISB decodes an Interface Statistics Block far enough to validate
// its envelope and advance past it; the per-interface counters it carries
// are capture-session statistics, not packet data, so they are not
// surfaced on Cursor.
func (c *pcapngCursor) handleISB(body []byte) error {
	if len(body) < 12 {
		return newErr(KindMalformedBlock, c.offset, fmt.Errorf("ISB body too short: %d bytes", len(body)))
	}
	_, err := parseOptions(body[12:])
	return err
}

func (c *pcapngCursor) Close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	return c.src.close()
}

func (c *pcapngCursor) Filepath() string       { return c.filepath }
func (c *pcapngCursor) FileSize() int64        { return c.fileSize }
func (c *pcapngCursor) CurrentOffset() int64   { return c.offset }
func (c *pcapngCursor) DataLinkType() LinkType { return c.linkType }

func (c *pcapngCursor) TraceInterfaces() []TraceInterface {
	out := make([]TraceInterface, len(c.interfaces))
	copy(out, c.interfaces)
	return out
}

func (c *pcapngCursor) TraceInterface(i int) (TraceInterface, error) {
	if i < 0 || i >= len(c.interfaces) {
		return TraceInterface{}, newErr(KindOutOfRange, c.offset, fmt.Errorf("index %d, have %d interfaces", i, len(c.interfaces)))
	}
	return c.interfaces[i], nil
}

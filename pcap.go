// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"encoding/binary"
	"fmt"
)

const (
	pcapFileHeaderSize   = 24
	pcapPacketHeaderSize = 16
)

// pcapCursor decodes the classic single-section PCAP format: a 24-byte
// file header followed by a flat sequence of 16-byte-header packet
// records, with no block structure and no interface table.
type pcapCursor struct {
	filepath string
	src      byteSource

	fileSize int64
	offset   int64
	state    cursorState

	linkType LinkType
	tsFormat TimestampFormat
}

func newPCAPCursor(filepath string, tsFormat TimestampFormat, src byteSource) *pcapCursor {
	return &pcapCursor{filepath: filepath, src: src, tsFormat: tsFormat}
}

func (c *pcapCursor) open() error {
	if err := c.src.open(); err != nil {
		return err
	}

	data := c.src.bytes()
	c.fileSize = c.src.size()
	if c.fileSize < pcapFileHeaderSize {
		c.src.close()
		return newErr(KindTooShort, 0, fmt.Errorf("need %d bytes for PCAP file header, have %d", pcapFileHeaderSize, c.fileSize))
	}

	// version_major, version_minor, thiszone, sigfigs, snaplen are not
	// surfaced on Cursor; only link_type (bytes 20:24) matters here.
	c.linkType = LinkType(binary.LittleEndian.Uint32(data[20:24]))
	c.offset = pcapFileHeaderSize
	c.state = stateOpen
	return nil
}

func (c *pcapCursor) NextPacket() (*Packet, error) {
	if c.state == stateUnopened || c.state == stateClosed {
		return nil, newErr(KindIllegalState, c.offset, fmt.Errorf("cursor is not open"))
	}
	if c.state == stateExhausted {
		return nil, nil
	}

	if c.offset >= c.fileSize {
		c.state = stateExhausted
		return nil, nil
	}

	data := c.src.bytes()
	remaining := c.fileSize - c.offset
	if remaining < pcapPacketHeaderSize {
		return nil, newErr(KindTruncated, c.offset, fmt.Errorf("need %d bytes for packet record header, have %d", pcapPacketHeaderSize, remaining))
	}

	rec := data[c.offset : c.offset+pcapPacketHeaderSize]
	tsSec := binary.LittleEndian.Uint32(rec[0:4])
	tsSub := binary.LittleEndian.Uint32(rec[4:8])
	inclLen := binary.LittleEndian.Uint32(rec[8:12])
	origLen := binary.LittleEndian.Uint32(rec[12:16])

	payloadAvail := remaining - pcapPacketHeaderSize
	if int64(inclLen) > payloadAvail {
		return nil, newErr(KindTruncated, c.offset, fmt.Errorf("record declares %d bytes of payload, only %d remain", inclLen, payloadAvail))
	}

	payloadStart := c.offset + pcapPacketHeaderSize
	payload := data[payloadStart : payloadStart+int64(inclLen)]

	subUs := tsSub
	if c.tsFormat == TimestampNanoseconds {
		subUs = tsSub / 1000
	}

	p := &Packet{
		TimestampSeconds:    tsSec,
		TimestampSubseconds: subUs,
		CapturedLength:      inclLen,
		OriginalLength:      origLen,
		InterfaceIndex:      -1,
		Data:                payload,
	}

	c.offset += pcapPacketHeaderSize + int64(inclLen)
	return p, nil
}

func (c *pcapCursor) Close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	return c.src.close()
}

func (c *pcapCursor) Filepath() string      { return c.filepath }
func (c *pcapCursor) FileSize() int64       { return c.fileSize }
func (c *pcapCursor) CurrentOffset() int64  { return c.offset }
func (c *pcapCursor) DataLinkType() LinkType { return c.linkType }

// TraceInterfaces is always empty for PCAP: the format has exactly one
// implicit interface, described only by DataLinkType.
func (c *pcapCursor) TraceInterfaces() []TraceInterface { return nil }

func (c *pcapCursor) TraceInterface(i int) (TraceInterface, error) {
	return TraceInterface{}, newErr(KindOutOfRange, c.offset, fmt.Errorf("index %d: PCAP has no interface descriptors", i))
}

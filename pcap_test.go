// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcapMicroFixture builds a minimal microsecond-resolution PCAP file: a
// 24-byte file header followed by one 16-byte packet record header and
// 4 bytes of payload.
func pcapMicroFixture() []byte {
	return []byte{
		// file header (24 bytes)
		0xd4, 0xc3, 0xb2, 0xa1, // magic: microseconds
		0x02, 0x00, 0x04, 0x00, // version_major=2, version_minor=4
		0x00, 0x00, 0x00, 0x00, // thiszone
		0x00, 0x00, 0x00, 0x00, // sigfigs
		0xff, 0xff, 0x00, 0x00, // snaplen
		0x01, 0x00, 0x00, 0x00, // link_type = 1 (Ethernet)
		// packet record (16-byte header + 4-byte payload)
		0x01, 0x00, 0x00, 0x00, // ts_sec = 1
		0x02, 0x00, 0x00, 0x00, // ts_subsec = 2
		0x04, 0x00, 0x00, 0x00, // incl_len = 4
		0x04, 0x00, 0x00, 0x00, // orig_len = 4
		0xde, 0xad, 0xbe, 0xef,
	}
}

func TestPCAP_MicrosecondTimestamps(t *testing.T) {
	path := writeTempFile(t, "micro.pcap", pcapMicroFixture())

	cur, err := OpenReader(path)
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t, LinkType(1), cur.DataLinkType())

	p, err := cur.NextPacket()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.EqualValues(t, 1, p.TimestampSeconds)
	assert.EqualValues(t, 2, p.TimestampSubseconds)
	assert.EqualValues(t, 4, p.CapturedLength)
	assert.EqualValues(t, 4, p.OriginalLength)
	assert.EqualValues(t, -1, p.InterfaceIndex)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, p.Data)

	p, err = cur.NextPacket()
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.Equal(t, cur.FileSize(), cur.CurrentOffset())

	// calling NextPacket again after exhaustion must keep returning
	// (nil, nil) rather than erroring or panicking
	p, err = cur.NextPacket()
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPCAP_NanosecondTimestampsNormalizeToMicroseconds(t *testing.T) {
	data := pcapMicroFixture()
	// magic for nanoseconds
	data[0], data[1], data[2], data[3] = 0x4d, 0x3c, 0xb2, 0xa1
	// subsecond field = 1000 ns (little-endian 1000 = 0x3e8)
	data[28], data[29], data[30], data[31] = 0xe8, 0x03, 0x00, 0x00

	path := writeTempFile(t, "nano.pcap", data)
	cur, err := OpenReader(path)
	require.NoError(t, err)
	defer cur.Close()

	p, err := cur.NextPacket()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.EqualValues(t, 1, p.TimestampSubseconds)
}

func TestPCAPTruncatedPayload(t *testing.T) {
	data := pcapMicroFixture()
	data = data[:len(data)-1] // drop the last payload byte

	path := writeTempFile(t, "truncated.pcap", data)
	cur, err := OpenReader(path)
	require.NoError(t, err)

	_, err = cur.NextPacket()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)

	// close must still succeed after a failed NextPacket
	require.NoError(t, cur.Close())
	// and be idempotent
	require.NoError(t, cur.Close())
}

func TestPCAPTraceInterfacesEmpty(t *testing.T) {
	path := writeTempFile(t, "micro2.pcap", pcapMicroFixture())
	cur, err := OpenReader(path)
	require.NoError(t, err)
	defer cur.Close()

	assert.Empty(t, cur.TraceInterfaces())
	_, err = cur.TraceInterface(0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestPCAPIllegalStateAfterClose(t *testing.T) {
	path := writeTempFile(t, "micro3.pcap", pcapMicroFixture())
	cur, err := OpenReader(path)
	require.NoError(t, err)
	require.NoError(t, cur.Close())

	_, err = cur.NextPacket()
	assert.ErrorIs(t, err, ErrIllegalState)
}

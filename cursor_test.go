// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingWarner struct {
	messages []string
}

func (w *collectingWarner) Warnf(format string, args ...interface{}) {
	w.messages = append(w.messages, format)
}

func TestWithMaxBlockLengthRejectsOversizedBlock(t *testing.T) {
	data := pcapngMinimalFixture()
	path := writeTempFile(t, "capped.pcapng", data)

	cur, err := OpenReader(path, WithMaxBlockLength(16))
	require.NoError(t, err)
	defer cur.Close()

	_, err = cur.NextPacket()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedBlock)
}

func TestWithWarnerReceivesUnknownBlockOnce(t *testing.T) {
	var data []byte
	data = append(data, buildSHB(nil)...)
	data = append(data, buildIDB(1, nil)...)
	// two blocks of an unrecognized type, should warn exactly once
	unknownBody := make([]byte, 4)
	data = append(data, buildPcapngBlock(0x12345678, unknownBody)...)
	data = append(data, buildPcapngBlock(0x12345678, unknownBody)...)
	data = append(data, buildEPB(0, 0, 1000, 4, 4, []byte{1, 2, 3, 4})...)

	warner := &collectingWarner{}
	path := writeTempFile(t, "unknownblock.pcapng", data)
	cur, err := OpenReader(path, WithWarner(warner))
	require.NoError(t, err)
	defer cur.Close()

	p, err := cur.NextPacket()
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Len(t, warner.messages, 1)
}

// TestCurrentOffsetMonotonic checks that the cursor's offset only ever
// advances, and strictly so when a packet is returned.
func TestCurrentOffsetMonotonic(t *testing.T) {
	path := writeTempFile(t, "monotonic.pcapng", pcapngMinimalFixture())
	cur, err := OpenReader(path)
	require.NoError(t, err)
	defer cur.Close()

	prev := cur.CurrentOffset()
	p, err := cur.NextPacket()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Greater(t, cur.CurrentOffset(), prev)

	prev = cur.CurrentOffset()
	p, err = cur.NextPacket()
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.GreaterOrEqual(t, cur.CurrentOffset(), prev)
}

func TestDecodeErrorUnwrap(t *testing.T) {
	_, err := probeFormat("/does/not/exist/at/all")
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, KindNotFound, decodeErr.Kind)
}

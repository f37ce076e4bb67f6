// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimestampResolutionSplitDefault(t *testing.T) {
	r := defaultTimestampResolution()
	sec, subUs := r.Split(1_500_000)
	assert.EqualValues(t, 1, sec)
	assert.EqualValues(t, 500000, subUs)
}

func TestTimestampResolutionSplitBase2(t *testing.T) {
	// 2^20 ticks/second; 2^20 + 2^19 ticks = 1.5 seconds
	r := TimestampResolution{Exponent: 20, Base2: true}
	ticks := uint64(1<<20) + uint64(1<<19)
	sec, subUs := r.Split(ticks)
	assert.EqualValues(t, 1, sec)
	assert.EqualValues(t, 500000, subUs)
}

func TestTimestampResolutionSplitAlwaysBelowOneMillion(t *testing.T) {
	r := TimestampResolution{Exponent: 9} // nanoseconds
	for _, ticks := range []uint64{0, 1, 999_999_999, 1_000_000_000, 123_456_789_123} {
		_, subUs := r.Split(ticks)
		assert.Less(t, subUs, uint32(1_000_000))
	}
}

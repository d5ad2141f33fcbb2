package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlign8(t *testing.T) {
	cases := map[int]int{0: 0, 1: 8, 7: 8, 8: 8, 9: 16, 1000: 1000, 1001: 1008}
	for in, want := range cases {
		assert.Equal(t, want, align8(in), "align8(%d)", in)
	}
}

func TestPackUnpackMetaRoundTrip(t *testing.T) {
	for _, size := range []int{24, 32, 64, 1000, 1 << 20} {
		for _, free := range []bool{true, false} {
			word := packMeta(size, free)
			gotSize, gotFree := unpackMeta(word)
			assert.Equal(t, size, gotSize)
			assert.Equal(t, free, gotFree)
		}
	}
}

func TestClassIndexMatchesFloorLog2(t *testing.T) {
	// class x holds unit counts in [2^x, 2^(x+1)); byte size = units*8.
	assert.Equal(t, 0, classIndex(8))  // 1 unit
	assert.Equal(t, 1, classIndex(16)) // 2 units
	assert.Equal(t, 1, classIndex(24)) // 3 units
	assert.Equal(t, 2, classIndex(32)) // 4 units
	assert.Equal(t, 2, classIndex(56)) // 7 units
	assert.Equal(t, 3, classIndex(64)) // 8 units
}

func TestClassIndexClampsToTopClassForOversizeBlocks(t *testing.T) {
	huge := 1 << 33
	assert.Equal(t, classCount-1, classIndex(huge))
	assert.Equal(t, classCount-1, classIndex(huge*2))
}

func TestClassIndexMonotonic(t *testing.T) {
	prev := classIndex(minBlockSize)
	for size := minBlockSize; size < 1<<20; size += 8 {
		c := classIndex(size)
		assert.GreaterOrEqual(t, c, prev)
		prev = c
	}
}

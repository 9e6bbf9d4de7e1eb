package arena

import (
	"math"
	"math/bits"
)

const (
	minBucketShift = 7
	// minBucketCap is the capacity of the smallest bucket level and also
	// the bias added to every handle, so that a raw handle is never zero.
	minBucketCap = 1 << minBucketShift
	// bucketLevels covers the raw index range [minBucketCap, 2^32).
	bucketLevels = 32 - minBucketShift
	maxRawIndex  = math.MaxUint32
	// MaxLen is the number of elements an arena is able to hold.
	MaxLen = maxRawIndex - minBucketCap + 1
)

// bucketCapacity returns 2^31 for level 0, halving on each level down to
// minBucketCap for the last level.
func bucketCapacity(level int) uint32 {
	return 1 << (31 - level)
}

// decompose maps a raw (biased) index into its bucket level and the
// offset within that bucket. The level is the count of leading zero bits
// and the offset is the raw index with its leading one bit masked off.
// All indices sharing the same leading zeros count are one contiguous
// run of exactly bucketCapacity(level) elements.
func decompose(raw uint32) (level int, offset uint32) {
	level = bits.LeadingZeros32(raw)
	offset = raw & (uint32(maxRawIndex) >> (level + 1))
	return
}

// compose is the inverse of decompose.
func compose(level int, offset uint32) uint32 {
	return bucketCapacity(level) | offset
}

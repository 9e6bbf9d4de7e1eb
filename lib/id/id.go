package id

import (
	"strconv"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

const cacheLinePadSize = unsafe.Sizeof(cpu.CacheLinePad{})

// Gen generates the number id.
type Gen func() uint64

// monotonicNonZeroID only increases. If it overflows, it restarts from 1.
// The counter occupies a whole cache line to avoid false sharing with
// its neighbours.
type monotonicNonZeroID struct {
	_   [cacheLinePadSize - unsafe.Sizeof(*new(uint64))]byte
	val uint64
	_   [cacheLinePadSize - unsafe.Sizeof(*new(uint64))]byte
}

func (id *monotonicNonZeroID) next() uint64 {
	var v uint64
	if v = atomic.AddUint64(&id.val, 1); v == 0 {
		v = atomic.AddUint64(&id.val, 1)
	}
	return v
}

func MonotonicNonZeroID() Gen {
	src := &monotonicNonZeroID{}
	return src.next
}

// Str renders the next number of gen in base 10.
func (gen Gen) Str() string {
	return strconv.FormatUint(gen(), 10)
}

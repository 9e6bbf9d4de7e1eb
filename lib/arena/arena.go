// Package arena implements a concurrent, append-only, typed arena.
//
// Elements are stored in a telescoping array of buckets: the smallest
// level holds 128 elements and every following level doubles, up to 25
// levels covering the whole 32-bit index space. A bucket is allocated
// lazily by the first writer reaching it, and it is never moved or freed
// while the arena lives, so the handle (Ref) returned by Add stays valid
// and the address returned by AddGet or Get stays stable.
//
// Add reserves an index by one atomic increment and is lock-free except
// when it opens a new bucket level, which happens at most 25 times over
// the arena lifetime. Get is always lock-free.
package arena

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/cpu"

	"github.com/benz9527/xarena/lib/infra"
	"github.com/benz9527/xarena/xlog"
)

const cacheLinePadSize = unsafe.Sizeof(cpu.CacheLinePad{})

// Arena is safe for concurrent Add, AddGet, Get and Len. Release needs
// exclusive access.
type Arena[T any] struct {
	// cursor counts every index ever reserved, biased by minBucketCap.
	// It is 64-bit so that reservations past the 32-bit index space are
	// detected instead of wrapped.
	_        [cacheLinePadSize]byte
	cursor   atomic.Uint64
	_        [cacheLinePadSize - unsafe.Sizeof(atomic.Uint64{})]byte
	buckets  [bucketLevels]atomic.Pointer[bucket[T]]
	lock     sync.Mutex // guards the bucket installation only
	released atomic.Bool
	mode     releaseMode
	name     string
	logger   xlog.XLogger
	stats    *arenaStats
}

func New[T any](opts ...Option) *Arena[T] {
	o := &arenaOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	a := &Arena[T]{
		mode:   releaseModeOf[T](),
		name:   o.getName(),
		logger: o.getLogger(),
	}
	a.cursor.Store(minBucketCap)
	if o.enableStats {
		a.stats = newArenaStats(a, o.getMeterProvider())
	}
	return a
}

func (a *Arena[T]) Name() string {
	return a.name
}

// Add stores v and returns its handle.
//
// The atomic increment of the cursor is the linearization point: every
// concurrent Add receives a distinct index. Add panics with an
// infra.ErrorStack wrapping ErrIndexSpaceExhausted once the 32-bit index
// space is used up; that panic is not meant to be recovered.
func (a *Arena[T]) Add(v T) Ref[T] {
	ref, _ := a.AddGet(v)
	return ref
}

// AddGet is Add which also returns the address of the stored element.
// The address stays valid, and the element unchanged, until the arena
// is released.
func (a *Arena[T]) AddGet(v T) (Ref[T], *T) {
	raw := a.reserve()
	level, offset := decompose(raw)
	b := a.loadOrInstallBucket(level)
	// The slot is exclusive, nobody else reserved raw.
	slot := &b.slots[offset]
	*slot = v
	return Ref[T]{raw: raw}, slot
}

// Get returns the address of the element ref points to. It never blocks.
//
// ref must come from a completed Add or AddGet on this arena, received
// through any happens-before edge (channel, mutex, WaitGroup...). Len
// must not be used to guess which refs are readable.
func (a *Arena[T]) Get(ref Ref[T]) *T {
	if debugChecks {
		a.checkRef(ref)
	}
	level, offset := decompose(ref.raw)
	b := a.buckets[level].Load()
	if b == nil {
		panic(infra.WrapErrorStackWithMessage(ErrArenaReleased, "bucket not installed for "+ref.String()))
	}
	return &b.slots[offset]
}

// Len returns the number of reserved indices.
//
// It is a snapshot which may run ahead of the elements actually written:
// an Add in flight between its reservation and its write is counted.
// Only refs returned by completed Adds are safe to Get.
func (a *Arena[T]) Len() int {
	return int(a.rawEnd() - minBucketCap)
}

func (a *Arena[T]) IsEmpty() bool {
	return a.Len() == 0
}

// rawEnd is the cursor clamped to the index space.
func (a *Arena[T]) rawEnd() uint64 {
	return min(a.cursor.Load(), uint64(maxRawIndex)+1)
}

func (a *Arena[T]) reserve() uint32 {
	if a.released.Load() {
		panic(infra.WrapErrorStack(ErrArenaReleased))
	}
	raw := a.cursor.Add(1) - 1
	if raw > maxRawIndex {
		err := infra.WrapErrorStackWithMessage(ErrIndexSpaceExhausted, a.name)
		a.logger.ErrorStack(err, "[xarena] index space exhausted",
			zap.String("arena", a.name),
			zap.Uint64("maxLen", MaxLen),
		)
		panic(err)
	}
	return uint32(raw)
}

// loadOrInstallBucket is the double-checked locking of a bucket level.
// The fast path is one atomic load; the lock is only taken by writers
// racing to open a level which is not installed yet.
func (a *Arena[T]) loadOrInstallBucket(level int) *bucket[T] {
	if b := a.buckets[level].Load(); b != nil {
		return b
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	if b := a.buckets[level].Load(); /* d-check */ b != nil {
		return b
	}
	capacity := bucketCapacity(level)
	b := newBucket[T](capacity)
	a.buckets[level].Store(b)
	a.logger.Debug("[xarena] bucket installed",
		zap.String("arena", a.name),
		zap.Int("level", level),
		zap.Uint32("capacity", capacity),
	)
	a.stats.recordBucketInstalled(level, capacity)
	return b
}

func (a *Arena[T]) checkRef(ref Ref[T]) {
	if ref.raw < minBucketCap || uint64(ref.raw) >= a.cursor.Load() {
		panic(infra.WrapErrorStackWithMessage(ErrRefOutOfRange, ref.String()))
	}
}

// Release destroys the arena. The caller must guarantee that no other
// call on the arena is in flight, nor will be.
//
// Buckets are visited from the most recently opened level back to the
// first one. The most recent bucket holds cursor-derived live elements,
// every earlier bucket is full. Elements implementing Releaser (by value
// or by pointer) are released exactly once; nil pointers and never
// written slots are skipped. Releasing twice is a no-op.
//
// A panicking Releaser does not stop the teardown: every bucket is still
// released, then Release panics with the first recovered value.
func (a *Arena[T]) Release() {
	if !a.released.CompareAndSwap(false, true) {
		return
	}
	a.lock.Lock()
	defer a.lock.Unlock()

	a.stats.unregister()
	end := a.rawEnd()
	if end == minBucketCap {
		return
	}
	lastLevel, lastOffset := decompose(uint32(end - 1))
	released := 0
	var (
		firstPanic any
		panics     int
	)
	for level := lastLevel; level < bucketLevels; level++ {
		b := a.buckets[level].Swap(nil)
		if b == nil {
			continue
		}
		live := bucketCapacity(level)
		if level == lastLevel {
			live = lastOffset + 1
		}
		p, n := b.release(live, a.mode)
		if panics == 0 && n > 0 {
			firstPanic = p
		}
		panics += n
		released++
	}
	// Levels above the last live one are never installed by a completed
	// Add, but drop them anyway.
	for level := 0; level < lastLevel; level++ {
		if b := a.buckets[level].Swap(nil); b != nil {
			b.release(0, a.mode)
		}
	}
	a.logger.Debug("[xarena] released",
		zap.String("arena", a.name),
		zap.Uint64("len", end-minBucketCap),
		zap.Int("buckets", released),
	)
	if panics > 0 {
		a.logger.ErrorStack(
			infra.WrapErrorStackWithMessage(ErrReleaserPanicked, fmt.Sprint(firstPanic)),
			"[xarena] releasers panicked",
			zap.String("arena", a.name),
			zap.Int("panics", panics),
		)
		panic(firstPanic)
	}
}

// Stats is a snapshot of the arena storage.
type Stats struct {
	// Len is the number of reserved indices, as Arena.Len.
	Len uint64
	// Levels is the number of installed bucket levels.
	Levels int
	// Capacity is the number of allocated slots.
	Capacity uint64
	// Unused is the number of allocated but not reserved slots. It is
	// bounded by the capacity of the most recently opened bucket.
	Unused uint64
}

func (a *Arena[T]) Stats() Stats {
	s := Stats{
		Len: a.rawEnd() - minBucketCap,
	}
	for level := bucketLevels - 1; level >= 0; level-- {
		if a.buckets[level].Load() == nil {
			continue
		}
		s.Levels++
		s.Capacity += uint64(bucketCapacity(level))
	}
	if s.Capacity > s.Len {
		s.Unused = s.Capacity - s.Len
	}
	return s
}

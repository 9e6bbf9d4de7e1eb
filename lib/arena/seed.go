package arena

import (
	"sync"
	"sync/atomic"

	"github.com/benz9527/xarena/lib/infra"
)

// Seed holds the distinguished value which occupies index 0 of one
// arena, e.g. the interned empty string. A seed is consumed by exactly
// one NewWithSeed call; a second consumption panics.
type Seed[T any] struct {
	val      T
	consumed atomic.Bool
}

func NewSeed[T any](v T) *Seed[T] {
	return &Seed[T]{val: v}
}

// Value is available before any arena consumed the seed.
func (s *Seed[T]) Value() T {
	return s.val
}

func (s *Seed[T]) Consumed() bool {
	return s.consumed.Load()
}

// ZeroRef is the handle of index 0, the seeded element of an arena built
// by NewWithSeed.
func ZeroRef[T any]() Ref[T] {
	return Ref[T]{raw: minBucketCap}
}

// NewWithSeed builds an arena whose index 0 already holds the seed value,
// so Len reports 1 and the first Add returns index 1.
func NewWithSeed[T any](seed *Seed[T], opts ...Option) *Arena[T] {
	if seed == nil {
		panic(infra.WrapErrorStack(ErrNilSeed))
	}
	if !seed.consumed.CompareAndSwap(false, true) {
		panic(infra.WrapErrorStack(ErrSeedConsumed))
	}
	a := New[T](opts...)
	// Nobody else sees the arena yet.
	raw := a.reserve()
	level, offset := decompose(raw)
	a.loadOrInstallBucket(level).slots[offset] = seed.val
	return a
}

// Static is a process-wide seeded arena, declared at package level and
// built on first use:
//
//	var symbols = arena.NewStatic("")
//
//	func intern(s string) arena.Ref[string] { return symbols.Arena().Add(s) }
type Static[T any] struct {
	once  sync.Once
	seed  *Seed[T]
	opts  []Option
	arena *Arena[T]
}

func NewStatic[T any](v T, opts ...Option) *Static[T] {
	return &Static[T]{
		seed: NewSeed(v),
		opts: opts,
	}
}

func (s *Static[T]) Arena() *Arena[T] {
	s.once.Do(func() {
		s.arena = NewWithSeed(s.seed, s.opts...)
	})
	return s.arena
}

// Zero returns the seeded value without building the arena.
func (s *Static[T]) Zero() T {
	return s.seed.Value()
}

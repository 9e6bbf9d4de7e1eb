package arena

import (
	"strconv"

	"github.com/benz9527/xarena/lib/infra"
)

// Ref is a stable 4-byte handle to an element of one specific Arena[T].
//
// The zero Ref is "no handle", so an optional handle costs no extra
// space. A Ref does not record which arena issued it; using it with
// another arena is a caller bug which is not detected at runtime.
type Ref[T any] struct {
	raw uint32
}

// Index returns the 0-based insertion position of the element.
// It is meaningless for the zero Ref.
func (r Ref[T]) Index() uint32 {
	return r.raw - minBucketCap
}

func (r Ref[T]) IsNone() bool {
	return r.raw == 0
}

// Raw returns the biased value stored in the handle.
func (r Ref[T]) Raw() uint32 {
	return r.raw
}

func (r Ref[T]) String() string {
	if r.IsNone() {
		return "Ref(none)"
	}
	return "Ref(" + strconv.FormatUint(uint64(r.Index()), 10) + ")"
}

// UnsafeRebrand re-tags r for an element type U.
//
// It is only valid when rebuilding a reference graph 1:1 against a freshly
// built arena of U populated in exactly the same order as the arena which
// issued r, e.g. while decoding a persisted index space.
func UnsafeRebrand[U, T any](r Ref[T]) Ref[U] {
	return Ref[U]{raw: r.raw}
}

// UnsafeRefAt builds the handle of the 0-based index. The same caveat as
// UnsafeRebrand applies: the target arena must hold that index already.
func UnsafeRefAt[T any](index uint32) Ref[T] {
	if uint64(index) >= MaxLen {
		panic(infra.WrapErrorStackWithMessage(ErrRefOutOfRange, "index "+strconv.FormatUint(uint64(index), 10)))
	}
	return Ref[T]{raw: index + minBucketCap}
}

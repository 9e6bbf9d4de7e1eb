package arena

import (
	"reflect"
)

// Releaser is implemented by elements owning resources which must be
// released exactly once, when the arena holding them is released.
type Releaser interface {
	Release()
}

type releaseMode uint8

const (
	releaseNone releaseMode = iota
	// T itself implements Releaser.
	releaseByValue
	// T is a pointer implementing Releaser, nil slots are skipped.
	releaseByNonNilPtr
	// Only *T implements Releaser.
	releaseByPtr
	// T is an interface, checked per element.
	releaseDynamic
)

var releaserType = reflect.TypeOf((*Releaser)(nil)).Elem()

func releaseModeOf[T any]() releaseMode {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	switch {
	case typ.Kind() == reflect.Interface:
		return releaseDynamic
	case typ.Kind() == reflect.Pointer && typ.Implements(releaserType):
		return releaseByNonNilPtr
	case typ.Implements(releaserType):
		return releaseByValue
	case reflect.PointerTo(typ).Implements(releaserType):
		return releaseByPtr
	default:
	}
	return releaseNone
}

// isNilPointer reports a nil pointer stored in an interface or a slot.
func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil())
}

// releaseOne converts a panic of r.Release into its return value, so that
// one faulty element never stops the teardown of the others.
func releaseOne(r Releaser) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	r.Release()
	return nil
}

// bucket is one fixed-capacity level of the telescoping storage. The
// slots slice is allocated once with its final length and never
// re-sliced, so an element's address is stable for the bucket lifetime.
// A slot is written once, by the only goroutine that reserved its index.
type bucket[T any] struct {
	slots []T
}

func newBucket[T any](capacity uint32) *bucket[T] {
	return &bucket[T]{
		slots: make([]T, capacity),
	}
}

// release runs the releaser of the first live slots exactly once and
// drops the storage. Slots beyond live were never written and are not
// visited. Every live slot is visited even if some releasers panic; the
// first recovered value and the number of panics are returned.
func (b *bucket[T]) release(live uint32, mode releaseMode) (firstPanic any, panics int) {
	slots := b.slots[:live]
	call := func(r Releaser) {
		if p := releaseOne(r); p != nil {
			if panics == 0 {
				firstPanic = p
			}
			panics++
		}
	}
	switch mode {
	case releaseByValue:
		for i := range slots {
			call(any(slots[i]).(Releaser))
		}
	case releaseByNonNilPtr:
		for i := range slots {
			if v := any(slots[i]); !isNilPointer(v) {
				call(v.(Releaser))
			}
		}
	case releaseByPtr:
		for i := range slots {
			call(any(&slots[i]).(Releaser))
		}
	case releaseDynamic:
		for i := range slots {
			if r, ok := any(slots[i]).(Releaser); ok && !isNilPointer(r) {
				call(r)
			}
		}
	default:
	}
	b.slots = nil
	return firstPanic, panics
}

package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithSeed(t *testing.T) {
	seed := NewSeed("")
	require.False(t, seed.Consumed())

	a := NewWithSeed(seed, WithName("symbols"))
	require.True(t, seed.Consumed())
	require.Equal(t, 1, a.Len())
	require.False(t, a.IsEmpty())
	require.Equal(t, "", *a.Get(ZeroRef[string]()))
	require.Equal(t, uint32(0), ZeroRef[string]().Index())
	require.False(t, ZeroRef[string]().IsNone())

	ref := a.Add("Query")
	require.Equal(t, uint32(1), ref.Index())
	require.Equal(t, "Query", *a.Get(ref))
	require.Equal(t, 2, a.Len())
}

func TestNewWithSeed_ConsumeTwice(t *testing.T) {
	seed := NewSeed(42)
	a := NewWithSeed(seed)
	require.Equal(t, 42, *a.Get(ZeroRef[int]()))
	requirePanicErrorIs(t, ErrSeedConsumed, func() {
		NewWithSeed(seed)
	})
	requirePanicErrorIs(t, ErrNilSeed, func() {
		NewWithSeed[int](nil)
	})
}

func TestNewWithSeed_ReleasesSeed(t *testing.T) {
	drops := 0
	seed := NewSeed(countedDrop{drops: &drops})
	a := NewWithSeed(seed)
	a.Add(countedDrop{drops: &drops})
	a.Add(countedDrop{drops: &drops})
	a.Release()
	require.Equal(t, 3, drops)
}

type countedDrop struct {
	drops *int
}

func (d countedDrop) Release() {
	*d.drops++
}

func TestStatic(t *testing.T) {
	static := NewStatic("", WithName("static"))
	require.Equal(t, "", static.Zero())

	const workers = 8
	arenas := make([]*Arena[string], workers)
	wg := sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			arenas[i] = static.Arena()
			arenas[i].Add("field")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		require.Same(t, arenas[0], arenas[i])
	}
	a := static.Arena()
	require.Equal(t, "static", a.Name())
	require.Equal(t, 1+workers, a.Len())
	require.Equal(t, "", *a.Get(ZeroRef[string]()))
	require.True(t, static.seed.Consumed())
}

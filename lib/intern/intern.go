// Package intern maps strings to compact symbols backed by an arena.
//
// The same string always yields the same arena.Ref, and that ref resolves
// back to its string without any lock. The empty string is seeded at
// index 0 of every interner.
package intern

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/benz9527/xarena/lib/arena"
	"github.com/benz9527/xarena/lib/infra"
	"github.com/benz9527/xarena/lib/kv"
	"github.com/benz9527/xarena/xlog"
)

const InternStatsName = "xarena/intern"

// Interner is safe for concurrent Intern and Lookup. Strings are stored
// in an arena, and the index from string to handle is a sharded map.
type Interner[S ~string] struct {
	symbols *arena.Arena[S]
	index   kv.ThreadSafeStorer[S, arena.Ref[S]]
	logger  xlog.XLogger
	stats   *internStats
}

func New[S ~string](opts ...Option) (*Interner[S], error) {
	o := &internOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = xlog.NewNopXLogger()
	}
	arenaOpts := []arena.Option{arena.WithLogger(o.logger)}
	if len(o.name) > 0 {
		arenaOpts = append(arenaOpts, arena.WithName(o.name))
	}
	if o.meterProvider != nil {
		arenaOpts = append(arenaOpts, arena.WithMeterProvider(o.meterProvider))
	}
	return newInterner(arena.NewWithSeed(arena.NewSeed[S](""), arenaOpts...), o)
}

func newInterner[S ~string](symbols *arena.Arena[S], o *internOptions) (*Interner[S], error) {
	index, err := kv.NewShardedMap[S, arena.Ref[S]](kv.WithShardedMapShards(o.getShards()))
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "[intern] index")
	}
	in := &Interner[S]{
		symbols: symbols,
		index:   index,
		logger:  o.logger,
	}
	if o.meterProvider != nil {
		in.stats = newInternStats(symbols.Name(), o.meterProvider)
	}
	index.AddOrUpdate("", arena.ZeroRef[S]())
	return in, nil
}

// Empty is the symbol of the empty string.
func (in *Interner[S]) Empty() arena.Ref[S] {
	return arena.ZeroRef[S]()
}

// Intern returns the symbol of s, adding s on first sight.
func (in *Interner[S]) Intern(s S) arena.Ref[S] {
	sym, loaded := in.index.GetOrCompute(s, func() arena.Ref[S] {
		return in.symbols.Add(s)
	})
	in.stats.record(loaded)
	return sym
}

// Lookup resolves sym without taking any lock. sym must come from this
// interner.
func (in *Interner[S]) Lookup(sym arena.Ref[S]) S {
	return *in.symbols.Get(sym)
}

// Len counts the interned strings, the empty string included.
func (in *Interner[S]) Len() int {
	return in.symbols.Len()
}

func (in *Interner[S]) Stats() arena.Stats {
	return in.symbols.Stats()
}

func (in *Interner[S]) Release() {
	if err := in.index.Purge(); err != nil {
		in.logger.ErrorStack(infra.WrapErrorStack(err), "[intern] purge index")
	}
	in.symbols.Release()
	in.logger.Debug("[intern] released", zap.String("name", in.symbols.Name()))
}

type internStats struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
	attrs  metric.MeasurementOption
}

func newInternStats(name string, mp metric.MeterProvider) *internStats {
	meter := mp.Meter(InternStatsName)
	return &internStats{
		hits: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xarena.intern.hits",
			metric.WithDescription("The number of Intern calls which found the string interned."),
		)),
		misses: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xarena.intern.misses",
			metric.WithDescription("The number of Intern calls which added the string."),
		)),
		attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String("xarena.name", name))),
	}
}

func (stats *internStats) record(hit bool) {
	if stats == nil {
		return
	}
	if hit {
		stats.hits.Add(context.Background(), 1, stats.attrs)
		return
	}
	stats.misses.Add(context.Background(), 1, stats.attrs)
}

var (
	global         = arena.NewStatic("", arena.WithName("xarena-intern-global"))
	globalOnce     sync.Once
	globalInterner *Interner[string]
)

// Global is the process-wide interner. It lives as long as the process
// and must not be released.
func Global() *Interner[string] {
	globalOnce.Do(func() {
		globalInterner = lo.Must[*Interner[string]](newInterner(global.Arena(), &internOptions{
			logger: xlog.NewNopXLogger(),
		}))
	})
	return globalInterner
}

package intern

import (
	"runtime"

	"go.opentelemetry.io/otel/metric"

	"github.com/benz9527/xarena/lib/infra"
	"github.com/benz9527/xarena/xlog"
)

type internOptions struct {
	name          string
	shards        int
	logger        xlog.XLogger
	meterProvider metric.MeterProvider
}

func (opts *internOptions) getShards() int {
	if opts.shards <= 0 {
		return max(runtime.GOMAXPROCS(0), 8)
	}
	return opts.shards
}

type Option func(opts *internOptions) error

func WithName(name string) Option {
	return func(opts *internOptions) error {
		opts.name = name
		return nil
	}
}

func WithLogger(logger xlog.XLogger) Option {
	return func(opts *internOptions) error {
		if logger == nil {
			return infra.NewErrorStack("[intern] nil logger")
		}
		opts.logger = logger
		return nil
	}
}

// WithShards sets the number of index shards, rounded up to a power of
// two. Defaults to GOMAXPROCS, at least 8.
func WithShards(n int) Option {
	return func(opts *internOptions) error {
		if n <= 0 {
			return infra.NewErrorStack("[intern] invalid shards number")
		}
		opts.shards = n
		return nil
	}
}

// WithMeterProvider enables the hit and miss counters of the interner
// and the instruments of its arena.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(opts *internOptions) error {
		opts.meterProvider = mp
		return nil
	}
}

package arena

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/benz9527/xarena/lib/id"
	"github.com/benz9527/xarena/xlog"
)

var nameGen = id.MonotonicNonZeroID()

type arenaOptions struct {
	name          string
	logger        xlog.XLogger
	meterProvider metric.MeterProvider
	enableStats   bool
}

func (opts *arenaOptions) getName() string {
	if len(opts.name) == 0 {
		opts.name = "xarena-" + nameGen.Str()
	}
	return opts.name
}

func (opts *arenaOptions) getLogger() xlog.XLogger {
	if opts.logger == nil {
		opts.logger = xlog.NewNopXLogger()
	}
	return opts.logger
}

func (opts *arenaOptions) getMeterProvider() metric.MeterProvider {
	if opts.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return opts.meterProvider
}

type Option func(opts *arenaOptions)

// WithName names the arena in logs and metrics.
// The default name is "xarena-<n>".
func WithName(name string) Option {
	return func(opts *arenaOptions) {
		opts.name = name
	}
}

func WithLogger(logger xlog.XLogger) Option {
	return func(opts *arenaOptions) {
		opts.logger = logger
	}
}

// WithStats registers the arena instruments on the global otel meter
// provider, or on the provider given by WithMeterProvider.
func WithStats() Option {
	return func(opts *arenaOptions) {
		opts.enableStats = true
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(opts *arenaOptions) {
		opts.meterProvider = mp
		opts.enableStats = mp != nil
	}
}

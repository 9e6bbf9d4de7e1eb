package arena

import (
	"context"
	"strconv"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	ArenaStatsName = "xarena"
)

type statsSource interface {
	Name() string
	Stats() Stats
}

type arenaStats struct {
	name            string
	attrs           metric.MeasurementOption
	bucketInstalled metric.Int64Counter
	length          metric.Int64ObservableGauge
	capacity        metric.Int64ObservableGauge
	unused          metric.Int64ObservableGauge
	registration    metric.Registration
}

func (stats *arenaStats) recordBucketInstalled(level int, capacity uint32) {
	if stats == nil {
		return
	}
	stats.bucketInstalled.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("xarena.name", stats.name),
			attribute.String("xarena.bucket.level", strconv.Itoa(level)),
			attribute.Int64("xarena.bucket.capacity", int64(capacity)),
		),
	)
}

func (stats *arenaStats) unregister() {
	if stats == nil || stats.registration == nil {
		return
	}
	_ = stats.registration.Unregister()
}

func newArenaStats(src statsSource, mp metric.MeterProvider) *arenaStats {
	meter := mp.Meter(ArenaStatsName)
	stats := &arenaStats{
		name:  src.Name(),
		attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String("xarena.name", src.Name()))),
		bucketInstalled: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xarena.bucket.installed",
			metric.WithDescription("The number of bucket levels opened by the arena."),
		)),
		length: lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xarena.len",
			metric.WithDescription("The number of indices reserved in the arena."),
		)),
		capacity: lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xarena.capacity",
			metric.WithDescription("The number of slots allocated by the arena."),
		)),
		unused: lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xarena.unused",
			metric.WithDescription("The number of allocated slots not reserved yet."),
		)),
	}
	stats.registration = lo.Must[metric.Registration](meter.RegisterCallback(
		func(ctx context.Context, ob metric.Observer) error {
			s := src.Stats()
			ob.ObserveInt64(stats.length, int64(s.Len), stats.attrs)
			ob.ObserveInt64(stats.capacity, int64(s.Capacity), stats.attrs)
			ob.ObserveInt64(stats.unused, int64(s.Unused), stats.attrs)
			return nil
		},
		stats.length, stats.capacity, stats.unused,
	))
	return stats
}

package arena

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader sdkmetric.Reader) map[string]metricdata.Aggregation {
	t.Helper()
	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	res := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != ArenaStatsName {
			continue
		}
		for _, m := range sm.Metrics {
			res[m.Name] = m.Data
		}
	}
	return res
}

func gaugeValue(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	gauge, ok := data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	return gauge.DataPoints[0].Value
}

func TestArenaStats_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		require.NoError(t, mp.Shutdown(context.Background()))
	}()

	a := New[int](WithName("stats"), WithMeterProvider(mp))
	for i := 0; i < 300; i++ {
		a.Add(i)
	}

	metrics := collect(t, reader)
	require.Equal(t, int64(300), gaugeValue(t, metrics["xarena.len"]))
	require.Equal(t, int64(384), gaugeValue(t, metrics["xarena.capacity"]))
	require.Equal(t, int64(84), gaugeValue(t, metrics["xarena.unused"]))

	sum, ok := metrics["xarena.bucket.installed"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.True(t, sum.IsMonotonic)
	total := int64(0)
	for _, dp := range sum.DataPoints {
		name, ok := dp.Attributes.Value("xarena.name")
		require.True(t, ok)
		require.Equal(t, "stats", name.AsString())
		total += dp.Value
	}
	require.Equal(t, int64(2), total)

	a.Release()
	require.Nil(t, a.stats.registration.Unregister())
}

func TestArenaStats_Disabled(t *testing.T) {
	a := New[int]()
	require.Nil(t, a.stats)
	a.Add(1)
	a.Release()

	a = New[int](WithMeterProvider(nil))
	require.Nil(t, a.stats)
}

package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseMetricsExporterType(t *testing.T) {
	for _, s := range []string{"none", "console", "prometheus"} {
		typ, err := ParseMetricsExporterType(s)
		require.NoError(t, err)
		require.Equal(t, MetricsExporterType(s), typ)
	}
	typ, err := ParseMetricsExporterType("statsd")
	require.Error(t, err)
	require.Equal(t, NoneMetricsExporter, typ)
}

func TestInitAppStats(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		require.NoError(t, mp.Shutdown(context.Background()))
	}()

	InitAppStats("test", mp)
	InitAppStats("ignored", mp)
	require.NotNil(t, app)

	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sm.Scope.Name == "xarena/app/test" {
				names[m.Name] = true
			}
		}
	}
	require.True(t, names["app.core.goroutines"])
	require.True(t, names["app.core.processes"])
	require.Equal(t, "xarena/app/default", appStatsName(" "))
}

func TestConsoleMetricsExporter(t *testing.T) {
	buf := &bytes.Buffer{}
	mp, err := NewConsoleMetricsExporter(time.Hour, time.Second, stdoutmetric.WithWriter(buf))
	require.NoError(t, err)

	counter, err := mp.Meter("console").Int64Counter("xarena.console.test")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)
	// Shutdown flushes the periodic reader.
	require.NoError(t, mp.Shutdown(context.Background()))
	require.True(t, strings.Contains(buf.String(), "xarena.console.test"))
}

func TestPrometheusMetricsExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	mp, err := NewPrometheusMetricsExporter(reg)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, mp.Shutdown(context.Background()))
	}()

	counter, err := mp.Meter("prometheus").Int64Counter("xarena.prom.test")
	require.NoError(t, err)
	counter.Add(context.Background(), 5)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, family := range families {
		if strings.HasPrefix(family.GetName(), "xarena_prom_test") {
			found = true
			require.Equal(t, float64(5), family.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, found)
}

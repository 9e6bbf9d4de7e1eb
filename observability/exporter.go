package observability

// https://opentelemetry.io/docs/languages/go/exporters/

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/benz9527/xarena/lib/infra"
)

type MetricsExporterType string

const (
	NoneMetricsExporter       MetricsExporterType = "none"
	ConsoleMetricsExporter    MetricsExporterType = "console"
	PrometheusMetricsExporter MetricsExporterType = "prometheus"
)

func ParseMetricsExporterType(s string) (MetricsExporterType, error) {
	switch typ := MetricsExporterType(s); typ {
	case NoneMetricsExporter, ConsoleMetricsExporter, PrometheusMetricsExporter:
		return typ, nil
	default:
	}
	return NoneMetricsExporter, infra.NewErrorStack("unknown metrics exporter " + s)
}

// NewConsoleMetricsExporter serves for test/dev environment.
// The returned provider is installed as the otel global one; the caller
// shuts it down.
func NewConsoleMetricsExporter(interval, timeout time.Duration, opts ...stdoutmetric.Option) (*metric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(opts...)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "stdout metrics exporter")
	}
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(
		exporter,
		metric.WithInterval(interval),
		metric.WithTimeout(timeout),
	)))
	otel.SetMeterProvider(mp)
	return mp, nil
}

// NewPrometheusMetricsExporter serves for the product environment and
// the stats are fetched from reg by HTTP.
func NewPrometheusMetricsExporter(reg prometheus.Registerer) (*metric.MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "prometheus metrics exporter")
	}
	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return mp, nil
}

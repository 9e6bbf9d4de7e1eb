package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/benz9527/xarena/observability"
	"github.com/benz9527/xarena/xlog"
)

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{"-w", "4", "--inserts", "1000", "--distinct", "10", "--metrics", "console", "--log-level", "debug"})
	require.NoError(t, err)
	require.Equal(t, 4, cfg.workers)
	require.Equal(t, 1000, cfg.inserts)
	require.Equal(t, 10, cfg.distinct)
	require.Equal(t, observability.ConsoleMetricsExporter, cfg.metrics)
	require.Equal(t, "debug", cfg.logLevel)

	t.Setenv("XLOG_LVL", "WARN")
	cfg, err = parseFlags(nil)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.workers)
	require.Equal(t, observability.NoneMetricsExporter, cfg.metrics)
	require.Equal(t, "WARN", cfg.logLevel)
	require.Empty(t, cfg.logFile)
	require.Len(t, loggerOptions(cfg), 3)

	cfg, err = parseFlags([]string{"--log-file", "/var/log/xarena/stress.log", "--log-file-max-size", "1MB", "--log-file-max-backups", "5"})
	require.NoError(t, err)
	require.Equal(t, "/var/log/xarena/stress.log", cfg.logFile)
	require.Equal(t, "1MB", cfg.logFileMaxSize)
	require.Equal(t, 5, cfg.logFileMaxBackups)
	require.Len(t, loggerOptions(cfg), 4)

	_, err = parseFlags([]string{"--log-file-max-backups", "-1"})
	require.Error(t, err)

	_, err = parseFlags([]string{"--metrics", "statsd"})
	require.Error(t, err)
	_, err = parseFlags([]string{"--workers", "0"})
	require.Error(t, err)
	_, err = parseFlags([]string{"--unknown"})
	require.Error(t, err)
}

func TestRunStress(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		require.NoError(t, mp.Shutdown(context.Background()))
	}()
	w := &bytes.Buffer{}
	logger := xlog.NewXLogger(xlog.WithXLoggerWriter(w), xlog.WithXLoggerLevel(xlog.LogLevelInfo))

	cfg := stressConfig{workers: 8, inserts: 50_000, distinct: 1000}
	report, err := runStress(context.Background(), cfg, logger, mp)
	require.NoError(t, err)
	require.Equal(t, 0, report.Mismatches)
	require.Equal(t, 50_000, report.Inserts)
	require.Equal(t, 1001, report.Interned)
	require.Equal(t, uint64(50_000), report.Arena.Len)
	require.Less(t, report.Arena.Unused, report.Arena.Capacity)
	require.Len(t, report.fields(), 9)

	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)
}

func TestRunStress_FewerInsertsThanWords(t *testing.T) {
	cfg := stressConfig{workers: 2, inserts: 10, distinct: 100}
	report, err := runStress(context.Background(), cfg, xlog.NewNopXLogger(), sdkmetric.NewMeterProvider())
	require.NoError(t, err)
	require.Equal(t, 11, report.Interned)

	report, err = runStress(context.Background(), stressConfig{workers: 1, distinct: 1}, xlog.NewNopXLogger(), sdkmetric.NewMeterProvider())
	require.NoError(t, err)
	require.Equal(t, uint64(0), report.Arena.Len)
}

func TestRunStress_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := stressConfig{workers: 2, inserts: 1000, distinct: 10}
	_, err := runStress(ctx, cfg, xlog.NewNopXLogger(), sdkmetric.NewMeterProvider())
	require.ErrorIs(t, err, context.Canceled)
}

func TestAppOptions(t *testing.T) {
	cfg := stressConfig{workers: 1, inserts: 1, distinct: 1, metrics: observability.NoneMetricsExporter}
	require.NoError(t, fx.ValidateApp(appOptions(cfg, xlog.NewNopXLogger())...))
}

func TestLoggerOptions_LogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "stress.log")
	cfg, err := parseFlags([]string{"--log-file", logFile, "--log-level", "info"})
	require.NoError(t, err)

	logger := xlog.NewXLogger(loggerOptions(cfg)...)
	logger.Info("[xarena-stress] report", zap.Int("inserts", 10))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "[xarena-stress] report")
	require.Contains(t, string(data), "inserts")
}

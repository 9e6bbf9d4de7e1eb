// Command xarena-stress hammers an arena and an interner from a worker
// pool, then checks every handle it got back.
//
//	xarena-stress --workers 64 --inserts 10000000 --metrics console
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/benz9527/xarena/lib/infra"
	"github.com/benz9527/xarena/observability"
	"github.com/benz9527/xarena/xlog"
)

type stressConfig struct {
	workers     int
	inserts     int
	distinct    int
	metrics     observability.MetricsExporterType
	metricsAddr string
	logLevel    string
	// Empty logs to stdout only.
	logFile           string
	logFileMaxSize    string
	logFileMaxBackups int
}

func parseFlags(args []string) (stressConfig, error) {
	cfg := stressConfig{}
	var metrics string
	fs := pflag.NewFlagSet("xarena-stress", pflag.ContinueOnError)
	fs.IntVarP(&cfg.workers, "workers", "w", 16, "Size of the worker pool.")
	fs.IntVarP(&cfg.inserts, "inserts", "n", 1_000_000, "Number of records inserted into the arena.")
	fs.IntVar(&cfg.distinct, "distinct", 4096, "Number of distinct words interned by the records.")
	fs.StringVar(&metrics, "metrics", string(observability.NoneMetricsExporter), "Metrics exporter: none, console or prometheus.")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "127.0.0.1:9464", "Listen address of the prometheus metrics handler.")
	fs.StringVar(&cfg.logLevel, "log-level", lo.Ternary(len(os.Getenv("XLOG_LVL")) > 0, os.Getenv("XLOG_LVL"), "INFO"), "Log level, overrides env XLOG_LVL.")
	fs.StringVar(&cfg.logFile, "log-file", "", "Also write logs to this file.")
	fs.StringVar(&cfg.logFileMaxSize, "log-file-max-size", "64MB", "Rotate the log file at this size, empty disables rotation.")
	fs.IntVar(&cfg.logFileMaxBackups, "log-file-max-backups", 3, "Rotated log files to keep, 0 keeps all.")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	var err error
	if cfg.metrics, err = observability.ParseMetricsExporterType(metrics); err != nil {
		return cfg, err
	}
	if cfg.logFileMaxBackups < 0 {
		return cfg, infra.NewErrorStack("[xarena-stress] log file max backups must not be negative")
	}
	if cfg.workers <= 0 || cfg.inserts < 0 || cfg.distinct <= 0 {
		return cfg, infra.NewErrorStack("[xarena-stress] workers and distinct must be positive, inserts must not be negative")
	}
	return cfg, nil
}

func newMeterProvider(lc fx.Lifecycle, cfg stressConfig, logger xlog.XLogger) (metric.MeterProvider, error) {
	switch cfg.metrics {
	case observability.ConsoleMetricsExporter:
		mp, err := observability.NewConsoleMetricsExporter(time.Second, 5*time.Second)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(mp.Shutdown))
		observability.InitAppStats("stress", mp)
		return mp, nil
	case observability.PrometheusMetricsExporter:
		reg := prometheus.NewRegistry()
		mp, err := observability.NewPrometheusMetricsExporter(reg)
		if err != nil {
			return nil, err
		}
		srv := &http.Server{
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", cfg.metricsAddr)
				if err != nil {
					return err
				}
				logger.Info("[xarena-stress] serving prometheus metrics", zap.String("addr", ln.Addr().String()))
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.ErrorStack(err, "[xarena-stress] metrics server")
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return multierr.Combine(srv.Shutdown(ctx), mp.Shutdown(ctx))
			},
		})
		observability.InitAppStats("stress", mp)
		return mp, nil
	default:
	}
	return noop.NewMeterProvider(), nil
}

func registerStress(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg stressConfig, logger xlog.XLogger, mp metric.MeterProvider) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				code := 0
				report, err := runStress(ctx, cfg, logger, mp)
				if report != nil {
					logger.Info("[xarena-stress] report", report.fields()...)
				}
				if err != nil {
					logger.ErrorStack(err, "[xarena-stress] failed")
					code = 1
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					logger.ErrorStack(err, "[xarena-stress] shutdown")
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func appOptions(cfg stressConfig, logger xlog.XLogger) []fx.Option {
	return []fx.Option{
		fx.WithLogger(func() fxevent.Logger {
			return xlog.NewFxXLogger(logger)
		}),
		fx.Supply(cfg),
		fx.Provide(func() xlog.XLogger { return logger }),
		// Appended first, so it stops after every other hook has logged.
		fx.Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.StopHook(logger.Close))
		}),
		fx.Provide(newMeterProvider),
		fx.Invoke(registerStress),
	}
}

func loggerOptions(cfg stressConfig) []xlog.XLoggerOption {
	opts := []xlog.XLoggerOption{
		xlog.WithXLoggerStdOutWriter(),
		xlog.WithXLoggerEncoder(xlog.PlainText),
		xlog.WithXLoggerLevel(xlog.ParseLogLevel(cfg.logLevel)),
	}
	if len(cfg.logFile) > 0 {
		opts = append(opts, xlog.WithXLoggerFileWriter(&xlog.FileCoreConfig{
			FilePath:       filepath.Dir(cfg.logFile),
			Filename:       filepath.Base(cfg.logFile),
			FileMaxSize:    cfg.logFileMaxSize,
			FileMaxBackups: cfg.logFileMaxBackups,
		}))
	}
	return opts
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger := xlog.NewXLogger(loggerOptions(cfg)...)
	defer func() {
		_ = logger.Sync()
	}()
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Logf(zapcore.InfoLevel, format, args...)
	}))
	defer undo()
	if err != nil {
		logger.ErrorStack(err, "[xarena-stress] set GOMAXPROCS")
	}

	fx.New(appOptions(cfg, logger)...).Run()
}

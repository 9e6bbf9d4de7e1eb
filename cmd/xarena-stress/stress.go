package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/process"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/benz9527/xarena/lib/arena"
	"github.com/benz9527/xarena/lib/infra"
	"github.com/benz9527/xarena/lib/intern"
	"github.com/benz9527/xarena/xlog"
)

var errStressMismatch = errors.New("[xarena-stress] handle mismatch")

type record struct {
	seq  int
	word arena.Ref[string]
}

type stressReport struct {
	Inserts    int
	Mismatches int
	Interned   int
	Arena      arena.Stats
	RSS        uint64
	Elapsed    time.Duration
}

func (r *stressReport) fields() []zap.Field {
	return []zap.Field{
		zap.Int("inserts", r.Inserts),
		zap.Int("mismatches", r.Mismatches),
		zap.Int("interned", r.Interned),
		zap.Uint64("arenaLen", r.Arena.Len),
		zap.Int("arenaLevels", r.Arena.Levels),
		zap.Uint64("arenaCapacity", r.Arena.Capacity),
		zap.Uint64("arenaUnused", r.Arena.Unused),
		zap.Uint64("rss", r.RSS),
		zap.Duration("elapsed", r.Elapsed),
	}
}

func wordOf(i, distinct int) string {
	return "word_" + strconv.Itoa(i%distinct)
}

// runStress inserts cfg.inserts records into one arena from a pool of
// cfg.workers goroutines, each record naming an interned word, then
// checks every returned handle resolves to what was inserted.
func runStress(ctx context.Context, cfg stressConfig, logger xlog.XLogger, mp metric.MeterProvider) (report *stressReport, err error) {
	start := time.Now()
	panics := atomic.Int64{}
	pool, err := ants.NewPool(cfg.workers,
		ants.WithLogger(xlog.NewAntsXLogger(logger)),
		ants.WithPanicHandler(func(r any) {
			panics.Add(1)
			logger.Error(nil, "[xarena-stress] worker panic", zap.Any("recover", r))
		}),
	)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "[xarena-stress] worker pool")
	}
	defer func() {
		_ = pool.ReleaseTimeout(time.Second)
	}()

	records := arena.New[record](
		arena.WithName("xarena-stress"),
		arena.WithLogger(logger),
		arena.WithMeterProvider(mp),
	)
	defer records.Release()
	words, err := intern.New[string](
		intern.WithName("xarena-stress-words"),
		intern.WithLogger(logger),
		intern.WithMeterProvider(mp),
	)
	if err != nil {
		return nil, err
	}
	defer words.Release()

	refs := make([]arena.Ref[record], cfg.inserts)
	batch := max(cfg.inserts/(cfg.workers*4), 1)
	wg := sync.WaitGroup{}
	for _, chunk := range lo.Chunk(lo.Range(cfg.inserts), batch) {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if submitErr := pool.Submit(func() {
			defer wg.Done()
			for _, i := range chunk {
				// Every index of refs is written by exactly one task.
				refs[i] = records.Add(record{
					seq:  i,
					word: words.Intern(wordOf(i, cfg.distinct)),
				})
			}
		}); submitErr != nil {
			wg.Done()
			err = multierr.Append(err, submitErr)
			break
		}
	}
	wg.Wait()
	if err = multierr.Append(err, ctx.Err()); err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "[xarena-stress] inserts")
	}
	if n := panics.Load(); n > 0 {
		return nil, infra.NewErrorStack("[xarena-stress] " + strconv.FormatInt(n, 10) + " worker panics")
	}

	report = &stressReport{
		Inserts:  cfg.inserts,
		Interned: words.Len(),
	}
	seen := make(map[uint32]struct{}, len(refs))
	for i, ref := range refs {
		rec := records.Get(ref)
		_, dup := seen[ref.Index()]
		seen[ref.Index()] = struct{}{}
		if dup || rec.seq != i || words.Lookup(rec.word) != wordOf(i, cfg.distinct) {
			report.Mismatches++
		}
	}
	// The empty string is interned at index 0.
	if expected := min(cfg.distinct, cfg.inserts) + 1; report.Interned != expected {
		logger.Warn("[xarena-stress] unexpected interned words",
			zap.Int("interned", report.Interned),
			zap.Int("expected", expected),
		)
		report.Mismatches++
	}
	report.Arena = records.Stats()
	report.RSS = residentSetSize(ctx)
	report.Elapsed = time.Since(start)

	if report.Mismatches > 0 {
		return report, infra.WrapErrorStackWithMessage(errStressMismatch, strconv.Itoa(report.Mismatches))
	}
	return report, nil
}

func residentSetSize(ctx context.Context) uint64 {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0
	}
	return info.RSS
}

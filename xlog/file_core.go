package xlog

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/benz9527/xarena/lib/infra"
)

// FileCoreConfig configures the file output of an XLogger.
// FilePath defaults to os.TempDir() and Filename to <executable>_xlog.log.
// A FileMaxSize such as "64MB" enables the rotation, and a FileBufferSize
// such as "256KB" enables the write buffer.
type FileCoreConfig struct {
	FilePath                string `json:"filePath" yaml:"filePath"`
	Filename                string `json:"filename" yaml:"filename"`
	FileMaxSize             string `json:"fileMaxSize" yaml:"fileMaxSize"`
	FileBufferSize          string `json:"fileBufferSize" yaml:"fileBufferSize"`
	FileBufferFlushInterval int64  `json:"fileBufferFlushInterval" yaml:"fileBufferFlushInterval"` // Milliseconds
	FileMaxBackups          int    `json:"fileMaxBackups" yaml:"fileMaxBackups"`
}

const (
	_maxBufferSize    = 10 * MB
	_minBufferFlushMs = 200
	_maxBufferFlushMs = 3000
)

type fileCoreSpec struct {
	filePath      string
	filename      string
	maxSize       uint64
	maxBackups    int
	bufSize       uint64
	flushInterval time.Duration
}

func parseFileCoreConfig(cfg *FileCoreConfig) (*fileCoreSpec, error) {
	if cfg == nil {
		return nil, infra.NewErrorStack("[XLogger] nil file core config")
	}
	spec := &fileCoreSpec{
		filePath:   cfg.FilePath,
		filename:   cfg.Filename,
		maxBackups: cfg.FileMaxBackups,
	}
	if len(spec.filePath) == 0 {
		spec.filePath = os.TempDir()
	}
	if len(spec.filename) == 0 {
		spec.filename = filepath.Base(os.Args[0]) + "_xlog.log"
	}
	if spec.maxBackups < 0 {
		return nil, infra.NewErrorStack("[XLogger] negative file max backups")
	}

	var err error
	if len(cfg.FileMaxSize) > 0 {
		if spec.maxSize, err = parseFileSize(cfg.FileMaxSize); err != nil {
			return nil, err
		}
	}
	if len(cfg.FileBufferSize) > 0 {
		if spec.bufSize, err = parseFileSize(cfg.FileBufferSize); err != nil {
			return nil, err
		}
		if spec.bufSize > uint64(_maxBufferSize) {
			return nil, infra.NewErrorStack("[XLogger] file buffer size too large")
		}
		ms := min(max(cfg.FileBufferFlushInterval, _minBufferFlushMs), _maxBufferFlushMs)
		spec.flushInterval = time.Duration(ms) * time.Millisecond
	}
	return spec, nil
}

var _ io.Closer = (*fileCore)(nil)

// fileCore owns its file, which XLogger.Close releases.
type fileCore struct {
	*commonCore
	buffered *zapcore.BufferedWriteSyncer
	out      io.WriteCloser
}

func (fc *fileCore) Close() error {
	var merr error
	if fc.buffered != nil {
		merr = multierr.Append(merr, fc.buffered.Stop())
	}
	return multierr.Append(merr, fc.out.Close())
}

func newFileCore(spec *fileCoreSpec) XLogCoreConstructor {
	return func(
		lvlEnabler zapcore.LevelEnabler,
		encoder logEncoderType,
		lvlEnc zapcore.LevelEncoder,
		tsEnc zapcore.TimeEncoder,
	) xLogCore {
		var out interface {
			io.WriteCloser
			Sync() error
		}
		if spec.maxSize > 0 {
			out = &rotateLog{
				filePath:   spec.filePath,
				filename:   spec.filename,
				maxSize:    spec.maxSize,
				maxBackups: spec.maxBackups,
			}
		} else {
			out = &singleLog{
				filePath: spec.filePath,
				filename: spec.filename,
			}
		}

		fc := &fileCore{out: out}
		var ws zapcore.WriteSyncer = out
		if spec.bufSize > 0 {
			fc.buffered = &zapcore.BufferedWriteSyncer{
				WS:            out,
				Size:          int(spec.bufSize),
				FlushInterval: spec.flushInterval,
			}
			ws = fc.buffered
		}
		fc.commonCore = newCommonCore(ws, lvlEnabler, encoder, lvlEnc, tsEnc)
		return fc
	}
}

// WithXLoggerFileWriter adds a file output, rotated by size when
// FileMaxSize is set and buffered when FileBufferSize is set.
func WithXLoggerFileWriter(cfg *FileCoreConfig) XLoggerOption {
	return func(c *loggerCfg) error {
		spec, err := parseFileCoreConfig(cfg)
		if err != nil {
			return err
		}
		c.coreConstructors = append(c.coreConstructors, newFileCore(spec))
		return nil
	}
}

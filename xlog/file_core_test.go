package xlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readLogLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	res := make([]map[string]any, 0, 8)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := map[string]any{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		res = append(res, m)
	}
	require.NoError(t, scanner.Err())
	return res
}

func TestParseFileSize(t *testing.T) {
	testcases := []struct {
		size    string
		want    uint64
		wantErr bool
	}{
		{"1B", 1, false},
		{"10kb", 10 * 1024, false},
		{"64MB", 64 << 20, false},
		{"1024MB", 1 << 30, false},
		{"1025MB", 0, true},
		{"12", 0, true},
		{"MB", 0, true},
		{"1GB", 0, true},
		{" 1MB", 0, true},
	}
	for _, tc := range testcases {
		t.Run(tc.size, func(t *testing.T) {
			size, err := parseFileSize(tc.size)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, size)
		})
	}
}

func TestParseFileCoreConfig(t *testing.T) {
	_, err := parseFileCoreConfig(nil)
	require.Error(t, err)
	_, err = parseFileCoreConfig(&FileCoreConfig{FileMaxBackups: -1})
	require.Error(t, err)
	_, err = parseFileCoreConfig(&FileCoreConfig{FileMaxSize: "big"})
	require.Error(t, err)
	_, err = parseFileCoreConfig(&FileCoreConfig{FileBufferSize: "11MB"})
	require.Error(t, err)

	spec, err := parseFileCoreConfig(&FileCoreConfig{})
	require.NoError(t, err)
	require.Equal(t, os.TempDir(), spec.filePath)
	require.True(t, strings.HasSuffix(spec.filename, "_xlog.log"))
	require.Equal(t, uint64(0), spec.maxSize)

	spec, err = parseFileCoreConfig(&FileCoreConfig{FileBufferSize: "4KB", FileBufferFlushInterval: 10})
	require.NoError(t, err)
	require.Equal(t, uint64(4096), spec.bufSize)
	require.Equal(t, 200*time.Millisecond, spec.flushInterval)

	spec, err = parseFileCoreConfig(&FileCoreConfig{FileBufferSize: "4KB", FileBufferFlushInterval: 60_000})
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, spec.flushInterval)
}

func TestXLogger_SingleFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger := NewXLogger(
		WithXLoggerFileWriter(&FileCoreConfig{FilePath: dir, Filename: "stress.log"}),
		WithXLoggerLevel(LogLevelInfo),
	)
	logger.Info("first", zap.String("arena", "symbols"))
	logger.Debug("dropped")
	logger.Warn("second")
	require.NoError(t, logger.Sync())
	require.NoError(t, logger.Close())

	lines := readLogLines(t, filepath.Join(dir, "stress.log"))
	require.Len(t, lines, 2)
	require.Equal(t, "first", lines[0]["msg"])
	require.Equal(t, "symbols", lines[0]["arena"])
	require.Equal(t, "WARN", lines[1]["lvl"])

	// A reopened logger appends.
	logger = NewXLogger(WithXLoggerFileWriter(&FileCoreConfig{FilePath: dir, Filename: "stress.log"}))
	logger.Error(nil, "third")
	require.NoError(t, logger.Close())
	require.Len(t, readLogLines(t, filepath.Join(dir, "stress.log")), 3)
}

func TestRotateLog_Backups(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	log := &rotateLog{
		filePath:   dir,
		filename:   "arena.log",
		maxSize:    100,
		maxBackups: 2,
		now: func() time.Time {
			ts = ts.Add(time.Second)
			return ts
		},
	}
	line := []byte(strings.Repeat("x", 39) + "\n")
	for i := 0; i < 10; i++ {
		n, err := log.Write(line)
		require.NoError(t, err)
		require.Equal(t, len(line), n)
	}
	require.NoError(t, log.Sync())
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())

	// 2 lines per file: 5 files were written, the 2 newest backups are kept.
	backups, err := log.backups()
	require.NoError(t, err)
	require.Equal(t, []string{
		"arena_2024_04_01T00_00_03.000000000.log",
		"arena_2024_04_01T00_00_04.000000000.log",
	}, backups)
	for _, name := range append(backups, "arena.log") {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.Equal(t, 2*len(line), len(data), name)
	}
}

func TestRotateLog_KeepAllBackups(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	log := &rotateLog{
		filePath: dir,
		filename: "arena.log",
		maxSize:  10,
		now: func() time.Time {
			ts = ts.Add(time.Millisecond)
			return ts
		},
	}
	for i := 0; i < 5; i++ {
		_, err := log.Write([]byte("line " + strconv.Itoa(i) + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())
	backups, err := log.backups()
	require.NoError(t, err)
	require.Len(t, backups, 4)
}

func TestXLogger_BufferedRotateFile(t *testing.T) {
	dir := t.TempDir()
	logger := NewXLogger(
		WithXLoggerFileWriter(&FileCoreConfig{
			FilePath:                dir,
			Filename:                "buffered.log",
			FileMaxSize:             "1KB",
			FileMaxBackups:          1,
			FileBufferSize:          "4KB",
			FileBufferFlushInterval: 200,
		}),
		WithXLoggerLevel(LogLevelInfo),
	)
	for i := 0; i < 100; i++ {
		logger.Info("bucket installed", zap.String("arena", "a"+strconv.Itoa(i)))
	}
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	lines := readLogLines(t, filepath.Join(dir, "buffered.log"))
	require.NotEmpty(t, lines)
	require.Equal(t, "a99", lines[len(lines)-1]["arena"])
}

func TestXLogger_BadFileOptions(t *testing.T) {
	require.Panics(t, func() {
		NewXLogger(WithXLoggerFileWriter(nil))
	})
	require.Panics(t, func() {
		NewXLogger(WithXLoggerFileWriter(&FileCoreConfig{FileMaxSize: "1GB"}))
	})
	require.NoError(t, NewNopXLogger().Close())
}

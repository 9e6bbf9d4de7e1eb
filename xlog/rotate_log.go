package xlog

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/benz9527/xarena/lib/infra"
)

type fileSizeUnit uint64

const (
	B  fileSizeUnit = 1
	KB fileSizeUnit = 1 << (10 * iota)
	MB
	_maxSize = 1024 * MB
)

const backupDateTimeFormat = "2006_01_02T15_04_05.000000000"

var fileSizeRegexp = regexp.MustCompile(`^(\d+)(([kK]|[mM])?[bB])$`)

// parseFileSize accepts "<n>B", "<n>KB" and "<n>MB", case-insensitively.
func parseFileSize(size string) (uint64, error) {
	res := fileSizeRegexp.FindAllStringSubmatch(size, -1)
	if len(res) <= 0 || len(res[0]) < 3 || res[0][0] != size {
		return 0, infra.NewErrorStack("invalid file size unit")
	}
	var unit fileSizeUnit
	switch strings.ToUpper(res[0][2]) {
	case "B":
		unit = B
	case "KB":
		unit = KB
	case "MB":
		unit = MB
	}
	_size, err := strconv.ParseUint(res[0][1], 10, 64)
	if err != nil {
		return 0, infra.WrapErrorStackWithMessage(err, "unknown file size")
	}
	if _size*uint64(unit) > uint64(_maxSize) {
		return 0, infra.NewErrorStack("file size too large")
	}
	return _size * uint64(unit), nil
}

var _ io.WriteCloser = (*rotateLog)(nil)

// rotateLog renames the current file to a timestamped backup once it
// would grow past maxSize, and keeps at most maxBackups backups.
type rotateLog struct {
	lock        sync.Mutex
	filePath    string
	filename    string
	maxSize     uint64
	maxBackups  int
	wroteSize   uint64
	mkdirOnce   sync.Once
	currentFile *os.File
	now         func() time.Time
}

func (log *rotateLog) Write(p []byte) (n int, err error) {
	log.lock.Lock()
	defer log.lock.Unlock()

	if log.currentFile == nil {
		if err = log.openOrCreate(); err != nil {
			return 0, err
		}
	}
	if log.wroteSize > 0 && log.wroteSize+uint64(len(p)) > log.maxSize {
		if err = log.backupThenCreate(); err != nil {
			return 0, err
		}
	}
	n, err = log.currentFile.Write(p)
	log.wroteSize += uint64(n)
	return
}

func (log *rotateLog) Sync() error {
	log.lock.Lock()
	defer log.lock.Unlock()
	if log.currentFile == nil {
		return nil
	}
	return log.currentFile.Sync()
}

func (log *rotateLog) Close() error {
	log.lock.Lock()
	defer log.lock.Unlock()
	if log.currentFile == nil {
		return nil
	}
	err := log.currentFile.Close()
	log.currentFile = nil
	return err
}

func (log *rotateLog) openOrCreate() error {
	if err := mkdirLogPath(&log.mkdirOnce, log.filePath); err != nil {
		return err
	}
	f, size, err := openLogFile(filepath.Join(log.filePath, log.filename))
	if err != nil {
		return err
	}
	log.currentFile = f
	log.wroteSize = size
	return nil
}

func (log *rotateLog) nameAndExt() (string, string) {
	ext := filepath.Ext(log.filename)
	return strings.TrimSuffix(log.filename, ext), ext
}

func (log *rotateLog) backupThenCreate() error {
	if err := log.currentFile.Close(); err != nil {
		return infra.WrapErrorStackWithMessage(err, "close log file before backup")
	}
	log.currentFile = nil

	name, ext := log.nameAndExt()
	now := time.Now
	if log.now != nil {
		now = log.now
	}
	backup := name + "_" + now().UTC().Format(backupDateTimeFormat) + ext
	if err := os.Rename(
		filepath.Join(log.filePath, log.filename),
		filepath.Join(log.filePath, backup),
	); err != nil {
		return infra.WrapErrorStackWithMessage(err, "backup log file")
	}
	if err := log.removeStaleBackups(); err != nil {
		return err
	}
	return log.openOrCreate()
}

// removeStaleBackups keeps the newest maxBackups backups. The timestamp
// layout sorts lexically in time order. Zero keeps everything.
func (log *rotateLog) removeStaleBackups() error {
	if log.maxBackups <= 0 {
		return nil
	}
	backups, err := log.backups()
	if err != nil {
		return err
	}
	if len(backups) <= log.maxBackups {
		return nil
	}
	var merr error
	for _, backup := range backups[:len(backups)-log.maxBackups] {
		merr = multierr.Append(merr, os.Remove(filepath.Join(log.filePath, backup)))
	}
	return infra.WrapErrorStack(merr)
}

func (log *rotateLog) backups() ([]string, error) {
	name, ext := log.nameAndExt()
	entries, err := os.ReadDir(log.filePath)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "list log backups")
	}
	res := make([]string, 0, len(entries))
	for _, entry := range entries {
		n := entry.Name()
		if entry.IsDir() || n == log.filename {
			continue
		}
		if strings.HasPrefix(n, name+"_") && strings.HasSuffix(n, ext) {
			res = append(res, n)
		}
	}
	sort.Strings(res)
	return res, nil
}

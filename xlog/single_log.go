package xlog

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/benz9527/xarena/lib/infra"
)

var _ io.WriteCloser = (*singleLog)(nil)

// singleLog appends into one file, created on the first write.
type singleLog struct {
	lock        sync.Mutex
	filePath    string
	filename    string
	wroteSize   uint64
	mkdirOnce   sync.Once
	currentFile *os.File
}

func (log *singleLog) Write(p []byte) (n int, err error) {
	log.lock.Lock()
	defer log.lock.Unlock()

	if log.currentFile == nil {
		if err := log.openOrCreate(); err != nil {
			return 0, err
		}
	}
	n, err = log.currentFile.Write(p)
	log.wroteSize += uint64(n)
	return
}

func (log *singleLog) Sync() error {
	log.lock.Lock()
	defer log.lock.Unlock()
	if log.currentFile == nil {
		return nil
	}
	return log.currentFile.Sync()
}

func (log *singleLog) Close() error {
	log.lock.Lock()
	defer log.lock.Unlock()
	if log.currentFile == nil {
		return nil
	}
	err := log.currentFile.Close()
	log.currentFile = nil
	return err
}

func (log *singleLog) openOrCreate() error {
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

func mkdirLogPath(once *sync.Once, filePath string) (err error) {
	once.Do(func() {
		err = os.MkdirAll(filePath, 0o755)
	})
	return infra.WrapErrorStack(err)
}

// openLogFile opens pathToLog for appending, creating it if absent, and
// returns its current size.
func openLogFile(pathToLog string) (*os.File, uint64, error) {
	info, err := os.Stat(pathToLog)
	if err == nil && info.IsDir() {
		return nil, 0, infra.NewErrorStack("log file <" + pathToLog + "> is a dir")
	}
	f, err := os.OpenFile(pathToLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, 0, infra.WrapErrorStackWithMessage(err, "unable to open log file: "+pathToLog)
	}
	if info == nil {
		return f, 0, nil
	}
	return f, uint64(info.Size()), nil
}

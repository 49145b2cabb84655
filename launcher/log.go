package launcher

import (
	"io"
	"path/filepath"

	"github.com/vearne/capsync/util"
	"gopkg.in/natefinch/lumberjack.v2"
)

// WorkerLogConfig controls the rotating worker log.
type WorkerLogConfig struct {
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	MaxSize int
	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int
	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int
}

var DefaultWorkerLogConfig = WorkerLogConfig{MaxSize: 10, MaxBackups: 5, MaxAge: 7}

// NewWorkerLog opens a rotating log for worker diagnostics at path.
func NewWorkerLog(path string, cf WorkerLogConfig) (io.WriteCloser, error) {
	if err := util.IsValidDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cf.MaxSize, // megabytes
		MaxBackups: cf.MaxBackups,
		MaxAge:     cf.MaxAge, //days
		Compress:   true,
	}, nil
}

package util

import (
	"os"

	"github.com/pkg/errors"
	slog "github.com/vearne/simplelog"
)

// IsNamedPipe reports whether path names a FIFO.
func IsNamedPipe(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeNamedPipe != 0
}

// RemoveFile deletes path, treating a missing file as success.
func RemoveFile(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("remove %s: %v", path, err)
		return errors.Wrap(err, "remove file")
	}
	return nil
}

// IsValidDir checks that dirPath exists and is a directory.
func IsValidDir(dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil {
		return errors.Wrap(err, "invalid directory")
	}
	if !info.IsDir() {
		return errors.Errorf("%v is not directory", dirPath)
	}
	return nil
}

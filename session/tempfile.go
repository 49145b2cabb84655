package session

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CreateTempCapture creates an empty, uniquely named capture file in dir
// (the system temp dir when dir is empty).
func CreateTempCapture(dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "capsync_"+uuid.New().String()+".pcap")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", errors.Wrap(err, "create temporary capture file")
	}
	return path, f.Close()
}

package savefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	slog "github.com/vearne/simplelog"
)

var ErrNoRing = errors.New("savefile: not a ring buffer")

const stampLayout = "20060102150405"

// Ring spreads a capture over numbered files <base>_<NNNNN>_<stamp><ext>,
// keeping at most numFiles of them on disk.
type Ring struct {
	base     string
	numFiles int
	linkType layers.LinkType
	snapLen  int
	now      func() time.Time

	seq   int
	files []string
	cur   *Writer
}

// NewRing opens the first file of a ring based on path. Numbering carries
// on after ring files a previous capture left behind, and those count
// against numFiles.
func NewRing(path string, numFiles int, linkType layers.LinkType, snapLen int) (*Ring, error) {
	return newRing(path, numFiles, linkType, snapLen, time.Now)
}

func newRing(path string, numFiles int, linkType layers.LinkType, snapLen int, now func() time.Time) (*Ring, error) {
	r := &Ring{base: path, numFiles: numFiles, linkType: linkType, snapLen: snapLen, now: now}
	existing, err := RingFiles(path)
	if err != nil {
		return nil, errors.Wrap(err, "ring buffer")
	}
	if len(existing) > 0 {
		r.files = existing
		r.seq = getFileIndex(existing[len(existing)-1])
		slog.Info("ring buffer %s: %d files from an earlier capture, continuing at %d",
			path, len(existing), r.seq+1)
	}
	if err := r.next(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Ring) next() error {
	r.seq++
	name := ringFileName(r.base, r.seq, r.now())
	w, err := Create(name, r.linkType, r.snapLen)
	if err != nil {
		return err
	}
	r.cur = w
	r.files = append(r.files, name)
	if r.numFiles > 0 {
		for len(r.files) > r.numFiles {
			old := r.files[0]
			r.files = r.files[1:]
			if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
				slog.Warn("ring buffer: remove %s: %v", old, err)
			}
		}
	}
	return nil
}

// Rotate closes the current file and starts the next one.
func (r *Ring) Rotate() (string, error) {
	if err := r.cur.Close(); err != nil {
		return "", err
	}
	if err := r.next(); err != nil {
		return "", err
	}
	slog.Debug("ring buffer switched to %s", r.cur.Path())
	return r.cur.Path(), nil
}

func (r *Ring) Append(ci gopacket.CaptureInfo, data []byte) error {
	return r.cur.Append(ci, data)
}

func (r *Ring) Flush() error {
	return r.cur.Flush()
}

func (r *Ring) Close() error {
	return r.cur.Close()
}

// Bytes is the size of the current file.
func (r *Ring) Bytes() int64 {
	return r.cur.Bytes()
}

func (r *Ring) Path() string {
	return r.cur.Path()
}

// Files lists the ring's files still on disk, oldest first.
func (r *Ring) Files() []string {
	return append([]string(nil), r.files...)
}

func ringFileName(base string, idx int, t time.Time) string {
	ext := filepath.Ext(base)
	withoutExt := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%05d_%s%s", withoutExt, idx, t.Format(stampLayout), ext)
}

// getFileIndex returns the sequence number of a ring file name, or -1.
func getFileIndex(name string) int {
	ext := filepath.Ext(name)
	withoutExt := strings.TrimSuffix(name, ext)

	parts := strings.Split(withoutExt, "_")
	if len(parts) < 3 {
		return -1
	}
	if _, err := time.Parse(stampLayout, parts[len(parts)-1]); err != nil {
		return -1
	}
	if i, err := strconv.Atoi(parts[len(parts)-2]); err == nil {
		return i
	}
	return -1
}

func withoutIndex(s string) string {
	ext := filepath.Ext(s)
	parts := strings.Split(strings.TrimSuffix(s, ext), "_")
	if len(parts) < 3 {
		return s
	}
	return strings.Join(parts[:len(parts)-2], "_") + ext
}

type sortByFileIndex []string

func (s sortByFileIndex) Len() int {
	return len(s)
}

func (s sortByFileIndex) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sortByFileIndex) Less(i, j int) bool {
	if withoutIndex(s[i]) == withoutIndex(s[j]) {
		return getFileIndex(s[i]) < getFileIndex(s[j])
	}

	return s[i] < s[j]
}

// RingFiles finds the files belonging to a ring based on path, oldest first.
func RingFiles(path string) ([]string, error) {
	ext := filepath.Ext(path)
	matches, err := filepath.Glob(strings.TrimSuffix(path, ext) + "_*" + ext)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		if getFileIndex(m) >= 0 && withoutIndex(m) == path {
			files = append(files, m)
		}
	}
	sort.Sort(sortByFileIndex(files))
	return files, nil
}

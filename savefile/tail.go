package savefile

import (
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// RecordFunc receives one record read from a capture file.
type RecordFunc func(ci gopacket.CaptureInfo, data []byte)

// Tail reads records from a file another process is still appending to.
type Tail struct {
	path  string
	file  *os.File
	r     *pcapgo.Reader
	count int64
}

func OpenTail(path string) (*Tail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "tail: open")
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "tail: %s header", path)
	}
	return &Tail{path: path, file: f, r: r}, nil
}

func (t *Tail) LinkType() layers.LinkType {
	return t.r.LinkType()
}

func (t *Tail) Path() string {
	return t.path
}

// Count is the number of records read so far.
func (t *Tail) Count() int64 {
	return t.count
}

// Read reads up to n records. Reaching the current end of the file early is
// not an error; the short count is returned.
func (t *Tail) Read(n int, fn RecordFunc) (int, error) {
	for i := 0; i < n; i++ {
		ok, err := t.next(fn)
		if err != nil || !ok {
			return i, err
		}
	}
	return n, nil
}

// Drain reads every complete record left in the file.
func (t *Tail) Drain(fn RecordFunc) (int, error) {
	var n int
	for {
		ok, err := t.next(fn)
		if err != nil || !ok {
			return n, err
		}
		n++
	}
}

func (t *Tail) next(fn RecordFunc) (bool, error) {
	data, ci, err := t.r.ReadPacketData()
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return false, nil
	case err != nil:
		return false, errors.Wrapf(err, "tail: %s record %d", t.path, t.count+1)
	}
	t.count++
	if fn != nil {
		fn(ci, data)
	}
	return true, nil
}

func (t *Tail) Close() error {
	return t.file.Close()
}

package savefile

import (
	"fmt"
)

type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindNoSpace
	KindQuota
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoSpace:
		return "no space left on device"
	case KindQuota:
		return "disk quota exceeded"
	default:
		return "i/o error"
	}
}

// FileError is a failure on the destination capture file.
type FileError struct {
	Op   string // create, write, flush, close, rotate
	Path string
	Kind ErrorKind
	Err  error
}

func (e *FileError) Error() string {
	if e.Kind == KindIO {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v (%v)", e.Op, e.Path, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func fileError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindIO
	switch {
	case isNoSpace(err):
		kind = KindNoSpace
	case isQuota(err):
		kind = KindQuota
	}
	return &FileError{Op: op, Path: path, Kind: kind, Err: err}
}

package capture

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnrecognizedFormat = errors.New("unrecognized pcap magic")
	ErrLegacyFormat       = errors.New("pcap format older than 2.0")
	ErrRecordTooLarge     = errors.New("record larger than the maximum supported size")
	// ErrStopped means the capture was stopped while waiting for its source.
	ErrStopped = errors.New("capture stopped before the source was ready")
)

type SourceErrorKind int

const (
	SourceOther SourceErrorKind = iota
	SourceNotFound
	SourcePermissionDenied
	SourceUnsupportedLinkType
	SourceUnrecognizedFormat
	SourceLegacyFormat
)

func (k SourceErrorKind) String() string {
	switch k {
	case SourceNotFound:
		return "not found"
	case SourcePermissionDenied:
		return "permission denied"
	case SourceUnsupportedLinkType:
		return "unsupported link type"
	case SourceUnrecognizedFormat:
		return "unrecognized format"
	case SourceLegacyFormat:
		return "legacy format"
	default:
		return "open failed"
	}
}

// SourceOpenError means the packet source could not be opened or negotiated.
type SourceOpenError struct {
	Source string
	Kind   SourceErrorKind
	Err    error
}

func (e *SourceOpenError) Error() string {
	return fmt.Sprintf("capture: source %q: %v: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceOpenError) Unwrap() error {
	return e.Err
}

// FilterError means the capture filter did not compile.
type FilterError struct {
	Filter string
	// LooksLikeDisplayFilter is a hint for the message only.
	LooksLikeDisplayFilter bool
	Err                    error
}

func (e *FilterError) Error() string {
	if e.LooksLikeDisplayFilter {
		return fmt.Sprintf("invalid capture filter %q: %v; it looks like a display filter, "+
			"which uses a different syntax", e.Filter, e.Err)
	}
	return fmt.Sprintf("invalid capture filter %q: %v", e.Filter, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// CaptureLibraryError is a failure of the packet source after it was opened.
type CaptureLibraryError struct {
	Source string
	Err    error
}

func (e *CaptureLibraryError) Error() string {
	return fmt.Sprintf("capture: reading %q: %v", e.Source, e.Err)
}

func (e *CaptureLibraryError) Unwrap() error {
	return e.Err
}

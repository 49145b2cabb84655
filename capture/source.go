package capture

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

type Readiness int

const (
	TimedOut Readiness = iota
	Ready
)

func (r Readiness) String() string {
	if r == Ready {
		return "ready"
	}
	return "timed-out"
}

// PollableSource can wait a bounded time for data.
type PollableSource interface {
	WaitReady(timeout time.Duration) (Readiness, error)
}

// RecordFunc handles one record. data is only valid during the call.
type RecordFunc func(ci gopacket.CaptureInfo, data []byte) error

// Stats are the source's packet counters, when it keeps any.
type Stats struct {
	Received  int
	Dropped   int
	IfDropped int
}

// PacketSource is where the dispatch loop reads records from.
type PacketSource interface {
	PollableSource

	Name() string
	LinkType() layers.LinkType
	SetLinkType(lt layers.LinkType) error
	SetFilter(expr string) error

	// ReadBatch reads at most max records that are available now. io.EOF
	// means the source has ended; an error from fn stops the batch and is
	// returned unchanged.
	ReadBatch(max int, fn RecordFunc) (int, error)

	Stats() (Stats, bool)
	Close() error
}

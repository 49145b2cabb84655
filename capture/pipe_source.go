package capture

import (
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	"github.com/vearne/capsync/consts"
	"github.com/vearne/capsync/util"
	slog "github.com/vearne/simplelog"
)

// PipeSource reads pcap records written to a FIFO or to stdin.
type PipeSource struct {
	name   string
	file   *os.File
	fd     uintptr
	reader *PipeReader
	bpf    *pcap.BPF
}

// OpenPipe opens name, a FIFO path or "-" for stdin, and reads its pcap header.
// While no writer has shown up it polls keepGoing every ReadyTimeout and gives
// up with ErrStopped once it returns false. A nil keepGoing waits forever.
func OpenPipe(name string, keepGoing func() bool) (*PipeSource, error) {
	var f *os.File
	if name == consts.StdinToken {
		f = os.Stdin
	} else {
		if !util.IsNamedPipe(name) {
			return nil, &SourceOpenError{Source: name, Kind: SourceNotFound,
				Err: errors.New("not an interface, FIFO, or stdin")}
		}
		var err error
		f, err = util.OpenFIFO(name)
		if err != nil {
			kind := SourceOther
			if os.IsPermission(err) {
				kind = SourcePermissionDenied
			}
			return nil, &SourceOpenError{Source: name, Kind: kind, Err: err}
		}
	}

	reader, err := NewPipeReader(&waitingReader{f: f, fd: f.Fd(), keepGoing: keepGoing})
	if err != nil {
		if name != consts.StdinToken {
			f.Close()
		}
		if errors.Is(err, ErrStopped) {
			return nil, ErrStopped
		}
		kind := SourceOther
		switch {
		case errors.Is(err, ErrUnrecognizedFormat):
			kind = SourceUnrecognizedFormat
		case errors.Is(err, ErrLegacyFormat):
			kind = SourceLegacyFormat
		}
		return nil, &SourceOpenError{Source: name, Kind: kind, Err: err}
	}
	reader.r = f
	slog.Debug("pipe source %s: link type %v, snaplen %d", name, reader.LinkType(), reader.SnapLen())
	return &PipeSource{name: name, file: f, fd: f.Fd(), reader: reader}, nil
}

// waitingReader reads only after the descriptor polls readable, checking
// keepGoing between polls.
type waitingReader struct {
	f         *os.File
	fd        uintptr
	keepGoing func() bool
}

func (w *waitingReader) Read(p []byte) (int, error) {
	for {
		if w.keepGoing != nil && !w.keepGoing() {
			return 0, ErrStopped
		}
		ready, err := util.PollReadable([]uintptr{w.fd}, consts.ReadyTimeout)
		if err != nil {
			return 0, err
		}
		if ready[0] {
			return w.f.Read(p)
		}
	}
}

func (s *PipeSource) Name() string {
	return s.name
}

func (s *PipeSource) LinkType() layers.LinkType {
	return s.reader.LinkType()
}

// SetLinkType accepts only the link type the stream already declares.
func (s *PipeSource) SetLinkType(lt layers.LinkType) error {
	if lt != s.reader.LinkType() {
		return errors.Errorf("pipe source has link type %v, cannot use %v", s.reader.LinkType(), lt)
	}
	return nil
}

// SetFilter compiles expr and applies it to each record in userspace.
func (s *PipeSource) SetFilter(expr string) error {
	snap := s.reader.SnapLen()
	if snap <= 0 {
		snap = consts.MaxRecordSize
	}
	bpf, err := pcap.NewBPF(s.reader.LinkType(), snap, expr)
	if err != nil {
		return err
	}
	s.bpf = bpf
	return nil
}

func (s *PipeSource) WaitReady(timeout time.Duration) (Readiness, error) {
	ready, err := util.PollReadable([]uintptr{s.fd}, timeout)
	if err != nil {
		return TimedOut, err
	}
	if ready[0] {
		return Ready, nil
	}
	return TimedOut, nil
}

// ReadBatch does one read, then keeps reading while more data is already waiting.
func (s *PipeSource) ReadBatch(max int, fn RecordFunc) (int, error) {
	var n int
	deliver := func(ci gopacket.CaptureInfo, data []byte) error {
		if s.bpf != nil && !s.bpf.Matches(ci, data) {
			return nil
		}
		n++
		return fn(ci, data)
	}
	for reads := 1; ; reads++ {
		if _, err := s.reader.Dispatch(deliver); err != nil {
			return n, err
		}
		if n >= max || reads >= 4*max {
			return n, nil
		}
		if r, err := s.WaitReady(0); err != nil || r != Ready {
			return n, nil
		}
	}
}

func (s *PipeSource) Stats() (Stats, bool) {
	return Stats{}, false
}

func (s *PipeSource) Close() error {
	if s.name == consts.StdinToken {
		return nil
	}
	return s.file.Close()
}

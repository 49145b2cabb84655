package capture

import (
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// LiveSource captures from a network interface through libpcap.
type LiveSource struct {
	name   string
	handle *pcap.Handle
}

// OpenLive activates a pcap handle on name. Reads on the handle return
// after timeout even when no packet arrived.
func OpenLive(name string, snapLen int, promisc bool, timeout time.Duration) (*LiveSource, error) {
	inactive, err := pcap.NewInactiveHandle(name)
	if err != nil {
		return nil, openError(name, errors.Errorf("inactive handle error: %q, interface: %q", err, name))
	}
	defer inactive.CleanUp()

	if err = inactive.SetPromisc(promisc); err != nil {
		return nil, openError(name, errors.Errorf("promiscuous mode error: %q, interface: %q", err, name))
	}
	if err = inactive.SetSnapLen(snapLen); err != nil {
		return nil, openError(name, errors.Errorf("snapshot length error: %q, interface: %q", err, name))
	}
	if err = inactive.SetTimeout(timeout); err != nil {
		return nil, openError(name, errors.Errorf("handle buffer timeout error: %q, interface: %q", err, name))
	}
	handle, err := inactive.Activate()
	if err != nil {
		return nil, openError(name, errors.Errorf("PCAP Activate device error: %q, interface: %q", err, name))
	}
	return &LiveSource{name: name, handle: handle}, nil
}

func openError(name string, err error) *SourceOpenError {
	msg := strings.ToLower(err.Error())
	kind := SourceOther
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "not permitted"):
		kind = SourcePermissionDenied
	case strings.Contains(msg, "no such device") || strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "no such file"):
		kind = SourceNotFound
	}
	return &SourceOpenError{Source: name, Kind: kind, Err: err}
}

func (s *LiveSource) Name() string {
	return s.name
}

func (s *LiveSource) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

func (s *LiveSource) SetLinkType(lt layers.LinkType) error {
	return s.handle.SetLinkType(lt)
}

func (s *LiveSource) SetFilter(expr string) error {
	return s.handle.SetBPFFilter(expr)
}

// WaitReady is always ready; the handle's read timeout bounds the wait instead.
func (s *LiveSource) WaitReady(timeout time.Duration) (Readiness, error) {
	return Ready, nil
}

func (s *LiveSource) ReadBatch(max int, fn RecordFunc) (int, error) {
	var n int
	for n < max {
		data, ci, err := s.handle.ReadPacketData()
		if err == nil {
			n++
			if err = fn(ci, data); err != nil {
				return n, err
			}
			continue
		}
		if enext, ok := err.(pcap.NextError); ok && enext == pcap.NextErrorTimeoutExpired {
			return n, nil
		}
		if eno, ok := err.(syscall.Errno); ok && eno.Temporary() {
			return n, nil
		}
		if err == io.EOF || err == pcap.NextErrorNoMorePackets {
			return n, io.EOF
		}
		return n, &CaptureLibraryError{Source: s.name, Err: err}
	}
	return n, nil
}

func (s *LiveSource) Stats() (Stats, bool) {
	st, err := s.handle.Stats()
	if err != nil {
		return Stats{}, false
	}
	return Stats{Received: st.PacketsReceived, Dropped: st.PacketsDropped, IfDropped: st.PacketsIfDropped}, true
}

func (s *LiveSource) Close() error {
	s.handle.Close()
	return nil
}

// Device is a capture interface as listed by -D.
type Device struct {
	Name        string
	Description string
	Addresses   []string
}

func ListDevices() ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, errors.Wrap(err, "capture: listing interfaces")
	}
	devices := make([]Device, 0, len(ifs))
	for _, ifi := range ifs {
		d := Device{Name: ifi.Name, Description: ifi.Description}
		for _, addr := range ifi.Addresses {
			d.Addresses = append(d.Addresses, addr.IP.String())
		}
		devices = append(devices, d)
	}
	return devices, nil
}

package capture

import (
	"encoding/binary"
	"io"
	"math/bits"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/vearne/capsync/consts"
)

const (
	magicMicros   = 0xa1b2c3d4
	magicNanos    = 0xa1b23c4d
	magicModified = 0xa1b2cd34

	pipeFileHeaderLen       = 24
	pipeRecordHeaderLen     = 16
	modifiedRecordHeaderLen = 24
)

type pipeFileHeader struct {
	order        binary.ByteOrder
	nanos        bool
	modified     bool
	versionMajor uint16
	versionMinor uint16
	snapLen      uint32
	linkType     layers.LinkType
}

type pipeRecordHeader struct {
	tsSec   uint32
	tsFrac  uint32
	capLen  uint32
	origLen uint32
	ifIndex uint32
}

// States of the record reader. Each partial read leaves the reader in one of
// the reading states with the byte count it has so far.
type pipeState interface {
	pipeState()
}

type expectHeader struct{}

type readingHeader struct {
	readSoFar int
}

type expectData struct {
	hdr pipeRecordHeader
}

type readingData struct {
	hdr       pipeRecordHeader
	readSoFar int
}

func (expectHeader) pipeState()  {}
func (readingHeader) pipeState() {}
func (expectData) pipeState()    {}
func (readingData) pipeState()   {}

// PipeReader parses pcap records from a byte stream one read at a time.
type PipeReader struct {
	r      io.Reader
	hdr    pipeFileHeader
	recLen int
	state  pipeState
	hbuf   [modifiedRecordHeaderLen]byte
	data   []byte
}

// NewPipeReader reads and checks the pcap file header from r.
func NewPipeReader(r io.Reader) (*PipeReader, error) {
	var buf [pipeFileHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:4]); err != nil {
		return nil, errors.Wrap(err, "reading pcap magic")
	}
	hdr, err := detectMagic(buf[:4])
	if err != nil {
		return nil, err
	}
	if _, err = io.ReadFull(r, buf[4:]); err != nil {
		return nil, errors.Wrap(err, "reading pcap file header")
	}
	hdr.versionMajor = hdr.order.Uint16(buf[4:6])
	hdr.versionMinor = hdr.order.Uint16(buf[6:8])
	hdr.snapLen = hdr.order.Uint32(buf[16:20])
	hdr.linkType = layers.LinkType(hdr.order.Uint32(buf[20:24]) & 0xffff)
	if hdr.versionMajor < 2 {
		return nil, errors.Wrapf(ErrLegacyFormat, "version %d.%d", hdr.versionMajor, hdr.versionMinor)
	}

	p := &PipeReader{r: r, hdr: hdr, recLen: pipeRecordHeaderLen, state: expectHeader{}}
	if hdr.modified {
		p.recLen = modifiedRecordHeaderLen
	}
	return p, nil
}

func detectMagic(b []byte) (pipeFileHeader, error) {
	var hdr pipeFileHeader
	m := binary.LittleEndian.Uint32(b)
	hdr.order = binary.LittleEndian
	if !knownMagic(m) {
		m = bits.ReverseBytes32(m)
		hdr.order = binary.BigEndian
	}
	if !knownMagic(m) {
		return hdr, errors.Wrapf(ErrUnrecognizedFormat, "magic % x", b)
	}
	hdr.nanos = m == magicNanos
	hdr.modified = m == magicModified
	return hdr, nil
}

func knownMagic(m uint32) bool {
	return m == magicMicros || m == magicNanos || m == magicModified
}

func (p *PipeReader) LinkType() layers.LinkType {
	return p.hdr.linkType
}

func (p *PipeReader) SnapLen() int {
	return int(p.hdr.snapLen)
}

// Dispatch performs at most one read on the stream and advances the state
// machine. It reports whether a complete record was handed to fn. io.EOF is
// returned only when the stream ends between records.
func (p *PipeReader) Dispatch(fn RecordFunc) (bool, error) {
	for {
		switch s := p.state.(type) {
		case expectHeader:
			p.state = readingHeader{}

		case readingHeader:
			n, err := p.r.Read(p.hbuf[s.readSoFar:p.recLen])
			s.readSoFar += n
			if s.readSoFar < p.recLen {
				p.state = s
				return false, p.readErr(err, s.readSoFar)
			}
			hdr, err := p.parseRecordHeader(p.hbuf[:p.recLen])
			if err != nil {
				return false, err
			}
			p.state = expectData{hdr: hdr}
			if hdr.capLen > 0 {
				return false, nil
			}

		case expectData:
			if cap(p.data) < int(s.hdr.capLen) {
				p.data = make([]byte, s.hdr.capLen)
			}
			p.state = readingData{hdr: s.hdr}

		case readingData:
			total := int(s.hdr.capLen)
			if s.readSoFar < total {
				n, err := p.r.Read(p.data[s.readSoFar:total])
				s.readSoFar += n
				if s.readSoFar < total {
					p.state = s
					return false, p.readErr(err, s.readSoFar)
				}
			}
			p.state = expectHeader{}
			return true, fn(p.captureInfo(s.hdr), p.data[:total])
		}
	}
}

func (p *PipeReader) readErr(err error, readSoFar int) error {
	if err == io.EOF {
		if _, ok := p.state.(readingHeader); ok && readSoFar == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}
	return err
}

func (p *PipeReader) parseRecordHeader(b []byte) (pipeRecordHeader, error) {
	o := p.hdr.order
	hdr := pipeRecordHeader{
		tsSec:   o.Uint32(b[0:4]),
		tsFrac:  o.Uint32(b[4:8]),
		capLen:  o.Uint32(b[8:12]),
		origLen: o.Uint32(b[12:16]),
	}
	if p.hdr.modified {
		hdr.ifIndex = o.Uint32(b[16:20])
	}
	fixLengthQuirk(p.hdr.versionMajor, p.hdr.versionMinor, &hdr)
	if hdr.capLen > consts.MaxRecordSize {
		return hdr, errors.Wrapf(ErrRecordTooLarge, "%d bytes", hdr.capLen)
	}
	return hdr, nil
}

// fixLengthQuirk undoes the swapped length fields written by pcap
// versions before 2.3, and by some 2.3 writers.
func fixLengthQuirk(major, minor uint16, hdr *pipeRecordHeader) {
	if major != 2 {
		return
	}
	if minor < 3 || (minor == 3 && hdr.capLen > hdr.origLen) {
		hdr.capLen, hdr.origLen = hdr.origLen, hdr.capLen
	}
}

func (p *PipeReader) captureInfo(hdr pipeRecordHeader) gopacket.CaptureInfo {
	ns := int64(hdr.tsFrac) * 1000
	if p.hdr.nanos {
		ns = int64(hdr.tsFrac)
	}
	return gopacket.CaptureInfo{
		Timestamp:      time.Unix(int64(hdr.tsSec), ns),
		CaptureLength:  int(hdr.capLen),
		Length:         int(hdr.origLen),
		InterfaceIndex: int(hdr.ifIndex),
	}
}

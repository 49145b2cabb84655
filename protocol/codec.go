package protocol

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vearne/capsync/consts"
)

const (
	HeaderLen = 4

	// MaxLength is the largest value the 3-byte length field can hold.
	MaxLength = 1<<24 - 1
)

// Encode frames m for the control pipe.
func Encode(m Message) ([]byte, error) {
	if embedsNUL(m) {
		return nil, errors.Wrapf(ErrMalformed, "%c: embedded NUL", m.Indicator())
	}
	p := m.payload()
	if len(p) > consts.MaxControlPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%c: %d bytes", m.Indicator(), len(p))
	}
	buf := make([]byte, HeaderLen+len(p))
	putHeader(buf, m.Indicator(), len(p))
	copy(buf[HeaderLen:], p)
	return buf, nil
}

// embedsNUL reports a string field the receiver would cut short.
func embedsNUL(m Message) bool {
	switch msg := m.(type) {
	case NewFile:
		return strings.IndexByte(msg.Path, 0) >= 0
	case BadFilter:
		return strings.IndexByte(msg.Text, 0) >= 0
	case ErrorMessage:
		return strings.IndexByte(msg.Primary, 0) >= 0 || strings.IndexByte(msg.Secondary, 0) >= 0
	}
	return false
}

func putHeader(b []byte, indicator byte, n int) {
	b[0] = indicator
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

// ParseHeader validates a 4-byte header and returns the indicator and payload length.
func ParseHeader(hdr []byte) (byte, int, error) {
	if len(hdr) < HeaderLen {
		return 0, 0, ErrPartialHeader
	}
	ind := hdr[0]
	if ind >= '0' && ind <= '9' {
		return ind, 0, errors.Wrapf(ErrUnexpectedIndicator,
			"digit %q looks like legacy length framing", ind)
	}
	if !knownIndicator(ind) {
		return ind, 0, errors.Wrapf(ErrUnexpectedIndicator, "indicator 0x%02x", ind)
	}
	n := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	return ind, n, nil
}

func knownIndicator(b byte) bool {
	switch b {
	case IndicatorCaptureStarted, IndicatorNewPackets, IndicatorDrops,
		IndicatorNewFile, IndicatorBadFilter, IndicatorError:
		return true
	}
	return false
}

// Decode reads one message from r using buf for the payload.
// It returns io.EOF when the stream ends cleanly at a message boundary.
func Decode(r io.Reader, buf []byte) (Message, error) {
	var hdr [HeaderLen]byte
	n, err := io.ReadFull(r, hdr[:])
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		return nil, errors.Wrapf(ErrPartialHeader, "got %d of %d bytes", n, HeaderLen)
	case err != nil:
		return nil, err
	}
	ind, length, err := ParseHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	if length > len(buf) || length > consts.MaxControlPayload {
		return nil, errors.Wrapf(ErrMessageTooLarge, "%c: length %d, buffer %d", ind, length, len(buf))
	}
	if _, err = io.ReadFull(r, buf[:length]); err != nil {
		return nil, errors.Wrapf(ErrPartialPayload, "%c: %v", ind, err)
	}
	return parsePayload(ind, buf[:length])
}

// Split decodes complete frames from the front of data and reports how many
// bytes were consumed. A trailing incomplete frame is left unconsumed.
func Split(data []byte) ([]Message, int, error) {
	var msgs []Message
	off := 0
	for len(data)-off >= HeaderLen {
		ind, length, err := ParseHeader(data[off:])
		if err != nil {
			return msgs, off, err
		}
		if length > consts.MaxControlPayload {
			return msgs, off, errors.Wrapf(ErrMessageTooLarge, "%c: length %d", ind, length)
		}
		if len(data)-off < HeaderLen+length {
			break
		}
		m, err := parsePayload(ind, data[off+HeaderLen:off+HeaderLen+length])
		if err != nil {
			return msgs, off, err
		}
		msgs = append(msgs, m)
		off += HeaderLen + length
	}
	return msgs, off, nil
}

func parsePayload(ind byte, p []byte) (Message, error) {
	switch ind {
	case IndicatorCaptureStarted:
		if len(p) != 0 {
			return nil, errors.Wrapf(ErrMalformed, "%c: unexpected payload", ind)
		}
		return CaptureStarted{}, nil
	case IndicatorNewPackets, IndicatorDrops:
		s, rest, err := readCString(p)
		if err != nil || len(rest) != 0 {
			return nil, errors.Wrapf(ErrMalformed, "%c: count payload", ind)
		}
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%c: %v", ind, err)
		}
		if ind == IndicatorDrops {
			return Drops{Count: uint32(n)}, nil
		}
		return NewPackets{Count: uint32(n)}, nil
	case IndicatorNewFile, IndicatorBadFilter:
		s, rest, err := readCString(p)
		if err != nil || len(rest) != 0 {
			return nil, errors.Wrapf(ErrMalformed, "%c: string payload", ind)
		}
		if ind == IndicatorNewFile {
			return NewFile{Path: s}, nil
		}
		return BadFilter{Text: s}, nil
	case IndicatorError:
		primary, rest, err := readCString(p)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%c: primary text", ind)
		}
		secondary, rest, err := readCString(rest)
		if err != nil || len(rest) != 0 {
			return nil, errors.Wrapf(ErrMalformed, "%c: secondary text", ind)
		}
		return ErrorMessage{Primary: primary, Secondary: secondary}, nil
	}
	return nil, errors.Wrapf(ErrUnexpectedIndicator, "indicator 0x%02x", ind)
}

func readCString(p []byte) (string, []byte, error) {
	i := bytes.IndexByte(p, 0)
	if i < 0 {
		return "", nil, ErrMalformed
	}
	return string(p[:i]), p[i+1:], nil
}

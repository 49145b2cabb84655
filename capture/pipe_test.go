package capture

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns at most n bytes per Read.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func writeStream(t *testing.T, count int) []byte {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.Nil(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i := 0; i < count; i++ {
		data := bytes.Repeat([]byte{byte(i)}, 40+i)
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(100, int64(i)*1000), CaptureLength: len(data), Length: len(data)}
		require.Nil(t, w.WritePacket(ci, data))
	}
	return buf.Bytes()
}

type rec struct {
	ci   gopacket.CaptureInfo
	data []byte
}

func drain(t *testing.T, p *PipeReader) ([]rec, error) {
	var got []rec
	for i := 0; i < 10000; i++ {
		_, err := p.Dispatch(func(ci gopacket.CaptureInfo, data []byte) error {
			got = append(got, rec{ci: ci, data: append([]byte(nil), data...)})
			return nil
		})
		if err != nil {
			return got, err
		}
	}
	t.Fatal("reader never finished")
	return got, nil
}

func TestPipeReaderPartialReads(t *testing.T) {
	stream := writeStream(t, 5)
	for _, chunk := range []int{1, 3, 7, 16, 1 << 16} {
		p, err := NewPipeReader(&chunkReader{r: bytes.NewReader(stream), n: chunk})
		require.Nil(t, err)
		assert.Equal(t, layers.LinkTypeEthernet, p.LinkType())
		assert.Equal(t, 65535, p.SnapLen())

		got, err := drain(t, p)
		assert.Equal(t, io.EOF, err, "chunk %d", chunk)
		require.Len(t, got, 5)
		for i, r := range got {
			assert.Equal(t, 40+i, len(r.data))
			assert.Equal(t, byte(i), r.data[0])
			assert.Equal(t, time.Unix(100, int64(i)*1000), r.ci.Timestamp)
		}
	}
}

func TestPipeReaderOneReadPerDispatch(t *testing.T) {
	stream := writeStream(t, 1)
	p, err := NewPipeReader(bytes.NewReader(stream))
	require.Nil(t, err)

	delivered, err := p.Dispatch(func(gopacket.CaptureInfo, []byte) error { return nil })
	assert.Nil(t, err)
	assert.False(t, delivered)
	_, ok := p.state.(expectData)
	assert.True(t, ok)

	delivered, err = p.Dispatch(func(gopacket.CaptureInfo, []byte) error { return nil })
	assert.Nil(t, err)
	assert.True(t, delivered)
	_, ok = p.state.(expectHeader)
	assert.True(t, ok)
}

type rawRecord struct {
	sec, frac, capLen, origLen uint32
	data                       []byte
}

func rawStream(order binary.ByteOrder, magic uint32, major, minor uint16, lt uint32, modified bool, recs ...rawRecord) []byte {
	var buf bytes.Buffer
	w := func(v interface{}) { _ = binary.Write(&buf, order, v) }
	w(magic)
	w(major)
	w(minor)
	w(int32(0))
	w(uint32(0))
	w(uint32(65535))
	w(lt)
	for _, r := range recs {
		w(r.sec)
		w(r.frac)
		w(r.capLen)
		w(r.origLen)
		if modified {
			w(uint32(7))
			w(uint16(0x0800))
			w(uint8(0))
			w(uint8(0))
		}
		buf.Write(r.data)
	}
	return buf.Bytes()
}

func TestPipeReaderBigEndianNanos(t *testing.T) {
	stream := rawStream(binary.BigEndian, magicNanos, 2, 4, 1, false,
		rawRecord{sec: 5, frac: 123456789, capLen: 4, origLen: 9, data: []byte{1, 2, 3, 4}})
	p, err := NewPipeReader(bytes.NewReader(stream))
	require.Nil(t, err)
	got, err := drain(t, p)
	assert.Equal(t, io.EOF, err)
	require.Len(t, got, 1)
	assert.Equal(t, time.Unix(5, 123456789), got[0].ci.Timestamp)
	assert.Equal(t, 4, got[0].ci.CaptureLength)
	assert.Equal(t, 9, got[0].ci.Length)
	assert.Equal(t, []byte{1, 2, 3, 4}, got[0].data)
}

func TestPipeReaderModifiedHeader(t *testing.T) {
	stream := rawStream(binary.LittleEndian, magicModified, 2, 4, 1, true,
		rawRecord{sec: 1, frac: 2, capLen: 3, origLen: 3, data: []byte{9, 9, 9}},
		rawRecord{sec: 1, frac: 3, capLen: 0, origLen: 60})
	p, err := NewPipeReader(bytes.NewReader(stream))
	require.Nil(t, err)
	got, err := drain(t, p)
	assert.Equal(t, io.EOF, err)
	require.Len(t, got, 2)
	assert.Equal(t, 7, got[0].ci.InterfaceIndex)
	assert.Equal(t, time.Unix(1, 2000), got[0].ci.Timestamp)
	assert.Equal(t, 0, len(got[1].data))
}

func TestPipeReaderSwappedLengthQuirk(t *testing.T) {
	data := bytes.Repeat([]byte{0xaa}, 60)
	stream := rawStream(binary.LittleEndian, magicMicros, 2, 3, 1, false,
		rawRecord{capLen: 100, origLen: 60, data: data},
		rawRecord{capLen: 60, origLen: 100, data: data})
	p, err := NewPipeReader(bytes.NewReader(stream))
	require.Nil(t, err)
	got, err := drain(t, p)
	assert.Equal(t, io.EOF, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, 60, r.ci.CaptureLength)
		assert.Equal(t, 100, r.ci.Length)
		assert.LessOrEqual(t, r.ci.CaptureLength, r.ci.Length)
	}

	hdr := pipeRecordHeader{capLen: 10, origLen: 20}
	fixLengthQuirk(2, 2, &hdr)
	assert.Equal(t, uint32(20), hdr.capLen)
	fixLengthQuirk(2, 4, &hdr)
	assert.Equal(t, uint32(20), hdr.capLen)
}

func TestPipeReaderErrors(t *testing.T) {
	_, err := NewPipeReader(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}))
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)

	_, err = NewPipeReader(bytes.NewReader(rawStream(binary.LittleEndian, magicMicros, 1, 0, 1, false)))
	assert.ErrorIs(t, err, ErrLegacyFormat)

	_, err = NewPipeReader(bytes.NewReader([]byte{0xd4, 0xc3}))
	assert.NotNil(t, err)

	stream := rawStream(binary.LittleEndian, magicMicros, 2, 4, 1, false,
		rawRecord{capLen: 262145, origLen: 262145})
	p, err := NewPipeReader(bytes.NewReader(stream))
	require.Nil(t, err)
	_, err = drain(t, p)
	assert.ErrorIs(t, err, ErrRecordTooLarge)

	stream = writeStream(t, 2)
	p, err = NewPipeReader(bytes.NewReader(stream[:len(stream)-5]))
	require.Nil(t, err)
	got, err := drain(t, p)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Len(t, got, 1)
}

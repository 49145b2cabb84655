package savefile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	slog "github.com/vearne/simplelog"
)

func record(i int) (gopacket.CaptureInfo, []byte) {
	data := make([]byte, 60+i)
	for j := range data {
		data[j] = byte(i)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(1700000000, int64(i)*1000),
		CaptureLength: len(data),
		Length:        len(data) + 10,
	}
	return ci, data
}

func TestWriteThenTail(t *testing.T) {
	slog.SetLevel(slog.DebugLevel)
	path := filepath.Join(t.TempDir(), "out.pcap")

	w, err := Create(path, layers.LinkTypeEthernet, 65535)
	require.Nil(t, err)
	assert.Equal(t, int64(24), w.Bytes())

	tail, err := OpenTail(path)
	require.Nil(t, err)
	defer tail.Close()
	assert.Equal(t, layers.LinkTypeEthernet, tail.LinkType())

	n, err := tail.Read(5, nil)
	assert.Nil(t, err)
	assert.Equal(t, 0, n)

	for i := 0; i < 4; i++ {
		ci, data := record(i)
		assert.Nil(t, w.Append(ci, data))
	}
	assert.Nil(t, w.Flush())

	var lens []int
	n, err = tail.Read(3, func(ci gopacket.CaptureInfo, data []byte) {
		lens = append(lens, len(data))
		assert.Equal(t, ci.CaptureLength+10, ci.Length)
	})
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{60, 61, 62}, lens)

	ci, data := record(4)
	assert.Nil(t, w.Append(ci, data))
	assert.Nil(t, w.Close())

	n, err = tail.Drain(nil)
	assert.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(5), tail.Count())

	info, err := os.Stat(path)
	assert.Nil(t, err)
	assert.Equal(t, info.Size(), w.Bytes())
	assert.Equal(t, int64(5), w.Packets())

	_, err = w.Rotate()
	assert.ErrorIs(t, err, ErrNoRing)
}

func TestRingRotation(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "ring.pcap")

	r, err := NewRing(base, 2, layers.LinkTypeRaw, 1500)
	require.Nil(t, err)
	first := r.Path()
	assert.Equal(t, 1, getFileIndex(first))

	ci, data := record(1)
	assert.Nil(t, r.Append(ci, data))
	assert.Equal(t, int64(24+16+61), r.Bytes())

	second, err := r.Rotate()
	assert.Nil(t, err)
	assert.Equal(t, 2, getFileIndex(second))
	assert.Equal(t, int64(24), r.Bytes())

	third, err := r.Rotate()
	assert.Nil(t, err)
	assert.Nil(t, r.Close())

	assert.Equal(t, []string{second, third}, r.Files())
	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err))

	files, err := RingFiles(base)
	assert.Nil(t, err)
	assert.Equal(t, []string{second, third}, files)
}

func TestRingContinuesEarlierCapture(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "ring.pcap")
	clock := func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }

	old, err := newRing(base, 0, layers.LinkTypeRaw, 1500, clock)
	require.Nil(t, err)
	_, err = old.Rotate()
	require.Nil(t, err)
	_, err = old.Rotate()
	require.Nil(t, err)
	require.Nil(t, old.Close())
	earlier := old.Files()
	require.Len(t, earlier, 3)

	// not part of the ring
	stranger := filepath.Join(dir, "ring_notes.pcap")
	require.Nil(t, os.WriteFile(stranger, nil, 0600))

	r, err := newRing(base, 2, layers.LinkTypeRaw, 1500, clock)
	require.Nil(t, err)
	defer r.Close()
	assert.Equal(t, 4, getFileIndex(r.Path()))
	assert.Equal(t, []string{earlier[2], r.Path()}, r.Files())
	for _, gone := range earlier[:2] {
		_, err = os.Stat(gone)
		assert.True(t, os.IsNotExist(err), gone)
	}
	_, err = os.Stat(stranger)
	assert.Nil(t, err)
}

func TestRingFileNames(t *testing.T) {
	stamp := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	name := ringFileName("/var/cap/my_trace.pcap", 12, stamp)
	assert.Equal(t, "/var/cap/my_trace_00012_20261019083000.pcap", name)
	assert.Equal(t, 12, getFileIndex(name))
	assert.Equal(t, "/var/cap/my_trace.pcap", withoutIndex(name))

	assert.Equal(t, -1, getFileIndex("/var/cap/trace.pcap"))
	assert.Equal(t, -1, getFileIndex("/var/cap/a_b_c.pcap"))
}

func TestOpenTailMissingFile(t *testing.T) {
	_, err := OpenTail(filepath.Join(t.TempDir(), "none.pcap"))
	assert.NotNil(t, err)
}

// Package savefile reads and writes the pcap files a capture session shares
// between the worker and the controller.
package savefile

import (
	"bufio"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	fileHeaderLen   = 24
	recordHeaderLen = 16
)

// Writer appends records to one pcap file.
type Writer struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	w       *pcapgo.Writer
	bytes   int64
	packets int64
}

// Create truncates path and writes the pcap file header. The header is
// flushed so a reader can open the file right away.
func Create(path string, linkType layers.LinkType, snapLen int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fileError("create", path, err)
	}
	o := &Writer{path: path, file: f, buf: bufio.NewWriterSize(f, 64<<10)}
	o.w = pcapgo.NewWriter(o.buf)
	if err = o.w.WriteFileHeader(uint32(snapLen), linkType); err == nil {
		err = o.buf.Flush()
	}
	if err != nil {
		f.Close()
		return nil, fileError("create", path, err)
	}
	o.bytes = fileHeaderLen
	return o, nil
}

func (o *Writer) Append(ci gopacket.CaptureInfo, data []byte) error {
	if err := o.w.WritePacket(ci, data); err != nil {
		return fileError("write", o.path, err)
	}
	o.bytes += int64(recordHeaderLen + len(data))
	o.packets++
	return nil
}

func (o *Writer) Flush() error {
	return fileError("flush", o.path, o.buf.Flush())
}

// Close flushes and closes the file; the first error wins.
func (o *Writer) Close() error {
	err := o.buf.Flush()
	if cerr := o.file.Close(); err == nil {
		err = cerr
	}
	return fileError("close", o.path, err)
}

// Bytes is the size of the file including data still buffered.
func (o *Writer) Bytes() int64 {
	return o.bytes
}

func (o *Writer) Packets() int64 {
	return o.packets
}

func (o *Writer) Path() string {
	return o.path
}

// Rotate is unsupported on a single file.
func (o *Writer) Rotate() (string, error) {
	return "", ErrNoRing
}

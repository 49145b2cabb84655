// Package protocol 定义 worker 与 controller 之间控制管道上的消息及其编解码。
// 每条消息: 1 字节指示符 + 3 字节大端长度 + payload (<= 4096 字节)。
package protocol

import "fmt"

// Message indicators. None of them is an ASCII digit.
const (
	IndicatorCaptureStarted byte = 'S'
	IndicatorNewPackets     byte = 'P'
	IndicatorDrops          byte = 'D'
	IndicatorNewFile        byte = 'F'
	IndicatorBadFilter      byte = 'B'
	IndicatorError          byte = 'E'
)

// Message is one control message sent from the worker to the controller.
type Message interface {
	Indicator() byte
	payload() []byte
}

// CaptureStarted tells the controller the destination file is ready to tail.
type CaptureStarted struct{}

// NewPackets announces Count more records appended to the current file.
type NewPackets struct {
	Count uint32
}

// Drops reports the number of packets dropped by the capture source.
type Drops struct {
	Count uint32
}

// NewFile names the file the worker is now writing to.
type NewFile struct {
	Path string
}

// BadFilter carries the reason a capture filter was rejected.
type BadFilter struct {
	Text string
}

// ErrorMessage is a fatal worker error with an optional detail line.
type ErrorMessage struct {
	Primary   string
	Secondary string
}

func (CaptureStarted) Indicator() byte { return IndicatorCaptureStarted }
func (NewPackets) Indicator() byte     { return IndicatorNewPackets }
func (Drops) Indicator() byte          { return IndicatorDrops }
func (NewFile) Indicator() byte        { return IndicatorNewFile }
func (BadFilter) Indicator() byte      { return IndicatorBadFilter }
func (ErrorMessage) Indicator() byte   { return IndicatorError }

func (CaptureStarted) payload() []byte { return nil }
func (m NewPackets) payload() []byte   { return cstring(fmt.Sprint(m.Count)) }
func (m Drops) payload() []byte        { return cstring(fmt.Sprint(m.Count)) }
func (m NewFile) payload() []byte      { return cstring(m.Path) }
func (m BadFilter) payload() []byte    { return cstring(m.Text) }
func (m ErrorMessage) payload() []byte {
	return append(cstring(m.Primary), cstring(m.Secondary)...)
}

func (CaptureStarted) String() string { return "CaptureStarted" }
func (m NewPackets) String() string   { return fmt.Sprintf("NewPackets(%d)", m.Count) }
func (m Drops) String() string        { return fmt.Sprintf("Drops(%d)", m.Count) }
func (m NewFile) String() string      { return fmt.Sprintf("NewFile(%q)", m.Path) }
func (m BadFilter) String() string    { return fmt.Sprintf("BadFilter(%q)", m.Text) }
func (m ErrorMessage) String() string {
	return fmt.Sprintf("ErrorMessage(%q, %q)", m.Primary, m.Secondary)
}

func cstring(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

package session

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/vearne/capsync/launcher"
	slog "github.com/vearne/simplelog"
)

// Dissector receives every record tailed from the capture file.
type Dissector interface {
	Packet(ci gopacket.CaptureInfo, data []byte, lt layers.LinkType)
}

type DissectorFunc func(ci gopacket.CaptureInfo, data []byte, lt layers.LinkType)

func (f DissectorFunc) Packet(ci gopacket.CaptureInfo, data []byte, lt layers.LinkType) {
	f(ci, data, lt)
}

// SummaryPrinter writes one line per packet.
type SummaryPrinter struct {
	W     io.Writer
	count int
}

func (p *SummaryPrinter) Packet(ci gopacket.CaptureInfo, data []byte, lt layers.LinkType) {
	p.count++
	pkt := gopacket.NewPacket(data, lt, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	var names []string
	for _, l := range pkt.Layers() {
		if l.LayerType() == gopacket.LayerTypePayload || l.LayerType() == gopacket.LayerTypeDecodeFailure {
			continue
		}
		names = append(names, l.LayerType().String())
	}
	summary := strings.Join(names, "/")
	if nl := pkt.NetworkLayer(); nl != nil {
		summary += fmt.Sprintf(" %v -> %v", nl.NetworkFlow().Src(), nl.NetworkFlow().Dst())
	}
	fmt.Fprintf(p.W, "%6d %s %5d %s\n", p.count, ci.Timestamp.Format("15:04:05.000000"), ci.Length, summary)
}

// Reporter is told about session events worth showing to the user.
type Reporter interface {
	CaptureStarted(path string)
	Drops(count uint32)
	Error(primary, secondary string)
	Finished(state string, status launcher.ExitStatus, err error)
}

// LogReporter reports through the logger.
type LogReporter struct{}

func (LogReporter) CaptureStarted(path string) {
	slog.Info("capture started, file:%v", path)
}

func (LogReporter) Drops(count uint32) {
	slog.Warn("%d packets dropped", count)
}

func (LogReporter) Error(primary, secondary string) {
	if secondary != "" {
		slog.Error("%s: %s", primary, secondary)
		return
	}
	slog.Error("%s", primary)
}

func (LogReporter) Finished(state string, status launcher.ExitStatus, err error) {
	if err != nil {
		slog.Error("capture %s, worker %v: %v", state, status, err)
		return
	}
	slog.Info("capture %s, worker %v", state, status)
}

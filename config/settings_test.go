package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/vearne/capsync/consts"
)

func parse(t *testing.T, args []string) *Settings {
	var s Settings
	fs := pflag.NewFlagSet("capsync", pflag.ContinueOnError)
	s.BindFlags(fs)
	assert.Nil(t, fs.Parse(args))
	assert.Nil(t, s.Finish())
	return &s
}

func TestParseFlags(t *testing.T) {
	s := parse(t, []string{"-i", "eth0", "-s", "96", "-c", "10",
		"-a", "filesize:10mb", "-a", "duration:2", "-a", "files:3",
		"-b", "filesize:1kb", "-b", "files:5", "-p", "-f", "tcp port 80", "-w", "/tmp/out.pcap"})

	o := s.Options
	assert.Equal(t, "eth0", o.Interface)
	assert.Equal(t, 96, o.SnapLen)
	assert.Equal(t, 10, o.Autostop.Packets)
	assert.Equal(t, int64(10<<20), int64(o.Autostop.FileSize))
	assert.Equal(t, 2*time.Second, o.Autostop.Duration)
	assert.Equal(t, 3, o.Autostop.Files)
	assert.True(t, o.Ring.Enabled)
	assert.Equal(t, int64(1024), int64(o.Ring.FileSize))
	assert.Equal(t, 5, o.Ring.NumFiles)
	assert.False(t, o.Promiscuous)
	assert.Equal(t, "tcp port 80", o.Filter)
	assert.Equal(t, "/tmp/out.pcap", o.SavePath)
	assert.False(t, s.IsChild())
	assert.Nil(t, o.Validate())
}

func TestWorkerArgsRoundTrip(t *testing.T) {
	in := CaptureOptions{
		Interface:   "/tmp/fifo",
		Filter:      "udp",
		SnapLen:     1500,
		Promiscuous: true,
		LinkType:    "EN10MB",
		Autostop:    Autostop{Packets: 7, Duration: 1500 * time.Millisecond, Files: 2},
		Ring:        RingBuffer{Enabled: true, FileSize: 4096, Duration: time.Minute, NumFiles: 3},
		SavePath:    "/tmp/ring.pcap",
	}
	args := WorkerArgs(&in)
	assert.Equal(t, []string{"-Z", "3"}, args[len(args)-2:])

	s := parse(t, args)
	assert.True(t, s.IsChild())
	assert.Equal(t, 3, s.ChildFD)
	assert.Equal(t, in, s.Options)
}

func TestWorkerArgsMinimal(t *testing.T) {
	args := WorkerArgs(&CaptureOptions{Interface: "lo", SavePath: "/tmp/a.pcap"})
	assert.Equal(t, []string{"-i", "lo", "-p", "-w", "/tmp/a.pcap", "-Z", "3"}, args)
}

func TestParseErrors(t *testing.T) {
	var o CaptureOptions
	assert.NotNil(t, o.ParseAutostop("filesize"))
	assert.NotNil(t, o.ParseAutostop("bogus:1"))
	assert.NotNil(t, o.ParseAutostop("duration:-1"))
	assert.NotNil(t, o.ParseAutostop("filesize:ten"))
	assert.NotNil(t, o.ParseRingBuffer("files:0"))
	assert.Nil(t, o.ParseAutostop("duration:90s"))
	assert.Equal(t, 90*time.Second, o.Autostop.Duration)
}

func TestValidate(t *testing.T) {
	o := CaptureOptions{}
	assert.NotNil(t, o.Validate())

	o = CaptureOptions{Interface: "eth0", Ring: RingBuffer{Enabled: true, FileSize: 10}}
	assert.NotNil(t, o.Validate())

	o.SavePath = "/tmp/x.pcap"
	assert.Nil(t, o.Validate())
	assert.Greater(t, o.SnapLen, 0)

	o = CaptureOptions{Interface: "eth0", Autostop: Autostop{Files: 2}}
	assert.NotNil(t, o.Validate())
}

func TestFinishValidatesWorker(t *testing.T) {
	// a worker started without -s still writes a usable snap length
	s := parse(t, WorkerArgs(&CaptureOptions{Interface: "lo", SavePath: "/tmp/a.pcap"}))
	assert.True(t, s.IsChild())
	assert.Equal(t, consts.DefaultSnapLen, s.Options.SnapLen)

	var bad Settings
	fs := pflag.NewFlagSet("capsync", pflag.ContinueOnError)
	bad.BindFlags(fs)
	assert.Nil(t, fs.Parse([]string{"-i", "lo", "-b", "files:2", "-w", "/tmp/r.pcap", "-Z", "3"}))
	assert.NotNil(t, bad.Finish())
}

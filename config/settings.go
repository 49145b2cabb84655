// Package config 包含 capsync 的配置管理相关功能。
// 该包定义了抓包会话的配置结构、命令行参数绑定以及 worker 进程的参数构造。
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/buger/goreplay/size"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/vearne/capsync/consts"
)

// MultiStringOption 实现了可以接受多个值的字符串命令行参数。
// 例如：-a filesize:10mb -a duration:60
type MultiStringOption struct {
	Params *[]string // 指向存储所有参数值的切片的指针
}

func (h *MultiStringOption) String() string {
	if h.Params == nil {
		return ""
	}
	return fmt.Sprint(*h.Params)
}

// Set gets called multiple times for each flag with same name
func (h *MultiStringOption) Set(value string) error {
	if h.Params == nil {
		return nil
	}

	*h.Params = append(*h.Params, value)
	return nil
}

func (h *MultiStringOption) Type() string {
	return "kind:value"
}

// Autostop thresholds that end the whole capture. Zero means unset.
type Autostop struct {
	Packets  int
	FileSize size.Size
	Duration time.Duration
	// Files is the rotation budget: the ring rotates at most Files times.
	Files int
}

// RingBuffer controls rotation of the destination across several files.
type RingBuffer struct {
	Enabled  bool
	FileSize size.Size
	Duration time.Duration
	// NumFiles is how many files are kept on disk; 0 keeps all of them.
	NumFiles int
}

// CaptureOptions 描述一次抓包会话，会话开始后只读。
type CaptureOptions struct {
	Interface   string
	Filter      string
	SnapLen     int
	Promiscuous bool
	// LinkType is a DLT name or number; empty keeps the source default.
	LinkType  string
	Autostop  Autostop
	Ring      RingBuffer
	SavePath  string
	Temporary bool
}

// Validate fills defaults and rejects combinations the capture cannot run.
func (o *CaptureOptions) Validate() error {
	if o.Interface == "" {
		return errors.New("config: no capture interface given")
	}
	if o.SnapLen <= 0 {
		o.SnapLen = consts.DefaultSnapLen
	}
	if o.Ring.Enabled && (o.SavePath == "" || o.Temporary) {
		return errors.New("config: ring buffer requires an output file (-w)")
	}
	if o.Ring.Enabled && o.Ring.FileSize == 0 && o.Ring.Duration == 0 {
		return errors.New("config: ring buffer needs filesize or duration")
	}
	if o.Autostop.Files > 0 && !o.Ring.Enabled {
		return errors.New("config: files autostop only applies to a ring buffer")
	}
	return nil
}

// ParseAutostop applies one "-a kind:value" argument.
func (o *CaptureOptions) ParseAutostop(arg string) error {
	kind, value, err := splitKindValue(arg)
	if err != nil {
		return err
	}
	switch kind {
	case "filesize":
		return o.Autostop.FileSize.Set(value)
	case "duration":
		o.Autostop.Duration, err = parseSeconds(value)
	case "files":
		o.Autostop.Files, err = parseCount(value)
	default:
		return errors.Errorf("config: unknown autostop condition %q", kind)
	}
	return errors.Wrapf(err, "config: autostop %s", kind)
}

// ParseRingBuffer applies one "-b kind:value" argument.
func (o *CaptureOptions) ParseRingBuffer(arg string) error {
	kind, value, err := splitKindValue(arg)
	if err != nil {
		return err
	}
	o.Ring.Enabled = true
	switch kind {
	case "filesize":
		return o.Ring.FileSize.Set(value)
	case "duration":
		o.Ring.Duration, err = parseSeconds(value)
	case "files":
		o.Ring.NumFiles, err = parseCount(value)
	default:
		return errors.Errorf("config: unknown ring buffer parameter %q", kind)
	}
	return errors.Wrapf(err, "config: ring buffer %s", kind)
}

func splitKindValue(arg string) (string, string, error) {
	kind, value, ok := strings.Cut(arg, ":")
	if !ok || kind == "" || value == "" {
		return "", "", errors.Errorf("config: expected kind:value, got %q", arg)
	}
	return strings.ToLower(kind), value, nil
}

// parseSeconds accepts plain (possibly fractional) seconds or a Go duration.
func parseSeconds(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if f <= 0 {
			return 0, errors.Errorf("duration must be positive: %q", v)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err == nil && d <= 0 {
		err = errors.Errorf("duration must be positive: %q", v)
	}
	return d, err
}

func parseCount(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err == nil && n <= 0 {
		err = errors.Errorf("count must be positive: %q", v)
	}
	return n, err
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// Settings 是命令行参数的原始形式。
type Settings struct {
	Options CaptureOptions

	NoPromiscuous bool
	AutostopArgs  []string
	RingArgs      []string

	// ChildFD is set only when running as a worker ("-Z <fd>").
	ChildFD int

	ListInterfaces bool
	InProcess      bool
	WorkerLog      string
	LogLevel       string
}

// BindFlags registers the capture flags on fs.
func (s *Settings) BindFlags(fs *pflag.FlagSet) {
	o := &s.Options
	fs.StringVarP(&o.Interface, "interface", "i", "", "interface name, FIFO path, or - for stdin")
	fs.IntVarP(&o.SnapLen, "snapshot-length", "s", 0, "maximum bytes captured per packet (0 = default)")
	fs.StringVarP(&o.LinkType, "linktype", "y", "", "link-layer type, DLT name or number")
	fs.IntVarP(&o.Autostop.Packets, "count", "c", 0, "stop after this many packets")
	fs.VarP(&MultiStringOption{Params: &s.AutostopArgs}, "autostop", "a",
		"autostop condition: filesize:<size>, duration:<seconds>, files:<n>")
	fs.VarP(&MultiStringOption{Params: &s.RingArgs}, "ring-buffer", "b",
		"ring buffer parameter: filesize:<size>, duration:<seconds>, files:<n>")
	fs.BoolVarP(&s.NoPromiscuous, "no-promiscuous-mode", "p", false, "don't capture in promiscuous mode")
	fs.StringVarP(&o.Filter, "capture-filter", "f", "", "capture filter in libpcap syntax")
	fs.StringVarP(&o.SavePath, "write", "w", "", "write packets to this file")
	fs.IntVarP(&s.ChildFD, "child", "Z", -1, "run as capture worker reporting on this descriptor")
	_ = fs.MarkHidden("child")

	fs.BoolVarP(&s.ListInterfaces, "list-interfaces", "D", false, "print the capture interfaces and exit")
	fs.BoolVar(&s.InProcess, "in-process", false, "capture in this process instead of a worker")
	fs.StringVar(&s.WorkerLog, "worker-log", "", "write worker diagnostics to this rotating log")
	fs.StringVar(&s.LogLevel, "log-level", "", "debug, info, warn or error")
}

// Finish turns the raw flag values into Options.
func (s *Settings) Finish() error {
	s.Options.Promiscuous = !s.NoPromiscuous
	for _, a := range s.AutostopArgs {
		if err := s.Options.ParseAutostop(a); err != nil {
			return err
		}
	}
	for _, b := range s.RingArgs {
		if err := s.Options.ParseRingBuffer(b); err != nil {
			return err
		}
	}
	// the parent validates once it knows the save path; a worker has it already
	if s.IsChild() {
		return s.Options.Validate()
	}
	return nil
}

// IsChild reports whether the process was started as a worker.
func (s *Settings) IsChild() bool {
	return s.ChildFD >= 0
}

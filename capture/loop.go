package capture

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/vearne/capsync/condition"
	"github.com/vearne/capsync/config"
	"github.com/vearne/capsync/consts"
	"github.com/vearne/capsync/protocol"
	"github.com/vearne/capsync/savefile"
	"github.com/vearne/capsync/util"
	slog "github.com/vearne/simplelog"
)

const batchSize = 64

// Output is the destination capture file, possibly a ring of files.
type Output interface {
	Append(ci gopacket.CaptureInfo, data []byte) error
	Flush() error
	Close() error
	// Bytes is the size of the current file.
	Bytes() int64
	Path() string
	Rotate() (string, error)
}

type StopReason int

const (
	StopNone StopReason = iota
	StopRequested
	StopAutostop
	StopSourceEnded
	StopError
)

func (r StopReason) String() string {
	switch r {
	case StopRequested:
		return "stop requested"
	case StopAutostop:
		return "autostop"
	case StopSourceEnded:
		return "source ended"
	case StopError:
		return "error"
	default:
		return "none"
	}
}

// Result summarizes a finished capture.
type Result struct {
	Reason     StopReason
	Err        error
	Started    bool
	Packets    int64
	Bytes      int64
	Rotations  int
	LinkType   layers.LinkType
	Stats      Stats
	StatsKnown bool
	Counters   Counters
}

// Clean reports a capture that ended without an error.
func (r *Result) Clean() bool {
	return r.Err == nil
}

// stopConditions are rebuilt per capture; nil members are inactive.
type stopConditions struct {
	ringSize  *condition.Condition
	ringTime  *condition.Condition
	size      *condition.Condition
	duration  *condition.Condition
	rotations *condition.Condition
}

func (c *stopConditions) resetPerFile() {
	c.ringSize.Reset()
	c.ringTime.Reset()
}

func (c *stopConditions) delete() {
	for _, cond := range []*condition.Condition{c.ringSize, c.ringTime, c.size, c.duration, c.rotations} {
		cond.Delete()
	}
}

// Loop runs one capture: source to destination file, reporting to a sink.
type Loop struct {
	opts    *config.CaptureOptions
	sink    protocol.Sink
	running atomic.Bool

	now          func() time.Time
	readyTimeout time.Duration
	openSource   func(opts *config.CaptureOptions, keepGoing func() bool) (PacketSource, error)
	openOutput   func(opts *config.CaptureOptions, lt layers.LinkType) (Output, error)
	displayLike  func(expr string) bool
}

func NewLoop(opts *config.CaptureOptions, sink protocol.Sink) *Loop {
	l := &Loop{
		opts:         opts,
		sink:         sink,
		now:          time.Now,
		readyTimeout: consts.ReadyTimeout,
		openSource:   OpenSource,
		openOutput:   OpenOutput,
		displayLike:  LooksLikeDisplayFilter,
	}
	l.running.Store(true)
	return l
}

// Stop asks the loop to finish after the current batch. It is safe to call
// from a signal-handling goroutine.
func (l *Loop) Stop() {
	l.running.Store(false)
}

func (l *Loop) Running() bool {
	return l.running.Load()
}

// OpenSource tries name as a live interface first, then as a pipe. Waiting
// for a pipe writer ends with ErrStopped once keepGoing returns false.
func OpenSource(opts *config.CaptureOptions, keepGoing func() bool) (PacketSource, error) {
	live, err := OpenLive(opts.Interface, opts.SnapLen, opts.Promiscuous, consts.ReadyTimeout)
	if err == nil {
		return live, nil
	}
	if opts.Interface == consts.StdinToken || util.IsNamedPipe(opts.Interface) {
		slog.Debug("%s is not a live interface (%v), reading it as a pipe", opts.Interface, err)
		return OpenPipe(opts.Interface, keepGoing)
	}
	return nil, err
}

// OpenOutput creates the single destination file or the first ring file.
func OpenOutput(opts *config.CaptureOptions, lt layers.LinkType) (Output, error) {
	if opts.SavePath == "" {
		return nil, errors.New("capture: no output file")
	}
	if opts.Ring.Enabled {
		return savefile.NewRing(opts.SavePath, opts.Ring.NumFiles, lt, opts.SnapLen)
	}
	return savefile.Create(opts.SavePath, lt, opts.SnapLen)
}

func (l *Loop) send(m protocol.Message) {
	if err := l.sink.Send(m); err != nil {
		slog.Warn("send %v: %v", m, err)
	}
}

// fail reports an error that ends the capture.
func (l *Loop) fail(res *Result, err error) *Result {
	l.abort(res, err)
	var fe *FilterError
	if errors.As(err, &fe) {
		l.send(protocol.BadFilter{Text: fe.Error()})
	} else {
		l.send(protocol.ErrorMessage{Primary: err.Error(), Secondary: Hint(err)})
	}
	return res
}

// abort records err as the end of the capture and clears the run flag.
func (l *Loop) abort(res *Result, err error) {
	res.Reason, res.Err = StopError, err
	l.running.Store(false)
}

func (l *Loop) prepare(src PacketSource, res *Result) (linkInfo, error) {
	if l.opts.LinkType != "" {
		lt, err := ResolveLinkType(l.opts.LinkType)
		if err == nil {
			err = src.SetLinkType(lt)
		}
		if err != nil {
			return linkInfo{}, &SourceOpenError{Source: src.Name(), Kind: SourceUnsupportedLinkType, Err: err}
		}
	}
	if l.opts.Filter != "" {
		if err := src.SetFilter(l.opts.Filter); err != nil {
			return linkInfo{}, &FilterError{Filter: l.opts.Filter, LooksLikeDisplayFilter: l.displayLike(l.opts.Filter), Err: err}
		}
	}
	res.LinkType = src.LinkType()
	info, ok := lookupLinkType(res.LinkType)
	if !ok {
		return linkInfo{}, &SourceOpenError{Source: src.Name(), Kind: SourceUnsupportedLinkType,
			Err: errors.Errorf("link type %v", res.LinkType)}
	}
	return info, nil
}

func (l *Loop) conditions() *stopConditions {
	o := l.opts
	c := &stopConditions{}
	if o.Ring.Enabled {
		if o.Ring.FileSize > 0 {
			c.ringSize = condition.NewSize(int64(o.Ring.FileSize))
		}
		if o.Ring.Duration > 0 {
			c.ringTime = condition.NewDuration(o.Ring.Duration, l.now)
		}
		if o.Autostop.Files > 0 {
			c.rotations = condition.NewRepeatCount(int64(o.Autostop.Files))
		}
	}
	if o.Autostop.FileSize > 0 {
		c.size = condition.NewSize(int64(o.Autostop.FileSize))
	}
	if o.Autostop.Duration > 0 {
		c.duration = condition.NewDuration(o.Autostop.Duration, l.now)
	}
	return c
}

// Run captures until stopped and always closes what it opened.
func (l *Loop) Run() *Result {
	res := &Result{}
	snapLen := l.opts.SnapLen
	if snapLen <= 0 {
		snapLen = consts.DefaultSnapLen
	}

	src, err := l.openSource(l.opts, l.running.Load)
	if errors.Is(err, ErrStopped) {
		res.Reason = StopRequested
		slog.Info("capture on %s stopped before the source was ready", l.opts.Interface)
		return res
	}
	if err != nil {
		return l.fail(res, err)
	}
	defer src.Close()

	info, err := l.prepare(src, res)
	if err != nil {
		return l.fail(res, err)
	}

	out, err := l.openOutput(l.opts, res.LinkType)
	if err != nil {
		return l.fail(res, err)
	}
	slog.Info("capturing on %s, link type %v, writing %s", src.Name(), res.LinkType, out.Path())
	l.send(protocol.NewFile{Path: out.Path()})
	l.send(protocol.CaptureStarted{})
	res.Started = true

	conds := l.conditions()
	defer conds.delete()

	var (
		unreported   int64
		closedBytes  int64
		lastProgress = l.now()
		lastDrops    = -1
	)
	report := func() error {
		if unreported == 0 {
			return nil
		}
		if err := out.Flush(); err != nil {
			return err
		}
		l.send(protocol.NewPackets{Count: uint32(unreported)})
		unreported = 0
		return nil
	}
	record := func(ci gopacket.CaptureInfo, data []byte) error {
		if len(data) > snapLen {
			data = data[:snapLen]
		}
		ci.CaptureLength = len(data)
		if ci.Length < ci.CaptureLength {
			ci.Length = ci.CaptureLength
		}
		res.Counters.count(info, data)
		if err := out.Append(ci, data); err != nil {
			return err
		}
		res.Packets++
		unreported++
		return nil
	}

	for l.running.Load() {
		ready, err := src.WaitReady(l.readyTimeout)
		if err != nil {
			l.abort(res, &CaptureLibraryError{Source: src.Name(), Err: err})
			break
		}
		if ready == Ready {
			want := batchSize
			if limit := int64(l.opts.Autostop.Packets); limit > 0 && limit-res.Packets < int64(want) {
				want = int(limit - res.Packets)
			}
			_, err = src.ReadBatch(want, record)
			if err == io.EOF {
				res.Reason = StopSourceEnded
				l.running.Store(false)
			} else if err != nil {
				l.abort(res, readError(src, err))
				break
			}
			if limit := int64(l.opts.Autostop.Packets); limit > 0 && res.Packets >= limit {
				res.Reason = StopAutostop
				l.running.Store(false)
			}
		}

		if l.running.Load() {
			if rotate, stop := l.evaluate(conds, out, closedBytes, res); rotate {
				if err = report(); err == nil {
					closedBytes += out.Bytes()
					var path string
					if path, err = out.Rotate(); err == nil {
						res.Rotations++
						conds.resetPerFile()
						l.send(protocol.NewFile{Path: path})
					}
				}
				if err != nil {
					l.abort(res, err)
					break
				}
			} else if stop {
				res.Reason = StopAutostop
				l.running.Store(false)
			}
		}

		if now := l.now(); now.Sub(lastProgress) >= consts.ProgressInterval {
			lastProgress = now
			if err = report(); err != nil {
				l.abort(res, err)
				break
			}
			if st, ok := src.Stats(); ok && st.Dropped != lastDrops {
				lastDrops = st.Dropped
				l.send(protocol.Drops{Count: uint32(st.Dropped)})
			}
		}
	}
	if res.Reason == StopNone {
		res.Reason = StopRequested
	}

	if res.Err == nil {
		res.Err = report()
	}
	res.Stats, res.StatsKnown = src.Stats()
	if res.StatsKnown && res.Stats.Dropped != lastDrops {
		l.send(protocol.Drops{Count: uint32(res.Stats.Dropped)})
	}
	res.Bytes = closedBytes + out.Bytes()
	if cerr := out.Close(); res.Err == nil && cerr != nil {
		res.Err = cerr
	}
	if res.Err != nil {
		l.fail(res, res.Err)
	}
	slog.Info("capture on %s finished: %v, %d packets, %d rotations",
		src.Name(), res.Reason, res.Packets, res.Rotations)
	return res
}

// readError keeps file errors as they are and attributes the rest to the source.
func readError(src PacketSource, err error) error {
	var fe *savefile.FileError
	var ce *CaptureLibraryError
	if errors.As(err, &fe) || errors.As(err, &ce) {
		return err
	}
	return &CaptureLibraryError{Source: src.Name(), Err: err}
}

// evaluate checks the stop conditions in a fixed order: per-file size, per-file
// duration, total size, total duration. At most one action results.
func (l *Loop) evaluate(c *stopConditions, out Output, closedBytes int64, res *Result) (rotate, stop bool) {
	if c.ringSize.Eval(out.Bytes()) || c.ringTime.Eval(0) {
		if c.rotations.Eval(int64(res.Rotations)) {
			return false, true
		}
		return true, false
	}
	if c.size.Eval(closedBytes+out.Bytes()) || c.duration.Eval(0) {
		return false, true
	}
	return false, false
}

// Hint returns a second line of advice for err, or "".
func Hint(err error) string {
	var se *SourceOpenError
	if errors.As(err, &se) {
		switch se.Kind {
		case SourcePermissionDenied:
			return "You don't have permission to capture on that device; run as root or grant CAP_NET_RAW."
		case SourceNotFound:
			return "Check the interface name; capsync -D lists the capture interfaces."
		case SourceUnsupportedLinkType:
			return "Choose another link type with -y or another interface."
		case SourceUnrecognizedFormat, SourceLegacyFormat:
			return "The data on the pipe must be in libpcap format 2.x."
		}
	}
	var fe *savefile.FileError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case savefile.KindNoSpace:
			return "The file system holding the capture file is full."
		case savefile.KindQuota:
			return "You have exceeded your disk quota."
		}
	}
	if errors.Is(err, ErrRecordTooLarge) {
		return "The pipe stream is corrupt or not in libpcap format."
	}
	return ""
}

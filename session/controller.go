package session

import (
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/smallnest/gofsm"
	"github.com/vearne/capsync/capture"
	"github.com/vearne/capsync/config"
	"github.com/vearne/capsync/consts"
	"github.com/vearne/capsync/launcher"
	"github.com/vearne/capsync/protocol"
	"github.com/vearne/capsync/savefile"
	"github.com/vearne/capsync/util"
	slog "github.com/vearne/simplelog"
)

var (
	ErrNotIdle    = errors.New("session already started")
	ErrNotRunning = errors.New("session is not running")
)

// localCapture runs the capture loop on a goroutine of this process and
// feeds the same control pipe a worker would.
type localCapture struct {
	loop   *capture.Loop
	done   chan struct{}
	result *capture.Result
}

func (lc *localCapture) wait(timeout time.Duration) (launcher.ExitStatus, error) {
	select {
	case <-lc.done:
	case <-time.After(timeout):
		return launcher.ExitStatus{Code: 1}, errors.Errorf("capture loop still running after %v", timeout)
	}
	if lc.result.Clean() {
		return launcher.ExitStatus{}, nil
	}
	return launcher.ExitStatus{Code: 1}, nil
}

// Controller drives one capture session: it starts the worker, follows its
// control messages, tails the capture file and hands every record to the
// dissector.
type Controller struct {
	host      Host
	launcher  *launcher.Launcher
	dissector Dissector
	reporter  Reporter
	inProcess bool

	sm    *fsm.StateMachine
	state string

	opts    config.CaptureOptions
	worker  *launcher.Worker
	local   *localCapture
	pipe    *os.File
	pending []byte

	started  bool
	tail     *savefile.Tail
	curPath  string
	packets  int64
	drops    uint32
	failures []error
	status   launcher.ExitStatus
}

type Option func(c *Controller)

// WithInProcess runs the capture loop inside this process instead of a worker.
func WithInProcess() Option {
	return func(c *Controller) {
		c.inProcess = true
	}
}

func WithReporter(r Reporter) Option {
	return func(c *Controller) {
		c.reporter = r
	}
}

func NewController(host Host, l *launcher.Launcher, d Dissector, opts ...Option) *Controller {
	c := &Controller{
		host:      host,
		launcher:  l,
		dissector: d,
		reporter:  LogReporter{},
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sm = InitSessionFSM(c)
	return c
}

func (c *Controller) Action(action string, fromState string, toState string, args []interface{}) error {
	switch action {
	case "change-state":
		slog.Info("change-state, session:[%v] -> [%v]", fromState, toState)
	default:
		slog.Debug("unknow action: %v", action)
	}
	return nil
}

func (c *Controller) OnActionFailure(action string, fromState string, toState string, args []interface{}, err error) {
	slog.Error("session action %v failed, %v -> %v: %v", action, fromState, toState, err)
}

func (c *Controller) OnExit(fromState string, args []interface{}) {
}

func (c *Controller) OnEnter(toState string, args []interface{}) {
	c.state = toState
	switch toState {
	case StateClosed, StateFailed:
		c.reporter.Finished(toState, c.status, c.Err())
	}
}

func (c *Controller) trigger(event string) {
	if err := c.sm.Trigger(c.state, event); err != nil {
		slog.Error("session state %v, event %v: %v", c.state, event, err)
	}
}

func (c *Controller) State() string {
	return c.state
}

// Packets is the number of records handed to the dissector.
func (c *Controller) Packets() int64 {
	return c.packets
}

// Drops is the last drop count the worker reported.
func (c *Controller) Drops() uint32 {
	return c.drops
}

func (c *Controller) Status() launcher.ExitStatus {
	return c.status
}

// SavePath is the capture destination, set once Start has run.
func (c *Controller) SavePath() string {
	return c.opts.SavePath
}

// Err is the first failure the session ran into.
func (c *Controller) Err() error {
	if len(c.failures) == 0 {
		return nil
	}
	return c.failures[0]
}

func (c *Controller) failed(err error) {
	c.failures = append(c.failures, err)
}

// Start launches the capture. Without a save path it captures into a fresh
// temporary file.
func (c *Controller) Start(opts *config.CaptureOptions) error {
	if c.state != StateIdle {
		return ErrNotIdle
	}
	c.opts = *opts
	if c.opts.SavePath == "" {
		path, err := CreateTempCapture("")
		if err != nil {
			return err
		}
		c.opts.SavePath = path
		c.opts.Temporary = true
	}
	if err := c.opts.Validate(); err != nil {
		c.discardFile()
		return err
	}

	c.trigger(EventStart)
	var err error
	if c.inProcess {
		err = c.startLocal()
	} else {
		c.worker, err = c.launcher.Launch(&c.opts)
		if err == nil {
			c.pipe = c.worker.Pipe()
		}
	}
	if err != nil {
		c.failed(err)
		c.discardFile()
		c.trigger(EventLaunchFailed)
		return err
	}

	c.trigger(EventLaunched)
	c.host.Watch(c.pipe, c.onPipeData)
	return nil
}

func (c *Controller) startLocal() error {
	r, w, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, "control pipe")
	}
	opts := c.opts
	lc := &localCapture{
		loop: capture.NewLoop(&opts, protocol.NewPipeSink(w)),
		done: make(chan struct{}),
	}
	go func() {
		defer close(lc.done)
		lc.result = lc.loop.Run()
		w.Close()
	}()
	c.local = lc
	c.pipe = r
	return nil
}

// Stop asks the capture to finish; the session closes once the worker has
// flushed and exited.
func (c *Controller) Stop() error {
	if c.state != StateRunning {
		return ErrNotRunning
	}
	if c.local != nil {
		c.local.loop.Stop()
		return nil
	}
	return c.worker.Stop()
}

// Kill ends the capture without waiting for the worker to clean up. An
// in-process capture is given consts.KillGrace to wind down and the session
// closes before Kill returns.
func (c *Controller) Kill() error {
	if c.state != StateRunning {
		return ErrNotRunning
	}
	if c.local == nil {
		return c.worker.Kill()
	}
	c.local.loop.Stop()
	c.host.Unwatch(c.pipe)
	c.finish()
	return nil
}

func (c *Controller) onPipeData(data []byte, err error) bool {
	if c.state != StateRunning {
		return false
	}
	if len(data) > 0 {
		c.pending = append(c.pending, data...)
		msgs, used, perr := protocol.Split(c.pending)
		for _, m := range msgs {
			c.handle(m)
		}
		c.pending = c.pending[used:]
		if perr != nil {
			c.abort(perr)
			return false
		}
	}

	switch {
	case err == io.EOF:
		if len(c.pending) > 0 {
			c.failed(errors.Wrapf(protocol.ErrPartialPayload, "%d bytes left on control pipe", len(c.pending)))
		}
		c.finish()
		return false
	case err != nil:
		c.abort(errors.Wrap(err, "read control pipe"))
		return false
	}
	return true
}

// abort kills a worker that broke the control protocol.
func (c *Controller) abort(err error) {
	slog.Error("control pipe: %v", err)
	c.failed(err)
	if c.worker != nil {
		if kerr := c.worker.Kill(); kerr != nil {
			slog.Warn("kill worker: %v", kerr)
		}
	} else if c.local != nil {
		c.local.loop.Stop()
		c.pipe.Close()
	}
	c.finish()
}

func (c *Controller) handle(m protocol.Message) {
	slog.Debug("control message: %v", m)
	switch msg := m.(type) {
	case protocol.NewFile:
		c.follow(msg.Path)
	case protocol.CaptureStarted:
		c.started = true
		if c.tail == nil {
			c.follow(c.opts.SavePath)
		}
		c.reporter.CaptureStarted(c.curPath)
	case protocol.NewPackets:
		c.readPackets(int(msg.Count))
	case protocol.Drops:
		c.drops = msg.Count
		c.reporter.Drops(msg.Count)
	case protocol.BadFilter:
		c.failed(&capture.FilterError{Filter: c.opts.Filter, Err: errors.New(msg.Text)})
		c.reporter.Error("Invalid capture filter \""+c.opts.Filter+"\"", msg.Text)
		c.dropIfNotStarted()
	case protocol.ErrorMessage:
		c.failed(errors.New(msg.Primary))
		c.reporter.Error(msg.Primary, msg.Secondary)
		c.dropIfNotStarted()
	}
}

func (c *Controller) dropIfNotStarted() {
	if !c.started {
		c.discardFile()
	}
}

// follow switches the tail to a new capture file. A file we cannot read is
// useless to capture into, so the worker is told to stop.
func (c *Controller) follow(path string) {
	if c.tail != nil {
		c.drainTail()
		c.closeTail()
	}
	c.curPath = path
	t, err := savefile.OpenTail(path)
	if err != nil {
		slog.Error("open capture file %v: %v", path, err)
		c.failed(err)
		if serr := c.Stop(); serr != nil {
			slog.Warn("stop capture: %v", serr)
		}
		return
	}
	c.tail = t
}

func (c *Controller) forward(ci gopacket.CaptureInfo, data []byte) {
	c.packets++
	if c.dissector != nil {
		c.dissector.Packet(ci, data, c.linkType())
	}
}

func (c *Controller) linkType() layers.LinkType {
	return c.tail.LinkType()
}

func (c *Controller) readPackets(n int) {
	if c.tail == nil {
		slog.Warn("%d packets reported before any capture file", n)
		return
	}
	got, err := c.tail.Read(n, c.forward)
	if err != nil {
		slog.Error("read capture file: %v", err)
		c.failed(err)
		return
	}
	if got < n {
		slog.Warn("worker reported %d packets, only %d readable in %v", n, got, c.curPath)
	}
}

func (c *Controller) drainTail() {
	if _, err := c.tail.Drain(c.forward); err != nil {
		slog.Warn("drain capture file: %v", err)
	}
}

func (c *Controller) closeTail() {
	if err := c.tail.Close(); err != nil {
		slog.Warn("close capture file: %v", err)
	}
	c.tail = nil
}

func (c *Controller) discardFile() {
	if !c.opts.Temporary {
		return
	}
	if err := util.RemoveFile(c.opts.SavePath); err != nil {
		slog.Warn("remove %v: %v", c.opts.SavePath, err)
	}
}

func (c *Controller) finish() {
	var werr error
	if c.local != nil {
		c.status, werr = c.local.wait(consts.KillGrace)
	} else {
		c.logWorkerStats()
		c.status, werr = c.worker.Wait()
		c.worker.ClosePipe()
	}
	if c.local != nil {
		c.pipe.Close()
	}
	if werr != nil {
		c.failed(werr)
	}

	if c.tail != nil {
		c.drainTail()
		c.closeTail()
	}
	if !c.started {
		c.discardFile()
	}

	if len(c.failures) == 0 && !c.status.Success() {
		c.failed(errors.Errorf("capture worker: %v", c.status))
	}
	if len(c.failures) == 0 {
		c.trigger(EventExitOK)
	} else {
		c.trigger(EventExitError)
	}
}

func (c *Controller) logWorkerStats() {
	st, err := c.worker.Stats()
	if err != nil {
		// the worker may already be gone
		slog.Debug("worker stats: %v", err)
		return
	}
	slog.Info("worker %d: rss:%v, vms:%v, cpu:%.1f%%, threads:%v",
		c.worker.Pid(), st.RSS, st.VMS, st.CPUPercent, st.Threads)
}

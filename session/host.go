package session

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vearne/capsync/consts"
	"github.com/vearne/capsync/util"
)

// Host is the event loop a Controller runs on. Callbacks run one at a time
// on the loop's goroutine.
type Host interface {
	// Watch hands every chunk read from f to onData, until the callback
	// returns false. A read error, io.EOF included, is delivered once and
	// ends the watch. Call it from the loop goroutine or before Run.
	Watch(f *os.File, onData func(data []byte, err error) bool)
	// Unwatch stops delivering data from f. It does not close f.
	Unwatch(f *os.File)
	// Post runs fn on the loop goroutine; safe from any goroutine.
	Post(fn func())
}

type watch struct {
	f       *os.File
	fd      uintptr
	cb      func([]byte, error) bool
	buf     []byte
	removed atomic.Bool
}

// PollHost is a Host that polls its watched descriptors. Where pipes cannot
// be polled it reads each watched file on its own goroutine and posts the
// chunks back to the loop instead.
type PollHost struct {
	timeout   time.Duration
	readAhead bool
	wake      chan struct{}

	mu      sync.Mutex
	posted  []func()
	watches []*watch
}

func NewPollHost() *PollHost {
	return &PollHost{
		timeout:   consts.ReadyTimeout,
		readAhead: !util.PipesPollable,
		wake:      make(chan struct{}, 1),
	}
}

func (h *PollHost) Watch(f *os.File, onData func(data []byte, err error) bool) {
	w := &watch{f: f, fd: f.Fd(), cb: onData}
	h.watches = append(h.watches, w)
	if h.readAhead {
		go h.readLoop(w)
	} else {
		w.buf = make([]byte, consts.MaxControlPayload)
	}
}

func (h *PollHost) Unwatch(f *os.File) {
	for _, w := range h.watches {
		if w.f == f {
			h.remove(w)
			return
		}
	}
}

func (h *PollHost) Post(fn func()) {
	h.mu.Lock()
	h.posted = append(h.posted, fn)
	h.mu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *PollHost) readLoop(w *watch) {
	for !w.removed.Load() {
		buf := make([]byte, consts.MaxControlPayload)
		n, err := w.f.Read(buf)
		h.Post(func() { h.deliver(w, buf[:n], err) })
		if err != nil {
			return
		}
	}
}

func (h *PollHost) deliver(w *watch, data []byte, err error) {
	if w.removed.Load() {
		return
	}
	if !w.cb(data, err) || err != nil {
		h.remove(w)
	}
}

func (h *PollHost) runPosted() {
	h.mu.Lock()
	fns := h.posted
	h.posted = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *PollHost) remove(w *watch) {
	w.removed.Store(true)
	for i, x := range h.watches {
		if x == w {
			h.watches = append(h.watches[:i], h.watches[i+1:]...)
			return
		}
	}
}

// Run dispatches callbacks until nothing is watched or ctx is done.
func (h *PollHost) Run(ctx context.Context) error {
	for {
		h.runPosted()
		if len(h.watches) == 0 {
			return nil
		}
		if h.readAhead {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-h.wake:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		snapshot := append([]*watch(nil), h.watches...)
		fds := make([]uintptr, len(snapshot))
		for i, w := range snapshot {
			fds[i] = w.fd
		}
		ready, err := util.PollReadable(fds, h.timeout)
		if err != nil {
			return err
		}
		for i, w := range snapshot {
			if !ready[i] || w.removed.Load() {
				continue
			}
			n, rerr := w.f.Read(w.buf)
			h.deliver(w, w.buf[:n], rerr)
		}
	}
}

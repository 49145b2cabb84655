package protocol

import (
	"io"
	"sync"

	slog "github.com/vearne/simplelog"
)

// Sink receives the progress messages produced by a capture.
type Sink interface {
	Send(m Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(m Message) error

func (f SinkFunc) Send(m Message) error {
	return f(m)
}

// PipeSink frames messages onto a pipe write end.
type PipeSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPipeSink(w io.Writer) *PipeSink {
	return &PipeSink{w: w}
}

func (s *PipeSink) Send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	if err != nil {
		slog.Error("sync pipe write %v: %v", m, err)
	}
	return err
}

// Close closes the underlying writer if it can be closed.
func (s *PipeSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Package launcher starts the capture worker process and owns its handle.
package launcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/vearne/capsync/config"
	slog "github.com/vearne/simplelog"
)

// ErrUnsupported is returned by Launch where workers cannot be run.
var ErrUnsupported = errors.New("capture workers are not supported on this platform")

// LaunchError means the worker could not be started.
type LaunchError struct {
	Op  string // "pipe" or "spawn"
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch worker: %s: %v", e.Op, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Launcher describes how to start a worker.
type Launcher struct {
	// Path is the worker executable; the running executable when empty.
	Path string
	// Args go before the generated worker arguments.
	Args []string
	// Env is added to the inherited environment.
	Env []string
	// Stderr receives the worker's diagnostics; os.Stderr when nil.
	Stderr io.Writer
}

// Worker is a running capture worker.
type Worker struct {
	cmd  *exec.Cmd
	pipe *os.File

	once    sync.Once
	status  ExitStatus
	waitErr error
}

// Launch starts a worker capturing with opts. The returned worker's Pipe is
// the read end of its control pipe; the parent keeps no copy of the write end.
func (l *Launcher) Launch(opts *config.CaptureOptions) (*Worker, error) {
	if !Supported {
		return nil, &LaunchError{Op: "spawn", Err: ErrUnsupported}
	}
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, &LaunchError{Op: "spawn", Err: err}
		}
		path = exe
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Op: "pipe", Err: err}
	}

	args := append(append([]string{}, l.Args...), config.WorkerArgs(opts)...)
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.Stdout = cmd.Stderr
	// ExtraFiles[0] becomes descriptor 3 in the worker.
	cmd.ExtraFiles = []*os.File{w}

	if err = cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, &LaunchError{Op: "spawn", Err: err}
	}
	w.Close()

	slog.Info("worker started, pid:%v, args:%v", cmd.Process.Pid, args)
	return &Worker{cmd: cmd, pipe: r}, nil
}

func (w *Worker) Pid() int {
	return w.cmd.Process.Pid
}

// Pipe is the read end of the control pipe.
func (w *Worker) Pipe() *os.File {
	return w.pipe
}

// Stop asks the worker to finish its capture and exit.
func (w *Worker) Stop() error {
	slog.Debug("worker %d: graceful stop", w.Pid())
	return errors.Wrap(w.stop(), "stop worker")
}

// Kill terminates the worker without letting it clean up.
func (w *Worker) Kill() error {
	slog.Debug("worker %d: kill", w.Pid())
	err := w.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return errors.Wrap(err, "kill worker")
}

// Wait reaps the worker and reports how it ended. It may be called repeatedly.
func (w *Worker) Wait() (ExitStatus, error) {
	w.once.Do(func() {
		err := w.cmd.Wait()
		var ee *exec.ExitError
		if err != nil && !errors.As(err, &ee) {
			w.waitErr = errors.Wrap(err, "wait worker")
		}
		if w.cmd.ProcessState != nil {
			w.status = exitStatus(w.cmd.ProcessState)
		}
		slog.Info("worker %d exited: %v", w.Pid(), w.status)
	})
	return w.status, w.waitErr
}

// ClosePipe closes the parent's end of the control pipe.
func (w *Worker) ClosePipe() error {
	return w.pipe.Close()
}

// ProcStats is a snapshot of the worker's resource use.
type ProcStats struct {
	RSS        uint64
	VMS        uint64
	CPUPercent float64
	Threads    int32
}

func (w *Worker) Stats() (*ProcStats, error) {
	p, err := process.NewProcess(int32(w.Pid()))
	if err != nil {
		return nil, errors.Wrap(err, "worker stats")
	}
	var st ProcStats
	if mem, err := p.MemoryInfo(); err == nil {
		st.RSS, st.VMS = mem.RSS, mem.VMS
	} else {
		return nil, errors.Wrap(err, "worker memory")
	}
	st.CPUPercent, _ = p.CPUPercent()
	st.Threads, _ = p.NumThreads()
	return &st, nil
}

// ExitStatus describes how a worker ended.
type ExitStatus struct {
	Code       int
	Signaled   bool
	Signal     string
	CoreDumped bool
}

// Success is a zero exit code without a signal.
func (s ExitStatus) Success() bool {
	return !s.Signaled && s.Code == 0
}

func (s ExitStatus) String() string {
	if s.Signaled {
		if s.CoreDumped {
			return fmt.Sprintf("killed by signal %s (core dumped)", s.Signal)
		}
		return "killed by signal " + s.Signal
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

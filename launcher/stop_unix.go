//go:build !windows

package launcher

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Supported reports whether workers can be launched on this platform.
const Supported = true

// StopSignal is what the worker treats as a request to finish.
var StopSignal os.Signal = unix.SIGUSR1

func (w *Worker) stop() error {
	return w.cmd.Process.Signal(StopSignal)
}

func exitStatus(ps *os.ProcessState) ExitStatus {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok {
		return ExitStatus{Code: ps.ExitCode()}
	}
	if ws.Signaled() {
		return ExitStatus{
			Code:       -1,
			Signaled:   true,
			Signal:     unix.SignalName(ws.Signal()),
			CoreDumped: ws.CoreDump(),
		}
	}
	return ExitStatus{Code: ws.ExitStatus()}
}

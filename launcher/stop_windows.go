package launcher

import "os"

// Windows children do not inherit the control descriptor, so captures run
// in-process there.
const Supported = false

var StopSignal os.Signal = os.Interrupt

func (w *Worker) stop() error {
	return ErrUnsupported
}

func exitStatus(ps *os.ProcessState) ExitStatus {
	return ExitStatus{Code: ps.ExitCode()}
}

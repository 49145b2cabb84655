package session

import (
	"github.com/smallnest/gofsm"
)

const (
	StateIdle      = "IDLE"
	StateLaunching = "LAUNCHING"
	StateRunning   = "RUNNING"
	StateClosed    = "CLOSED"
	StateFailed    = "FAILED"
)

const (
	EventStart        = "START"
	EventLaunched     = "LAUNCHED"
	EventLaunchFailed = "LAUNCH_FAILED"
	EventExitOK       = "EXIT_OK"
	EventExitError    = "EXIT_ERROR"
)

func InitSessionFSM(processor fsm.EventProcessor) *fsm.StateMachine {
	delegate := &fsm.DefaultDelegate{P: processor}
	transitions := []fsm.Transition{
		{From: StateIdle, Event: EventStart, To: StateLaunching, Action: "change-state"},
		{From: StateLaunching, Event: EventLaunched, To: StateRunning, Action: "change-state"},
		{From: StateLaunching, Event: EventLaunchFailed, To: StateFailed, Action: "change-state"},

		{From: StateRunning, Event: EventExitOK, To: StateClosed, Action: "change-state"},
		{From: StateRunning, Event: EventExitError, To: StateFailed, Action: "change-state"},
	}

	return fsm.NewStateMachine(delegate, transitions...)
}

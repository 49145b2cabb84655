package consts

import "time"

var (
	Version   = "v0.1.0"
	BuildTime = "unknown"
	GitTag    = "unknown"
)

const (
	// MaxControlPayload is the hard ceiling on a control message payload.
	MaxControlPayload = 4096

	// MaxRecordSize is the largest capture length accepted from a pipe source.
	MaxRecordSize = 262144

	DefaultSnapLen = 262144

	// ReadyTimeout bounds a single readiness wait on the packet source.
	ReadyTimeout = 250 * time.Millisecond

	// KillGrace bounds the wait for an in-process capture to wind down after Kill.
	KillGrace = time.Second

	// ProgressInterval is the minimum gap between two NewPackets messages.
	ProgressInterval = time.Second

	// SyncPipeFD is the descriptor number the worker inherits its control pipe on.
	SyncPipeFD = 3

	StdinToken = "-"
)

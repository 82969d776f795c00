package callkit

import "errors"

// Sentinel errors for callkit operations.
// These errors enable reliable error classification using errors.Is().

// Local call operation errors.
var (
	// ErrCallAlreadyActive indicates a non-Idle session already exists.
	ErrCallAlreadyActive = errors.New("call already active")

	// ErrNoIncomingCall indicates there is no ringing call to accept or reject.
	ErrNoIncomingCall = errors.New("no incoming call")
)

// Orchestrator lifecycle errors.
var (
	// ErrNotRunning indicates the orchestrator has not been started.
	ErrNotRunning = errors.New("orchestrator is not running")

	// ErrAlreadyRunning indicates the orchestrator is already started.
	ErrAlreadyRunning = errors.New("orchestrator is already running")
)

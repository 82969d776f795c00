package callkit

import "fmt"

// SignalKind names an outbound signaling event kind on the wire.
type SignalKind string

const (
	// SignalInitiate announces a new call to the remote peer.
	SignalInitiate SignalKind = "call-initiate"
	// SignalIncoming is the inbound-only form of an initiate announcement.
	SignalIncoming SignalKind = "incoming-call"
	// SignalAccepted tells the caller their call was answered.
	SignalAccepted SignalKind = "call-accepted"
	// SignalRejected tells the caller their call was declined.
	SignalRejected SignalKind = "call-rejected"
	// SignalEnded tells the other side the call was hung up.
	SignalEnded SignalKind = "call-ended"
)

// RingtoneKind selects one of the two scoped ringtone resources.
type RingtoneKind int

const (
	// RingtoneOutgoing is the ringback tone played while Outgoing.
	RingtoneOutgoing RingtoneKind = iota
	// RingtoneIncoming is the ringtone played while IncomingRinging.
	RingtoneIncoming
)

// String returns the string representation of RingtoneKind.
func (k RingtoneKind) String() string {
	switch k {
	case RingtoneOutgoing:
		return "outgoing"
	case RingtoneIncoming:
		return "incoming"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Command is a side effect requested by the state machine.
//
// The machine never performs I/O itself; it returns commands and the
// Orchestrator executes them, in order, against the configured ports.
type Command interface {
	isCommand()
}

// SendSignal instructs the host to emit an outbound signaling event.
type SendSignal struct {
	Kind SignalKind
}

// StartRingtone instructs the host to begin ringtone playback.
type StartRingtone struct {
	Ringtone RingtoneKind
}

// StopRingtone instructs the host to stop ringtone playback.
type StopRingtone struct {
	Ringtone RingtoneKind
}

// BeginMediaJoin instructs the host to run the token-fetch and engine
// join sequence for the current session.
type BeginMediaJoin struct{}

// LeaveMedia instructs the host to leave the media channel and disable
// engine audio. It must be safe to execute even if no join ever
// succeeded.
type LeaveMedia struct{}

// StartDurationTimer instructs the host to begin counting elapsed call
// seconds.
type StartDurationTimer struct{}

// StopDurationTimer instructs the host to stop and reset the elapsed
// counter.
type StopDurationTimer struct{}

// ClearSession instructs the host to release anything scoped to the
// session that just ended, such as an in-flight media join.
type ClearSession struct{}

func (SendSignal) isCommand() {}
func (StartRingtone) isCommand() {}
func (StopRingtone) isCommand() {}
func (BeginMediaJoin) isCommand() {}
func (LeaveMedia) isCommand() {}
func (StartDurationTimer) isCommand() {}
func (StopDurationTimer) isCommand() {}
func (ClearSession) isCommand() {}

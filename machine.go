package callkit

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a state machine input.
type EventType int

const (
	// EventInitiate is the local action of placing a call.
	EventInitiate EventType = iota
	// EventAccept is the local action of answering a ringing call.
	EventAccept
	// EventReject is the local action of declining a ringing call.
	EventReject
	// EventEnd is the local action of hanging up.
	EventEnd
	// EventSignalIncoming is a remote incoming-call signal.
	EventSignalIncoming
	// EventSignalAccepted is a remote call-accepted signal.
	EventSignalAccepted
	// EventSignalRejected is a remote call-rejected signal.
	EventSignalRejected
	// EventSignalEnded is a remote call-ended signal.
	EventSignalEnded
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	switch t {
	case EventInitiate:
		return "initiate"
	case EventAccept:
		return "accept"
	case EventReject:
		return "reject"
	case EventEnd:
		return "end"
	case EventSignalIncoming:
		return "signal:incoming-call"
	case EventSignalAccepted:
		return "signal:call-accepted"
	case EventSignalRejected:
		return "signal:call-rejected"
	case EventSignalEnded:
		return "signal:call-ended"
	default:
		return "unknown"
	}
}

// Event is a single state machine input, either a local user action or a
// remote signaling event already validated by the signaling adapter.
type Event struct {
	Type EventType

	// Peer carries the remote participant for EventInitiate and
	// EventSignalIncoming; it is ignored for all other event types.
	Peer PeerInfo
}

// Machine is the canonical call lifecycle state machine.
//
// It owns the CallSession exclusively and performs no I/O: Handle
// validates one event against the current state, mutates the session, and
// returns the side-effect commands the host must execute. Events that are
// not legal in the current state leave the machine untouched and return
// no commands, which is how late or duplicate signals are shed.
//
// Machine is not safe for concurrent use; the Orchestrator serializes
// access to it.
type Machine struct {
	local   PeerInfo
	session *CallSession
	now     func() time.Time
}

// NewMachine creates a state machine for the given local participant.
func NewMachine(local PeerInfo) *Machine {
	return &Machine{
		local: local,
		now:   time.Now,
	}
}

// State returns the current lifecycle state. With no session the machine
// is Idle.
func (m *Machine) State() State {
	if m.session == nil {
		return StateIdle
	}
	return m.session.state
}

// Session returns the current session, or nil when Idle.
func (m *Machine) Session() *CallSession {
	return m.session
}

// Snapshot returns a read-only copy of the current session. The zero
// Snapshot (State Idle) is returned when no session exists.
func (m *Machine) Snapshot() Snapshot {
	if m.session == nil {
		return Snapshot{State: StateIdle}
	}
	return m.session.snapshot()
}

// Handle processes one event and returns the resulting state along with
// the side-effect commands to execute. A nil command slice means the
// event was dropped or was a no-op.
func (m *Machine) Handle(ev Event) (State, []Command) {
	switch m.State() {
	case StateIdle:
		return m.handleIdle(ev)
	case StateOutgoing:
		return m.handleOutgoing(ev)
	case StateIncomingRinging:
		return m.handleIncomingRinging(ev)
	case StateActive:
		return m.handleActive(ev)
	default:
		return m.State(), nil
	}
}

func (m *Machine) handleIdle(ev Event) (State, []Command) {
	switch ev.Type {
	case EventInitiate:
		if ev.Peer.ID == "" || ev.Peer.ID == m.local.ID {
			return StateIdle, nil
		}
		m.session = newCallSession(m.local, ev.Peer)
		m.session.state = StateOutgoing
		return StateOutgoing, []Command{
			SendSignal{Kind: SignalInitiate},
			StartRingtone{Ringtone: RingtoneOutgoing},
		}

	case EventSignalIncoming:
		if ev.Peer.ID == "" {
			return StateIdle, nil
		}
		m.session = newCallSession(m.local, ev.Peer)
		m.session.state = StateIncomingRinging
		return StateIncomingRinging, []Command{
			StartRingtone{Ringtone: RingtoneIncoming},
		}
	}

	// end is a no-op from Idle; every other event is stale and dropped.
	return StateIdle, nil
}

func (m *Machine) handleOutgoing(ev Event) (State, []Command) {
	switch ev.Type {
	case EventSignalAccepted:
		m.session.state = StateActive
		m.session.startedAt = m.now()
		return StateActive, []Command{
			StopRingtone{Ringtone: RingtoneOutgoing},
			BeginMediaJoin{},
			StartDurationTimer{},
		}

	case EventSignalRejected:
		m.session = nil
		return StateIdle, []Command{
			StopRingtone{Ringtone: RingtoneOutgoing},
			ClearSession{},
		}

	case EventEnd, EventSignalEnded:
		cmds := []Command{
			StopRingtone{Ringtone: RingtoneOutgoing},
		}
		if ev.Type == EventEnd {
			cmds = append(cmds, SendSignal{Kind: SignalEnded})
		}
		cmds = append(cmds, ClearSession{})
		m.session = nil
		return StateIdle, cmds
	}

	return StateOutgoing, nil
}

func (m *Machine) handleIncomingRinging(ev Event) (State, []Command) {
	switch ev.Type {
	case EventAccept:
		m.session.state = StateActive
		m.session.startedAt = m.now()
		return StateActive, []Command{
			StopRingtone{Ringtone: RingtoneIncoming},
			SendSignal{Kind: SignalAccepted},
			BeginMediaJoin{},
			StartDurationTimer{},
		}

	case EventReject:
		m.session = nil
		return StateIdle, []Command{
			StopRingtone{Ringtone: RingtoneIncoming},
			SendSignal{Kind: SignalRejected},
			ClearSession{},
		}

	case EventEnd, EventSignalEnded, EventSignalRejected:
		// The caller hung up first, or we are hanging up before
		// answering. A stray call-rejected here is a termination
		// signal too and is never overridden.
		cmds := []Command{
			StopRingtone{Ringtone: RingtoneIncoming},
		}
		if ev.Type == EventEnd {
			cmds = append(cmds, SendSignal{Kind: SignalEnded})
		}
		cmds = append(cmds, ClearSession{})
		m.session = nil
		return StateIdle, cmds
	}

	return StateIncomingRinging, nil
}

func (m *Machine) handleActive(ev Event) (State, []Command) {
	switch ev.Type {
	case EventSignalAccepted:
		// Idempotent: a duplicate acceptance must not trigger a second
		// media join or any state change.
		return StateActive, nil

	case EventEnd, EventSignalEnded, EventSignalRejected:
		// Termination signals always win while Active.
		cmds := []Command{
			LeaveMedia{},
			StopDurationTimer{},
		}
		if ev.Type == EventEnd {
			cmds = append(cmds, SendSignal{Kind: SignalEnded})
		}
		cmds = append(cmds, ClearSession{})
		m.session = nil
		return StateIdle, cmds
	}

	return StateActive, nil
}

// SetDeviceFlags records the mic and speaker toggle state on the current
// session. Device flags are independent of the lifecycle state; with no
// session this is a no-op.
func (m *Machine) SetDeviceFlags(mic, speaker bool) {
	if m.session == nil {
		return
	}
	m.session.micEnabled = mic
	m.session.speakerEnabled = speaker
}

// SetMediaToken records the credential granted for the identified
// session's media join. It reports false when that session has already
// ended, in which case nothing is recorded.
func (m *Machine) SetMediaToken(sessionID uuid.UUID, token string) bool {
	if m.session == nil || m.session.id != sessionID {
		return false
	}
	m.session.mediaToken = token
	return true
}

// MarkDegraded flags the identified session as running without media.
// It reports false when that session has already ended, which is how a
// late media failure from a cancelled join is discarded.
func (m *Machine) MarkDegraded(sessionID uuid.UUID) bool {
	if m.session == nil || m.session.id != sessionID {
		return false
	}
	m.session.degraded = true
	return true
}

// setTime injects a clock for deterministic tests.
func (m *Machine) setTime(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.now = now
}

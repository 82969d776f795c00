package callkit

import (
	"math/rand"
	"testing"
	"time"
)

func newTestMachine() *Machine {
	return NewMachine(PeerInfo{ID: "u1", DisplayName: "Alice"})
}

func remotePeer() PeerInfo {
	return PeerInfo{ID: "u2", DisplayName: "Bob"}
}

// hasCommand reports whether cmds contains a command of the same concrete
// type and value as want.
func hasCommand(cmds []Command, want Command) bool {
	for _, c := range cmds {
		if c == want {
			return true
		}
	}
	return false
}

func TestMachineInitialState(t *testing.T) {
	m := newTestMachine()
	if m.State() != StateIdle {
		t.Errorf("Expected initial state Idle, got %s", m.State())
	}
	if m.Session() != nil {
		t.Error("Expected no session initially")
	}
}

func TestInitiateFromIdle(t *testing.T) {
	m := newTestMachine()
	state, cmds := m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})

	if state != StateOutgoing {
		t.Errorf("Expected Outgoing, got %s", state)
	}
	if !hasCommand(cmds, SendSignal{Kind: SignalInitiate}) {
		t.Error("Expected call-initiate signal command")
	}
	if !hasCommand(cmds, StartRingtone{Ringtone: RingtoneOutgoing}) {
		t.Error("Expected outgoing ringtone start command")
	}

	snap := m.Snapshot()
	if snap.ChannelName != "call_u1_u2" {
		t.Errorf("Expected channel name call_u1_u2, got %s", snap.ChannelName)
	}
	if snap.MediaUID == 0 {
		t.Error("Expected non-zero media uid")
	}
	if !snap.MicEnabled || !snap.SpeakerEnabled {
		t.Error("Expected device flags to default to enabled")
	}
}

func TestIncomingFromIdle(t *testing.T) {
	m := newTestMachine()
	caller := PeerInfo{ID: "u3", DisplayName: "Carol", AvatarRef: "avatars/carol"}
	state, cmds := m.Handle(Event{Type: EventSignalIncoming, Peer: caller})

	if state != StateIncomingRinging {
		t.Errorf("Expected IncomingRinging, got %s", state)
	}
	if !hasCommand(cmds, StartRingtone{Ringtone: RingtoneIncoming}) {
		t.Error("Expected incoming ringtone start command")
	}

	snap := m.Snapshot()
	if snap.RemotePeer.ID != "u3" || snap.RemotePeer.DisplayName != "Carol" {
		t.Errorf("Expected caller metadata stored, got %+v", snap.RemotePeer)
	}
}

func TestAcceptedWhileOutgoing(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	state, cmds := m.Handle(Event{Type: EventSignalAccepted})

	if state != StateActive {
		t.Errorf("Expected Active, got %s", state)
	}
	if !hasCommand(cmds, StopRingtone{Ringtone: RingtoneOutgoing}) {
		t.Error("Expected outgoing ringtone stop")
	}
	if !hasCommand(cmds, BeginMediaJoin{}) {
		t.Error("Expected media join command")
	}
	if !hasCommand(cmds, StartDurationTimer{}) {
		t.Error("Expected duration timer start")
	}
	if m.Snapshot().StartedAt.IsZero() {
		t.Error("Expected startedAt to be set on entering Active")
	}
}

func TestRejectedWhileOutgoing(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	state, cmds := m.Handle(Event{Type: EventSignalRejected})

	if state != StateIdle {
		t.Errorf("Expected Idle, got %s", state)
	}
	if !hasCommand(cmds, StopRingtone{Ringtone: RingtoneOutgoing}) {
		t.Error("Expected outgoing ringtone stop")
	}
	if !hasCommand(cmds, ClearSession{}) {
		t.Error("Expected session clear")
	}
	if hasCommand(cmds, BeginMediaJoin{}) {
		t.Error("Rejection must not trigger a media join")
	}
	if m.Session() != nil {
		t.Error("Expected session to be destroyed")
	}
}

func TestLocalEndWhileOutgoing(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	state, cmds := m.Handle(Event{Type: EventEnd})

	if state != StateIdle {
		t.Errorf("Expected Idle, got %s", state)
	}
	if !hasCommand(cmds, SendSignal{Kind: SignalEnded}) {
		t.Error("Expected call-ended signal on local hangup")
	}
}

func TestAcceptWhileIncomingRinging(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventSignalIncoming, Peer: remotePeer()})
	state, cmds := m.Handle(Event{Type: EventAccept})

	if state != StateActive {
		t.Errorf("Expected Active, got %s", state)
	}
	if !hasCommand(cmds, SendSignal{Kind: SignalAccepted}) {
		t.Error("Expected call-accepted signal")
	}
	if !hasCommand(cmds, StopRingtone{Ringtone: RingtoneIncoming}) {
		t.Error("Expected incoming ringtone stop")
	}
	if !hasCommand(cmds, BeginMediaJoin{}) {
		t.Error("Expected media join command")
	}
}

func TestRejectWhileIncomingRinging(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventSignalIncoming, Peer: remotePeer()})
	state, cmds := m.Handle(Event{Type: EventReject})

	if state != StateIdle {
		t.Errorf("Expected Idle, got %s", state)
	}
	if !hasCommand(cmds, SendSignal{Kind: SignalRejected}) {
		t.Error("Expected call-rejected signal")
	}
	if m.Session() != nil {
		t.Error("Expected session to be destroyed")
	}
}

func TestCallerHangupWhileIncomingRinging(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventSignalIncoming, Peer: remotePeer()})
	state, cmds := m.Handle(Event{Type: EventSignalEnded})

	if state != StateIdle {
		t.Errorf("Expected Idle, got %s", state)
	}
	if !hasCommand(cmds, StopRingtone{Ringtone: RingtoneIncoming}) {
		t.Error("Expected incoming ringtone stop")
	}
	if hasCommand(cmds, SendSignal{Kind: SignalEnded}) {
		t.Error("Remote hangup must not be echoed back")
	}
}

func TestActiveTeardown(t *testing.T) {
	tests := []struct {
		name       string
		event      EventType
		expectSend bool
	}{
		{"local end", EventEnd, true},
		{"remote ended", EventSignalEnded, false},
		{"late rejection wins", EventSignalRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine()
			m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
			m.Handle(Event{Type: EventSignalAccepted})

			state, cmds := m.Handle(Event{Type: tt.event})
			if state != StateIdle {
				t.Errorf("Expected Idle, got %s", state)
			}
			if !hasCommand(cmds, LeaveMedia{}) {
				t.Error("Expected media leave on teardown")
			}
			if !hasCommand(cmds, StopDurationTimer{}) {
				t.Error("Expected duration timer stop")
			}
			if got := hasCommand(cmds, SendSignal{Kind: SignalEnded}); got != tt.expectSend {
				t.Errorf("SendSignal(ended) = %v, want %v", got, tt.expectSend)
			}
		})
	}
}

func TestDuplicateAcceptedIsIdempotent(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	m.Handle(Event{Type: EventSignalAccepted})

	state, cmds := m.Handle(Event{Type: EventSignalAccepted})
	if state != StateActive {
		t.Errorf("Expected Active, got %s", state)
	}
	if len(cmds) != 0 {
		t.Errorf("Expected no commands for duplicate acceptance, got %d", len(cmds))
	}
}

func TestRejectedAfterAcceptedRace(t *testing.T) {
	// Both signals were in flight; whichever lands second is validated
	// against the state the first one produced. Termination always
	// forces teardown.
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	m.Handle(Event{Type: EventSignalAccepted})
	state, _ := m.Handle(Event{Type: EventSignalRejected})

	if state != StateIdle {
		t.Errorf("Expected Idle after late rejection, got %s", state)
	}
}

func TestAcceptedAfterTeardownIsDropped(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	m.Handle(Event{Type: EventSignalRejected})

	state, cmds := m.Handle(Event{Type: EventSignalAccepted})
	if state != StateIdle {
		t.Errorf("Stale acceptance must not resurrect the call, got %s", state)
	}
	if len(cmds) != 0 {
		t.Error("Stale acceptance must produce no commands")
	}
}

func TestIncomingWhileBusyIsDropped(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})

	state, cmds := m.Handle(Event{Type: EventSignalIncoming, Peer: PeerInfo{ID: "u9"}})
	if state != StateOutgoing {
		t.Errorf("Expected Outgoing preserved, got %s", state)
	}
	if len(cmds) != 0 {
		t.Error("Second incoming call must be dropped")
	}
	if m.Snapshot().RemotePeer.ID != "u2" {
		t.Error("Original session must be untouched")
	}
}

func TestEndFromIdleIsNoOp(t *testing.T) {
	m := newTestMachine()
	state, cmds := m.Handle(Event{Type: EventEnd})
	if state != StateIdle || len(cmds) != 0 {
		t.Error("end from Idle must be a no-op")
	}
}

func TestInitiateValidation(t *testing.T) {
	m := newTestMachine()

	state, _ := m.Handle(Event{Type: EventInitiate, Peer: PeerInfo{}})
	if state != StateIdle {
		t.Error("Initiate without a peer id must be dropped")
	}

	state, _ = m.Handle(Event{Type: EventInitiate, Peer: PeerInfo{ID: "u1"}})
	if state != StateIdle {
		t.Error("Initiate to self must be dropped")
	}
}

// TestActiveOnlyViaRinging feeds random event sequences and verifies the
// machine never enters Active without having passed through Outgoing or
// IncomingRinging first.
func TestActiveOnlyViaRinging(t *testing.T) {
	events := []Event{
		{Type: EventInitiate, Peer: remotePeer()},
		{Type: EventAccept},
		{Type: EventReject},
		{Type: EventEnd},
		{Type: EventSignalIncoming, Peer: PeerInfo{ID: "u5"}},
		{Type: EventSignalAccepted},
		{Type: EventSignalRejected},
		{Type: EventSignalEnded},
	}

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		m := newTestMachine()
		prev := StateIdle
		for i := 0; i < 50; i++ {
			state, _ := m.Handle(events[rng.Intn(len(events))])
			if state == StateActive && prev == StateIdle {
				t.Fatalf("round %d: entered Active directly from Idle", round)
			}
			prev = state
		}
	}
}

// TestMediaUIDRegeneratedPerSession verifies channel name and media uid
// are not reused across sessions with the same peer.
func TestMediaUIDRegeneratedPerSession(t *testing.T) {
	m := newTestMachine()

	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	first := m.Snapshot()
	m.Handle(Event{Type: EventEnd})

	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	second := m.Snapshot()

	if first.SessionID == second.SessionID {
		t.Error("Expected a fresh session id per attempt")
	}
	if first.MediaUID == second.MediaUID {
		t.Error("Expected media uid to be regenerated per session")
	}
}

func TestSetMediaTokenScopedToSession(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	m.Handle(Event{Type: EventSignalAccepted})

	id := m.Snapshot().SessionID
	if !m.SetMediaToken(id, "tok-1") {
		t.Fatal("Expected token recorded for the live session")
	}
	if m.Snapshot().MediaToken != "tok-1" {
		t.Errorf("Expected tok-1 in snapshot, got %q", m.Snapshot().MediaToken)
	}

	m.Handle(Event{Type: EventEnd})
	if m.SetMediaToken(id, "tok-2") {
		t.Error("Recording a token on an ended session must be rejected")
	}
}

func TestMarkDegradedIgnoresEndedSession(t *testing.T) {
	m := newTestMachine()
	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	old := m.Snapshot().SessionID
	m.Handle(Event{Type: EventEnd})

	if m.MarkDegraded(old) {
		t.Error("Degrading an ended session must be rejected")
	}
}

func TestMachineClockInjection(t *testing.T) {
	m := newTestMachine()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.setTime(func() time.Time { return fixed })

	m.Handle(Event{Type: EventInitiate, Peer: remotePeer()})
	m.Handle(Event{Type: EventSignalAccepted})

	if !m.Snapshot().StartedAt.Equal(fixed) {
		t.Errorf("Expected startedAt %v, got %v", fixed, m.Snapshot().StartedAt)
	}
}

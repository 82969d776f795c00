package callkit

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State represents the signaling lifecycle state of a call session.
type State int

const (
	// StateIdle indicates no call is in progress.
	StateIdle State = iota
	// StateOutgoing indicates a locally initiated call awaiting the remote answer.
	StateOutgoing
	// StateIncomingRinging indicates a remote call awaiting the local answer.
	StateIncomingRinging
	// StateActive indicates an established call.
	StateActive
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOutgoing:
		return "Outgoing"
	case StateIncomingRinging:
		return "IncomingRinging"
	case StateActive:
		return "Active"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IsIdle reports whether the state is the terminal Idle state.
func (s State) IsIdle() bool {
	return s == StateIdle
}

// PeerInfo identifies a call participant.
//
// ID is the opaque participant identifier used for channel-name derivation
// and signaling addressing. DisplayName and AvatarRef are presentation
// metadata and may be empty.
type PeerInfo struct {
	ID          string
	DisplayName string
	AvatarRef   string
}

// CallSession is the mutable aggregate for one call attempt.
//
// A session is created when a call is initiated or an incoming-call signal
// arrives, and destroyed when the lifecycle returns to Idle. It is
// exclusively owned and mutated by the Machine; all other components see
// read-only Snapshot copies.
type CallSession struct {
	id          uuid.UUID
	state       State
	local       PeerInfo
	remote      PeerInfo
	channelName string
	mediaUID    uint32
	mediaToken  string
	startedAt   time.Time
	micEnabled     bool
	speakerEnabled bool
	degraded       bool
}

func newCallSession(local, remote PeerInfo) *CallSession {
	return &CallSession{
		id:             uuid.New(),
		state:          StateIdle,
		local:          local,
		remote:         remote,
		channelName:    ChannelName(local.ID, remote.ID),
		mediaUID:       NewMediaUID(),
		micEnabled:     true,
		speakerEnabled: true,
	}
}

// Snapshot is a read-only copy of a CallSession handed to collaborators.
type Snapshot struct {
	SessionID      uuid.UUID
	State          State
	LocalPeer      PeerInfo
	RemotePeer     PeerInfo
	ChannelName    string
	MediaUID       uint32
	MediaToken     string
	StartedAt      time.Time
	MicEnabled     bool
	SpeakerEnabled bool
	Degraded       bool
}

func (s *CallSession) snapshot() Snapshot {
	return Snapshot{
		SessionID:      s.id,
		State:          s.state,
		LocalPeer:      s.local,
		RemotePeer:     s.remote,
		ChannelName:    s.channelName,
		MediaUID:       s.mediaUID,
		MediaToken:     s.mediaToken,
		StartedAt:      s.startedAt,
		MicEnabled:     s.micEnabled,
		SpeakerEnabled: s.speakerEnabled,
		Degraded:       s.degraded,
	}
}

// ChannelName derives the media channel name for a pair of peers.
//
// Both sides compute an identical value independently, without
// negotiation, which is what lets the media engine join succeed without
// an extra signaling round trip.
func ChannelName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "call_" + a + "_" + b
}

// NewMediaUID generates a random positive media stream identifier.
//
// The value is regenerated for every session and is never zero: engines
// commonly treat uid 0 as "assign one for me", which would break the
// per-session uniqueness the join contract requires.
func NewMediaUID() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; fall back to a time-derived value rather than panic.
		return uint32(time.Now().UnixNano())&0x7fffffff | 1
	}
	uid := binary.BigEndian.Uint32(buf[:]) & 0x7fffffff
	if uid == 0 {
		uid = 1
	}
	return uid
}

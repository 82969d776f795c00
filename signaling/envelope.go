// Package signaling maps call signaling events between the shared wire
// channel and state machine inputs.
//
// The package is a pure mapping boundary: it deserializes channel
// payloads, drops malformed ones without surfacing errors into the state
// machine, and serializes outbound signals stamped with the local
// session's peer ids and channel name. It holds no call state of its own.
package signaling

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope is the flat JSON record every signaling event travels in.
//
// Wire format:
//
//	{"type":"call-accepted","caller_id":"u1","recipient_id":"u2",
//	 "channel_name":"call_u1_u2","timestamp":"..."}
//
// CallerID and RecipientID are populated from whichever side of the
// original pairing the sender occupies, not necessarily the literal call
// initiator. CallerName and CallerAvatar are only meaningful on
// incoming-call announcements.
type Envelope struct {
	Type         string    `json:"type"`
	CallerID     string    `json:"caller_id"`
	CallerName   string    `json:"caller_name,omitempty"`
	CallerAvatar string    `json:"caller_avatar,omitempty"`
	RecipientID  string    `json:"recipient_id,omitempty"`
	ChannelName  string    `json:"channel_name,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Encode converts an Envelope to bytes for transmission.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("envelope is nil")
	}
	if env.Type == "" {
		return nil, errors.New("envelope type is empty")
	}
	return json.Marshal(env)
}

// Decode converts bytes to an Envelope.
func Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, errors.New("envelope payload is empty")
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, errors.New("envelope type is empty")
	}
	return &env, nil
}

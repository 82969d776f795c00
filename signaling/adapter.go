package signaling

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/telespan/callkit"
)

// Sink receives the state machine inputs the adapter produces. The
// callkit Orchestrator satisfies it.
type Sink interface {
	Deliver(ev callkit.Event)
	NoteTransportError(err error)
}

// Adapter is the mapping boundary between the wire channel and the call
// state machine. It validates inbound envelopes and drops malformed ones
// silently: a bad payload must never crash or desynchronize the
// lifecycle.
type Adapter struct {
	local   callkit.PeerInfo
	channel Channel
}

// NewAdapter creates an adapter for the given local participant and
// channel.
func NewAdapter(local callkit.PeerInfo, channel Channel) (*Adapter, error) {
	if local.ID == "" {
		return nil, errors.New("local peer id cannot be empty")
	}
	if channel == nil {
		return nil, errors.New("channel cannot be nil")
	}
	return &Adapter{local: local, channel: channel}, nil
}

// SendSignal serializes and transmits an outbound signaling event for the
// given session snapshot. It implements callkit.Signaler.
func (a *Adapter) SendSignal(ctx context.Context, kind callkit.SignalKind, session callkit.Snapshot) error {
	env := &Envelope{
		Type:        string(kind),
		CallerID:    a.local.ID,
		RecipientID: session.RemotePeer.ID,
		ChannelName: session.ChannelName,
		Timestamp:   time.Now(),
	}
	if kind == callkit.SignalInitiate {
		// The callee renders the caller before any directory lookup,
		// so the invite carries presentation metadata.
		env.CallerName = a.local.DisplayName
		env.CallerAvatar = a.local.AvatarRef
	}

	data, err := Encode(env)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Adapter.SendSignal",
		"type":         env.Type,
		"recipient_id": env.RecipientID,
		"channel_name": env.ChannelName,
	}).Debug("Sending signaling event")

	return a.channel.Send(ctx, data)
}

// Run pumps inbound payloads from the channel into the sink until the
// context is cancelled or the channel closes. Transport errors are
// forwarded to the sink as degradation notices.
func (a *Adapter) Run(ctx context.Context, sink Sink) {
	logrus.WithFields(logrus.Fields{
		"function":      "Adapter.Run",
		"local_peer_id": a.local.ID,
	}).Info("Signaling adapter started")

	recv := a.channel.Receive()
	errs := a.channel.Errors()

	for {
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "Adapter.Run",
			}).Info("Signaling adapter stopped")
			return

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			sink.NoteTransportError(err)

		case data, ok := <-recv:
			if !ok {
				logrus.WithFields(logrus.Fields{
					"function": "Adapter.Run",
				}).Info("Signaling channel closed")
				return
			}
			if ev, ok := a.mapInbound(data); ok {
				sink.Deliver(ev)
			}
		}
	}
}

// mapInbound converts one raw payload to a state machine event. The
// second return is false when the payload fails closed: undecodable,
// unknown type, missing the relevant peer id, or addressed elsewhere.
func (a *Adapter) mapInbound(data []byte) (callkit.Event, bool) {
	env, err := Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Adapter.mapInbound",
			"error":    err.Error(),
		}).Debug("Dropping malformed signaling payload")
		return callkit.Event{}, false
	}

	if env.CallerID == "" {
		logrus.WithFields(logrus.Fields{
			"function": "Adapter.mapInbound",
			"type":     env.Type,
		}).Debug("Dropping signaling payload: missing peer id")
		return callkit.Event{}, false
	}
	if env.CallerID == a.local.ID {
		// Our own event echoed back by a broadcast transport.
		return callkit.Event{}, false
	}
	if env.RecipientID != "" && env.RecipientID != a.local.ID {
		return callkit.Event{}, false
	}

	switch callkit.SignalKind(env.Type) {
	case callkit.SignalInitiate, callkit.SignalIncoming:
		return callkit.Event{
			Type: callkit.EventSignalIncoming,
			Peer: callkit.PeerInfo{
				ID:          env.CallerID,
				DisplayName: env.CallerName,
				AvatarRef:   env.CallerAvatar,
			},
		}, true
	case callkit.SignalAccepted:
		return callkit.Event{Type: callkit.EventSignalAccepted}, true
	case callkit.SignalRejected:
		return callkit.Event{Type: callkit.EventSignalRejected}, true
	case callkit.SignalEnded:
		return callkit.Event{Type: callkit.EventSignalEnded}, true
	}

	logrus.WithFields(logrus.Fields{
		"function": "Adapter.mapInbound",
		"type":     env.Type,
	}).Debug("Dropping signaling payload: unknown type")
	return callkit.Event{}, false
}

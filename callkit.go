package callkit

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Signaler emits outbound signaling events for the current session.
// The Orchestrator never touches the wire format; it hands the adapter a
// session snapshot and the event kind to send.
type Signaler interface {
	SendSignal(ctx context.Context, kind SignalKind, session Snapshot) error
}

// MediaSession sequences the media engine through the call lifecycle.
//
// BeginJoin runs the full ensure-engine, fetch-token, join-channel
// sequence; on success it returns the granted token, otherwise the stage
// error that means the call must proceed without media. Leave,
// SetMicEnabled and SetSpeakerRoute are fire-and-forget: implementations
// absorb and log their own failures.
type MediaSession interface {
	BeginJoin(ctx context.Context, channelName string, uid uint32) (string, error)
	Leave()
	SetMicEnabled(enabled bool)
	SetSpeakerRoute(enabled bool)
}

// Ringer plays the two scoped ringtone resources. Implementations absorb
// device failures; a broken speaker must never block a transition.
type Ringer interface {
	StartOutgoing()
	StopOutgoing()
	StartIncoming()
	StopIncoming()
}

// Options configures an Orchestrator.
type Options struct {
	// Local identifies this participant. Local.ID is required.
	Local PeerInfo

	// Signaler, Media and Ringer are the side-effect ports. All three
	// are required.
	Signaler Signaler
	Media    MediaSession
	Ringer   Ringer

	// Time overrides the clock for deterministic tests. Nil selects the
	// system clock.
	Time TimeProvider
}

// Orchestrator drives a single peer-to-peer call lifecycle.
//
// It owns the state machine and serializes every input — local user
// actions and remote signaling events alike — so that one transition runs
// to completion, side effects included, before the next is accepted. Media
// join sequencing is the one exception: the signaling transition completes
// synchronously and the join runs behind it, cancelled automatically if
// the session ends first.
type Orchestrator struct {
	mu      sync.Mutex
	machine *Machine
	timer   *DurationTimer

	signaler Signaler
	media    MediaSession
	ringer   Ringer

	running    bool
	joinCancel context.CancelFunc

	// lastSnapshot is the most recent non-Idle session view, used to
	// stamp outbound signals during teardown transitions after the
	// machine has already cleared the session.
	lastSnapshot Snapshot

	onStateChange func(State)
	onIncoming    func(PeerInfo)
	onDegraded    func(error)
}

// New creates an Orchestrator from the given options.
func New(opts Options) (*Orchestrator, error) {
	logrus.WithFields(logrus.Fields{
		"function":      "New",
		"local_peer_id": opts.Local.ID,
	}).Info("Creating call orchestrator")

	if opts.Local.ID == "" {
		return nil, errors.New("local peer id cannot be empty")
	}
	if opts.Signaler == nil {
		return nil, errors.New("signaler cannot be nil")
	}
	if opts.Media == nil {
		return nil, errors.New("media session cannot be nil")
	}
	if opts.Ringer == nil {
		return nil, errors.New("ringer cannot be nil")
	}

	machine := NewMachine(opts.Local)
	if opts.Time != nil {
		machine.setTime(opts.Time.Now)
	}

	return &Orchestrator{
		machine:  machine,
		timer:    NewDurationTimer(opts.Time),
		signaler: opts.Signaler,
		media:    opts.Media,
		ringer:   opts.Ringer,
	}, nil
}

// Start enables event processing. It must be called before any call
// operation.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrAlreadyRunning
	}
	o.running = true

	logrus.WithFields(logrus.Fields{
		"function": "Orchestrator.Start",
	}).Info("Call orchestrator started")
	return nil
}

// Stop ends any call in progress and disables event processing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	state := o.machine.State()
	o.mu.Unlock()

	if state != StateIdle {
		o.process(context.Background(), Event{Type: EventEnd})
	}

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Orchestrator.Stop",
	}).Info("Call orchestrator stopped")
}

// IsRunning reports whether the orchestrator accepts events.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Initiate places a call to the given peer. The local side transitions to
// Outgoing, the outgoing ringtone starts, and a call-initiate signal is
// sent.
func (o *Orchestrator) Initiate(ctx context.Context, peer PeerInfo) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	if o.machine.State() != StateIdle {
		o.mu.Unlock()
		return ErrCallAlreadyActive
	}
	o.mu.Unlock()

	if peer.ID == "" {
		return errors.New("remote peer id cannot be empty")
	}

	logrus.WithFields(logrus.Fields{
		"function":       "Orchestrator.Initiate",
		"remote_peer_id": peer.ID,
	}).Info("Initiating call")

	o.process(ctx, Event{Type: EventInitiate, Peer: peer})
	return nil
}

// Accept answers the currently ringing incoming call.
func (o *Orchestrator) Accept(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	if o.machine.State() != StateIncomingRinging {
		o.mu.Unlock()
		return ErrNoIncomingCall
	}
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Orchestrator.Accept",
	}).Info("Accepting incoming call")

	o.process(ctx, Event{Type: EventAccept})
	return nil
}

// Reject declines the currently ringing incoming call.
func (o *Orchestrator) Reject(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	if o.machine.State() != StateIncomingRinging {
		o.mu.Unlock()
		return ErrNoIncomingCall
	}
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Orchestrator.Reject",
	}).Info("Rejecting incoming call")

	o.process(ctx, Event{Type: EventReject})
	return nil
}

// End hangs up from any non-Idle state. From Idle it is a no-op.
func (o *Orchestrator) End(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Orchestrator.End",
	}).Info("Ending call")

	o.process(ctx, Event{Type: EventEnd})
	return nil
}

// Deliver feeds a remote signaling event into the state machine. The
// signaling adapter calls this for every decoded inbound event; events
// that are invalid for the current state are dropped silently.
func (o *Orchestrator) Deliver(ev Event) {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if !running {
		logrus.WithFields(logrus.Fields{
			"function": "Orchestrator.Deliver",
			"event":    ev.Type.String(),
		}).Debug("Dropping signal: orchestrator not running")
		return
	}
	o.process(context.Background(), ev)
}

// NoteTransportError records a signaling channel failure. An Active call
// is marked degraded rather than terminated: only explicit termination
// signals may end a call, so a transport blip never produces a spurious
// hangup on one side only.
func (o *Orchestrator) NoteTransportError(err error) {
	o.mu.Lock()

	logrus.WithFields(logrus.Fields{
		"function": "Orchestrator.NoteTransportError",
		"error":    err,
		"state":    o.machine.State().String(),
	}).Warn("Signaling transport error")

	degraded := false
	if o.machine.State() == StateActive {
		snap := o.machine.Snapshot()
		degraded = o.machine.MarkDegraded(snap.SessionID)
	}
	fn := o.onDegraded
	o.mu.Unlock()

	if degraded && fn != nil {
		fn(err)
	}
}

// SetMicEnabled toggles the local microphone. The flag is recorded on the
// session and forwarded to the media engine; engine failures are absorbed
// by the controller.
func (o *Orchestrator) SetMicEnabled(enabled bool) {
	o.mu.Lock()
	snap := o.machine.Snapshot()
	o.machine.SetDeviceFlags(enabled, snap.SpeakerEnabled)
	o.mu.Unlock()

	o.media.SetMicEnabled(enabled)
}

// SetSpeakerEnabled toggles the speakerphone route. The flag is recorded
// on the session and forwarded to the media engine.
func (o *Orchestrator) SetSpeakerEnabled(enabled bool) {
	o.mu.Lock()
	snap := o.machine.Snapshot()
	o.machine.SetDeviceFlags(snap.MicEnabled, enabled)
	o.mu.Unlock()

	o.media.SetSpeakerRoute(enabled)
}

// Snapshot returns a read-only view of the current session for rendering.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.machine.Snapshot()
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.machine.State()
}

// Elapsed returns the elapsed seconds of the Active call, or zero.
func (o *Orchestrator) Elapsed() int {
	return o.timer.Elapsed()
}

// OnStateChange registers a callback invoked after every state
// transition. Pass nil to unregister.
func (o *Orchestrator) OnStateChange(fn func(State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onStateChange = fn
}

// OnIncomingCall registers a callback invoked when a remote peer rings
// this participant. Pass nil to unregister.
func (o *Orchestrator) OnIncomingCall(fn func(PeerInfo)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onIncoming = fn
}

// OnDegraded registers a callback invoked when a call continues in
// signaling-only mode after a media or transport failure. Pass nil to
// unregister.
func (o *Orchestrator) OnDegraded(fn func(error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onDegraded = fn
}

// OnTick registers a callback invoked once per second with the elapsed
// call duration while Active. Pass nil to unregister.
func (o *Orchestrator) OnTick(fn func(seconds int)) {
	o.timer.OnTick(fn)
}

// process runs one event through the machine and executes the resulting
// commands. The lock is held for the whole transition so no two
// transitions ever interleave.
func (o *Orchestrator) process(ctx context.Context, ev Event) {
	o.mu.Lock()

	before := o.machine.State()
	state, cmds := o.machine.Handle(ev)

	if len(cmds) == 0 && state == before {
		o.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Orchestrator.process",
			"event":    ev.Type.String(),
			"state":    state.String(),
		}).Debug("Event dropped: invalid for current state")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Orchestrator.process",
		"event":    ev.Type.String(),
		"from":     before.String(),
		"to":       state.String(),
		"commands": len(cmds),
	}).Info("Call state transition")

	// Snapshot taken after the transition so commands see the new state.
	// For teardown transitions the session is already gone; outbound
	// signals for those are stamped from the pre-transition snapshot.
	snap := o.machine.Snapshot()
	if snap.State == StateIdle {
		snap = o.lastSnapshot
	}

	for _, cmd := range cmds {
		o.execute(ctx, cmd, snap)
	}
	if o.machine.State() != StateIdle {
		o.lastSnapshot = o.machine.Snapshot()
	}

	incoming := o.onIncoming
	stateChange := o.onStateChange
	o.mu.Unlock()

	// Callbacks run outside the lock so they may re-enter the
	// orchestrator (accept from the incoming-call prompt, for example).
	if state != before {
		if ev.Type == EventSignalIncoming && incoming != nil {
			incoming(ev.Peer)
		}
		if stateChange != nil {
			stateChange(state)
		}
	}
}

// execute performs one side-effect command. Must be called with o.mu held.
func (o *Orchestrator) execute(ctx context.Context, cmd Command, snap Snapshot) {
	switch c := cmd.(type) {
	case SendSignal:
		if err := o.signaler.SendSignal(ctx, c.Kind, snap); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Orchestrator.execute",
				"kind":     string(c.Kind),
				"error":    err.Error(),
			}).Warn("Failed to send signaling event")
		}

	case StartRingtone:
		if c.Ringtone == RingtoneOutgoing {
			o.ringer.StartOutgoing()
		} else {
			o.ringer.StartIncoming()
		}

	case StopRingtone:
		if c.Ringtone == RingtoneOutgoing {
			o.ringer.StopOutgoing()
		} else {
			o.ringer.StopIncoming()
		}

	case BeginMediaJoin:
		o.beginMediaJoin(snap)

	case LeaveMedia:
		// Cancel any in-flight join first, so a join parked behind the
		// controller lock aborts instead of joining after the leave.
		if o.joinCancel != nil {
			o.joinCancel()
			o.joinCancel = nil
		}
		o.media.Leave()

	case StartDurationTimer:
		o.timer.Start()

	case StopDurationTimer:
		o.timer.Stop()

	case ClearSession:
		if o.joinCancel != nil {
			o.joinCancel()
			o.joinCancel = nil
		}
	}
}

// beginMediaJoin launches the asynchronous token-fetch and engine join
// sequence. The signaling transition has already completed; only the
// media side effects lag behind. Must be called with o.mu held.
func (o *Orchestrator) beginMediaJoin(snap Snapshot) {
	ctx, cancel := context.WithCancel(context.Background())
	o.joinCancel = cancel

	logrus.WithFields(logrus.Fields{
		"function":     "Orchestrator.beginMediaJoin",
		"channel_name": snap.ChannelName,
		"media_uid":    snap.MediaUID,
	}).Debug("Starting media join sequence")

	go func() {
		token, err := o.media.BeginJoin(ctx, snap.ChannelName, snap.MediaUID)
		if err == nil {
			o.mu.Lock()
			recorded := o.machine.SetMediaToken(snap.SessionID, token)
			cur := o.machine.Snapshot()
			o.mu.Unlock()
			if !recorded {
				// The session ended between the join completing and
				// this apply; teardown already left the channel.
				return
			}
			// Re-apply the session's current flags, not the ones
			// captured at Active entry: a toggle made while the join
			// was in flight must win.
			o.media.SetMicEnabled(cur.MicEnabled)
			o.media.SetSpeakerRoute(cur.SpeakerEnabled)
			return
		}
		if errors.Is(err, context.Canceled) {
			logrus.WithFields(logrus.Fields{
				"function":     "Orchestrator.beginMediaJoin",
				"channel_name": snap.ChannelName,
			}).Debug("Media join cancelled: session ended")
			return
		}

		logrus.WithFields(logrus.Fields{
			"function":     "Orchestrator.beginMediaJoin",
			"channel_name": snap.ChannelName,
			"error":        err.Error(),
		}).Warn("Media join failed, call continues signaling-only")

		o.mu.Lock()
		degraded := o.machine.MarkDegraded(snap.SessionID)
		fn := o.onDegraded
		o.mu.Unlock()
		if degraded && fn != nil {
			fn(err)
		}
	}()
}

// Package media sequences an external real-time media engine through the
// call lifecycle: engine initialization, credential fetch, channel join
// and leave, and device-state toggles.
//
// Every failure in this package is absorbed locally and surfaced as a
// degraded call, never as an error that could desynchronize the two
// peers' signaling lifecycle.
package media

import "context"

// Engine is the port to the real-time media engine collaborator.
//
// Engines are process-wide singletons: native implementations are
// expensive to construct, so one instance is initialized once and reused
// across sessions. LeaveChannel must be safe to call even when no
// JoinChannel ever succeeded.
type Engine interface {
	// Initialize constructs the native engine for the given application.
	Initialize(appID string) error

	// EnableAudio turns the engine's audio subsystem on.
	EnableAudio() error

	// SetChannelProfileCommunication selects the two-way call profile.
	SetChannelProfileCommunication() error

	// JoinChannel joins the named media channel with the given
	// credential and stream uid.
	JoinChannel(token, channelName string, uid uint32) error

	// LeaveChannel exits the current media channel.
	LeaveChannel() error

	// EnableLocalAudio toggles microphone capture.
	EnableLocalAudio(enabled bool) error

	// SetSpeakerphone toggles the loudspeaker audio route.
	SetSpeakerphone(enabled bool) error

	// DisableAudio turns the engine's audio subsystem off.
	DisableAudio() error
}

// Capability reports whether the media engine can run in this host.
type Capability struct {
	Available bool
	Reason    string
}

// CapabilityProvider probes engine availability. It is consulted once at
// controller construction, not on every call: a sandboxed host that
// forbids native media modules stays forbidden for the process lifetime.
type CapabilityProvider interface {
	Probe() Capability
}

// CapabilityFunc adapts a function to the CapabilityProvider interface.
type CapabilityFunc func() Capability

// Probe calls f.
func (f CapabilityFunc) Probe() Capability {
	return f()
}

// AlwaysAvailable is a CapabilityProvider for hosts where the engine is
// known to load.
var AlwaysAvailable = CapabilityFunc(func() Capability {
	return Capability{Available: true}
})

// PermissionRequester asks the host platform for microphone access. A
// nil requester means permission is implicitly granted (server hosts,
// test harnesses).
type PermissionRequester interface {
	RequestMicrophone(ctx context.Context) error
}

// Package callkit implements peer-to-peer voice/video call session
// orchestration.
//
// callkit turns two independent streams of input — remote signaling events
// arriving over a shared channel and local user actions — into a single
// consistent call lifecycle, while sequencing an external real-time media
// engine and local audio devices through that lifecycle.
//
// The core is a pure state machine (Machine) that validates each event
// against the current call state and emits side-effect commands. The
// Orchestrator owns the machine, processes one event at a time to
// completion, and executes the emitted commands against three ports: a
// Signaler for outbound signaling, a MediaSession for the token-fetch and
// engine join sequence, and a Ringer for local ringtone playback. Hosts
// (a mobile UI, a server process, a test harness) only feed events in and
// observe callbacks.
//
// # Getting Started
//
// Wire an orchestrator with concrete collaborators and drive it from the
// host event loop:
//
//	local := callkit.PeerInfo{ID: "u1", DisplayName: "Alice"}
//
//	adapter, err := signaling.NewAdapter(local, channel)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	orch, err := callkit.New(callkit.Options{
//	    Local:    local,
//	    Signaler: adapter,
//	    Media:    mediaController,
//	    Ringer:   ringtones,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	orch.OnIncomingCall(func(peer callkit.PeerInfo) {
//	    // prompt the user, then orch.Accept(ctx) or orch.Reject(ctx)
//	})
//
//	if err := orch.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Stop()
//
//	go adapter.Run(ctx, orch)
//
//	err = orch.Initiate(ctx, callkit.PeerInfo{ID: "u2", DisplayName: "Bob"})
//
// # Failure policy
//
// Signaling failures end calls; media failures degrade them. Every media
// and device error is absorbed at the controller boundary and surfaced
// only through the session's degraded flag, so the signaling lifecycle
// stays consistent between the two peers even when every media operation
// fails.
package callkit

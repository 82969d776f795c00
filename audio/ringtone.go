// Package audio manages local ringtone playback through the host's
// audio-output device.
//
// The two ringtone resources — the outgoing ringback and the incoming
// ringtone — are scoped to the call states that own them: acquired on
// entry, released exactly once on every exit path. Device failures are
// logged and absorbed; a broken speaker never blocks a call transition.
package audio

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handle identifies one playback started on a Device.
type Handle int

// Device is the port to the host audio-output collaborator.
type Device interface {
	// Play starts playback of the named resource, optionally looping,
	// and returns a handle for stopping it.
	Play(resourceRef string, loop bool) (Handle, error)

	// Stop halts the playback identified by the handle.
	Stop(h Handle) error

	// Unload releases the decoded resource behind the handle.
	Unload(h Handle) error
}

// ErrDeviceAudioFailure indicates a ringtone playback or stop failure.
// It is only ever logged or inspected; it never unwinds into the call
// lifecycle.
var ErrDeviceAudioFailure = errors.New("audio device failure")

// Default ringtone resources, overridable per controller.
const (
	DefaultOutgoingResource = "ringback.ogg"
	DefaultIncomingResource = "ringtone.ogg"
)

// RingtoneOptions configures a RingtoneController.
type RingtoneOptions struct {
	// OutgoingResource is played while a placed call awaits an answer.
	// Empty selects DefaultOutgoingResource.
	OutgoingResource string

	// IncomingResource is played while a received call awaits an
	// answer. Empty selects DefaultIncomingResource.
	IncomingResource string
}

// RingtoneController owns the two scoped ringtone resources. At most one
// of the two plays at any time, matching the single-active-call
// invariant. It implements the callkit.Ringer port.
type RingtoneController struct {
	device   Device
	outgoing string
	incoming string

	mu      sync.Mutex
	current *playback
}

type playback struct {
	handle   Handle
	ringtone string
}

// NewRingtoneController creates a controller for the given device.
func NewRingtoneController(device Device, opts RingtoneOptions) (*RingtoneController, error) {
	if device == nil {
		return nil, errors.New("device cannot be nil")
	}
	outgoing := opts.OutgoingResource
	if outgoing == "" {
		outgoing = DefaultOutgoingResource
	}
	incoming := opts.IncomingResource
	if incoming == "" {
		incoming = DefaultIncomingResource
	}
	return &RingtoneController{
		device:   device,
		outgoing: outgoing,
		incoming: incoming,
	}, nil
}

// StartOutgoing begins ringback playback for a placed call.
func (r *RingtoneController) StartOutgoing() {
	r.start(r.outgoing)
}

// StartIncoming begins ringtone playback for a received call.
func (r *RingtoneController) StartIncoming() {
	r.start(r.incoming)
}

// StopOutgoing releases the ringback if it is playing.
func (r *RingtoneController) StopOutgoing() {
	r.stop(r.outgoing)
}

// StopIncoming releases the ringtone if it is playing.
func (r *RingtoneController) StopIncoming() {
	r.stop(r.incoming)
}

// StopAll releases whichever ringtone is playing. Used on orchestrator
// shutdown.
func (r *RingtoneController) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.release()
}

func (r *RingtoneController) start(resource string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only one ringtone may play at a time.
	r.release()

	h, err := r.device.Play(resource, true)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RingtoneController.start",
			"resource": resource,
			"error":    err.Error(),
		}).Warn("Ringtone playback failed")
		return
	}
	r.current = &playback{handle: h, ringtone: resource}

	logrus.WithFields(logrus.Fields{
		"function": "RingtoneController.start",
		"resource": resource,
	}).Debug("Ringtone started")
}

func (r *RingtoneController) stop(resource string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.ringtone != resource {
		return
	}
	r.release()
}

// release stops and unloads the current playback exactly once.
// Must be called with r.mu held.
func (r *RingtoneController) release() {
	if r.current == nil {
		return
	}
	h := r.current.handle
	resource := r.current.ringtone
	r.current = nil

	if err := r.device.Stop(h); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RingtoneController.release",
			"resource": resource,
			"error":    err.Error(),
		}).Warn("Ringtone stop failed")
	}
	if err := r.device.Unload(h); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "RingtoneController.release",
			"resource": resource,
			"error":    err.Error(),
		}).Debug("Ringtone unload failed")
	}

	logrus.WithFields(logrus.Fields{
		"function": "RingtoneController.release",
		"resource": resource,
	}).Debug("Ringtone stopped")
}

package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Controller sequences the media engine through a call session.
//
// The join sequence is strictly ensure-engine, fetch-token, join-channel;
// each stage runs only if the prior one succeeded, and the context is
// consulted before every stage so a locally ended call aborts an
// in-flight join without leaving a half-joined channel.
//
// Controller implements the callkit.MediaSession port.
type Controller struct {
	engine      Engine
	tokens      *TokenClient
	permissions PermissionRequester
	appID       string
	capability  Capability

	mu          sync.Mutex
	engineReady bool
	joined      bool
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Engine is the media engine port. Required.
	Engine Engine

	// Tokens is the media-token collaborator client. Required.
	Tokens *TokenClient

	// Capability is probed once here at construction. Nil means
	// AlwaysAvailable.
	Capability CapabilityProvider

	// Permissions requests microphone access before engine
	// initialization. Nil means implicitly granted.
	Permissions PermissionRequester

	// AppID identifies the application to the engine.
	AppID string
}

// NewController creates a media session controller. Engine availability
// is probed exactly once here.
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if opts.Tokens == nil {
		return nil, errors.New("token client cannot be nil")
	}

	caps := opts.Capability
	if caps == nil {
		caps = AlwaysAvailable
	}
	capability := caps.Probe()

	logrus.WithFields(logrus.Fields{
		"function":  "NewController",
		"available": capability.Available,
		"reason":    capability.Reason,
	}).Info("Media controller created")

	return &Controller{
		engine:      opts.Engine,
		tokens:      opts.Tokens,
		permissions: opts.Permissions,
		appID:       opts.AppID,
		capability:  capability,
	}, nil
}

// Available reports whether the engine can run in this host. Hosts use
// it to grey out call-media controls up front.
func (c *Controller) Available() bool {
	return c.capability.Available
}

// EnsureEngineReady initializes the engine if it is not already
// initialized. The engine instance is process-wide and reused across
// sessions, so a second call returns immediately.
func (c *Controller) EnsureEngineReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engineReady {
		return nil
	}

	if !c.capability.Available {
		return fmt.Errorf("%w: %s", ErrEngineUnavailable, c.capability.Reason)
	}

	if c.permissions != nil {
		if err := c.permissions.RequestMicrophone(ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.EnsureEngineReady",
				"error":    err.Error(),
			}).Warn("Microphone permission refused")
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}

	if err := c.engine.Initialize(c.appID); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := c.engine.SetChannelProfileCommunication(); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := c.engine.EnableAudio(); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	c.engineReady = true

	logrus.WithFields(logrus.Fields{
		"function": "Controller.EnsureEngineReady",
	}).Info("Media engine initialized")

	return nil
}

// FetchMediaToken requests a credential for the channel. It never
// retries: a failed fetch means this call proceeds without media.
func (c *Controller) FetchMediaToken(ctx context.Context, channelName string, uid uint32) (string, error) {
	return c.tokens.Fetch(ctx, channelName, uid)
}

// JoinChannel joins the media channel. EnsureEngineReady must have
// succeeded first.
func (c *Controller) JoinChannel(ctx context.Context, channelName, token string, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Recheck after acquiring the lock: the session may have been torn
	// down while this join waited behind a Leave in progress.
	if err := ctx.Err(); err != nil {
		return err
	}

	if !c.engineReady {
		return ErrEngineUnavailable
	}
	if err := c.engine.JoinChannel(token, channelName, uid); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineJoinFailed, err)
	}
	c.joined = true

	logrus.WithFields(logrus.Fields{
		"function":     "Controller.JoinChannel",
		"channel_name": channelName,
		"uid":          uid,
	}).Info("Joined media channel")

	return nil
}

// BeginJoin runs the full join sequence for a session that just went
// Active and returns the granted token on success. The returned error
// reports why the call is degraded; a context.Canceled error means the
// session ended mid-sequence and the sequence stopped cleanly.
func (c *Controller) BeginJoin(ctx context.Context, channelName string, uid uint32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.EnsureEngineReady(ctx); err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := c.FetchMediaToken(ctx, channelName, uid)
	if err != nil {
		return "", err
	}

	if err := c.JoinChannel(ctx, channelName, token, uid); err != nil {
		return "", err
	}
	return token, nil
}

// Leave exits the media channel and disables engine audio. It is safe
// when no join ever succeeded; failures are logged and absorbed.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.engineReady {
		return
	}

	if err := c.engine.LeaveChannel(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.Leave",
			"error":    err.Error(),
		}).Warn("Failed to leave media channel")
	}
	if err := c.engine.DisableAudio(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.Leave",
			"error":    err.Error(),
		}).Warn("Failed to disable engine audio")
	}
	c.joined = false
}

// SetMicEnabled toggles microphone capture. Fire-and-forget: failures
// are logged, never propagated into the signaling path.
func (c *Controller) SetMicEnabled(enabled bool) {
	c.mu.Lock()
	ready := c.engineReady
	c.mu.Unlock()
	if !ready {
		return
	}
	if err := c.engine.EnableLocalAudio(enabled); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.SetMicEnabled",
			"enabled":  enabled,
			"error":    err.Error(),
		}).Warn("Failed to toggle microphone")
	}
}

// SetSpeakerRoute toggles the loudspeaker route. Fire-and-forget.
func (c *Controller) SetSpeakerRoute(enabled bool) {
	c.mu.Lock()
	ready := c.engineReady
	c.mu.Unlock()
	if !ready {
		return
	}
	if err := c.engine.SetSpeakerphone(enabled); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.SetSpeakerRoute",
			"enabled":  enabled,
			"error":    err.Error(),
		}).Warn("Failed to toggle speaker route")
	}
}

// Joined reports whether a media channel is currently joined.
func (c *Controller) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

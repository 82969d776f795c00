package media

import "errors"

// Sentinel errors for media session failures. All of them degrade a call
// rather than ending it; they are classified with errors.Is by hosts that
// want to explain the degradation.
var (
	// ErrPermissionDenied indicates microphone permission was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrEngineUnavailable indicates the native media engine cannot run
	// in this host.
	ErrEngineUnavailable = errors.New("media engine unavailable")

	// ErrTokenFetchFailed indicates the media-token collaborator could
	// not issue a credential. The join is skipped, never retried
	// automatically.
	ErrTokenFetchFailed = errors.New("media token fetch failed")

	// ErrEngineJoinFailed indicates the engine rejected the channel join.
	ErrEngineJoinFailed = errors.New("media engine join failed")
)

package audio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice tracks playbacks and which handles were stopped/unloaded.
type fakeDevice struct {
	mu      sync.Mutex
	next    Handle
	played  []string
	stops   map[Handle]int
	unloads map[Handle]int
	playErr error
	stopErr error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		stops:   make(map[Handle]int),
		unloads: make(map[Handle]int),
	}
}

func (d *fakeDevice) Play(resourceRef string, loop bool) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playErr != nil {
		return 0, d.playErr
	}
	d.next++
	d.played = append(d.played, resourceRef)
	return d.next, nil
}

func (d *fakeDevice) Stop(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops[h]++
	return d.stopErr
}

func (d *fakeDevice) Unload(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unloads[h]++
	return nil
}

func (d *fakeDevice) playCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.played)
}

func (d *fakeDevice) stopCount(h Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops[h]
}

func newController(t *testing.T, device Device) *RingtoneController {
	t.Helper()
	ctrl, err := NewRingtoneController(device, RingtoneOptions{})
	require.NoError(t, err)
	return ctrl
}

func TestNewRingtoneControllerValidation(t *testing.T) {
	_, err := NewRingtoneController(nil, RingtoneOptions{})
	assert.Error(t, err)
}

func TestOutgoingLifecycle(t *testing.T) {
	device := newFakeDevice()
	ctrl := newController(t, device)

	ctrl.StartOutgoing()
	require.Equal(t, []string{DefaultOutgoingResource}, device.played)

	ctrl.StopOutgoing()
	assert.Equal(t, 1, device.stopCount(1))
	assert.Equal(t, 1, device.unloads[1])
}

func TestStopReleasesExactlyOnce(t *testing.T) {
	device := newFakeDevice()
	ctrl := newController(t, device)

	ctrl.StartIncoming()
	ctrl.StopIncoming()
	ctrl.StopIncoming()
	ctrl.StopAll()

	assert.Equal(t, 1, device.stopCount(1), "repeat stops must not touch the device again")
}

func TestStopWrongResourceIsNoOp(t *testing.T) {
	device := newFakeDevice()
	ctrl := newController(t, device)

	ctrl.StartOutgoing()
	ctrl.StopIncoming()

	assert.Equal(t, 0, device.stopCount(1), "incoming stop must not release the ringback")

	ctrl.StopOutgoing()
	assert.Equal(t, 1, device.stopCount(1))
}

func TestAtMostOneRingtoneActive(t *testing.T) {
	device := newFakeDevice()
	ctrl := newController(t, device)

	ctrl.StartOutgoing()
	ctrl.StartIncoming()

	assert.Equal(t, 2, device.playCount())
	assert.Equal(t, 1, device.stopCount(1), "starting the incoming ringtone releases the ringback")
	assert.Equal(t, 0, device.stopCount(2))

	ctrl.StopIncoming()
	assert.Equal(t, 1, device.stopCount(2))
}

func TestCustomResources(t *testing.T) {
	device := newFakeDevice()
	ctrl, err := NewRingtoneController(device, RingtoneOptions{
		OutgoingResource: "tones/ringback-alt.ogg",
		IncomingResource: "tones/marimba.ogg",
	})
	require.NoError(t, err)

	ctrl.StartOutgoing()
	ctrl.StartIncoming()
	assert.Equal(t, []string{"tones/ringback-alt.ogg", "tones/marimba.ogg"}, device.played)
}

func TestPlayFailureIsAbsorbed(t *testing.T) {
	device := newFakeDevice()
	device.playErr = ErrDeviceAudioFailure
	ctrl := newController(t, device)

	ctrl.StartOutgoing()
	ctrl.StopOutgoing()

	assert.Equal(t, 0, device.stopCount(1), "nothing to release after a failed play")
}

func TestStopFailureIsAbsorbed(t *testing.T) {
	device := newFakeDevice()
	device.stopErr = ErrDeviceAudioFailure
	ctrl := newController(t, device)

	ctrl.StartIncoming()
	ctrl.StopIncoming()

	// The failed stop still unloads and clears the playback; a new
	// ringtone can start cleanly afterwards.
	assert.Equal(t, 1, device.unloads[1])
	ctrl.StartIncoming()
	assert.Equal(t, 2, device.playCount())
}

func TestStopAllReleasesCurrent(t *testing.T) {
	device := newFakeDevice()
	ctrl := newController(t, device)

	ctrl.StopAll()
	assert.Equal(t, 0, device.playCount())

	ctrl.StartOutgoing()
	ctrl.StopAll()
	assert.Equal(t, 1, device.stopCount(1))
}

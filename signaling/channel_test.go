package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPairDelivery(t *testing.T) {
	a, b := NewMemoryPair()
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Send(context.Background(), []byte("hello")))

	select {
	case got := <-b.Receive():
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(time.Second):
		t.Fatal("payload never arrived")
	}

	// And back the other way.
	require.NoError(t, b.Send(context.Background(), []byte("hi")))
	assert.Equal(t, []byte("hi"), <-a.Receive())
}

func TestMemoryChannelCopiesPayload(t *testing.T) {
	a, b := NewMemoryPair()
	defer a.Close()
	defer b.Close()

	payload := []byte("original")
	require.NoError(t, a.Send(context.Background(), payload))
	payload[0] = 'X'

	assert.Equal(t, []byte("original"), <-b.Receive())
}

func TestMemoryChannelClosedSend(t *testing.T) {
	a, b := NewMemoryPair()

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Send(context.Background(), []byte("x")), ErrChannelClosed)

	// Sending toward a closed pair fails the same way.
	assert.ErrorIs(t, b.Send(context.Background(), []byte("x")), ErrChannelClosed)

	// Close is idempotent.
	assert.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestMemoryChannelCancelledContext(t *testing.T) {
	a, b := NewMemoryPair()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Send(ctx, []byte("x")), context.Canceled)
}

func TestMemoryChannelQueueFull(t *testing.T) {
	a, b := NewMemoryPair()
	defer a.Close()
	defer b.Close()

	for i := 0; i < 64; i++ {
		require.NoError(t, a.Send(context.Background(), []byte("x")))
	}
	assert.Error(t, a.Send(context.Background(), []byte("overflow")))
}

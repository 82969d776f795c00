package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Channel is the bidirectional signaling transport port.
//
// Implementations own delivery order; this package performs no
// reordering or coalescing. Receive and Errors are closed by Close.
type Channel interface {
	// Send transmits one encoded envelope.
	Send(ctx context.Context, payload []byte) error

	// Receive yields inbound payloads in arrival order.
	Receive() <-chan []byte

	// Errors yields transport failures (disconnects, write errors
	// observed asynchronously). Consumers treat these as degradation
	// signals, never as call terminations.
	Errors() <-chan error

	// Close releases the transport.
	Close() error
}

// ErrChannelClosed indicates a send on a closed channel.
var ErrChannelClosed = errors.New("signaling channel is closed")

// MemoryChannel is an in-process Channel half. Payloads sent on one half
// arrive on its pair. It backs tests and the loopback example.
type MemoryChannel struct {
	mu     sync.Mutex
	peer   *MemoryChannel
	recv   chan []byte
	errs   chan error
	closed bool
}

// NewMemoryPair creates two cross-wired in-memory channels.
func NewMemoryPair() (*MemoryChannel, *MemoryChannel) {
	a := &MemoryChannel{
		recv: make(chan []byte, 64),
		errs: make(chan error, 1),
	}
	b := &MemoryChannel{
		recv: make(chan []byte, 64),
		errs: make(chan error, 1),
	}
	a.peer = b
	b.peer = a
	return a, b
}

// Send delivers the payload to the paired channel's receive queue.
func (c *MemoryChannel) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	c.peer.mu.Lock()
	defer c.peer.mu.Unlock()
	if c.peer.closed {
		return ErrChannelClosed
	}

	// Copy so the caller may reuse its buffer.
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case c.peer.recv <- buf:
		return nil
	default:
		logrus.WithFields(logrus.Fields{
			"function": "MemoryChannel.Send",
		}).Warn("Dropping payload: receive queue full")
		return errors.New("receive queue full")
	}
}

// Receive returns the inbound payload queue.
func (c *MemoryChannel) Receive() <-chan []byte {
	return c.recv
}

// Errors returns the transport error queue.
func (c *MemoryChannel) Errors() <-chan error {
	return c.errs
}

// Close shuts down this half. The pair observes closed-channel sends.
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.recv)
	close(c.errs)
	return nil
}

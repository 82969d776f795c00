package signaling

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisChannel is a Channel backed by Redis Pub/Sub. Each participant
// subscribes to their own inbox topic and publishes to the remote
// participant's topic, so a fleet of signaling servers needs no sticky
// routing.
type RedisChannel struct {
	client    *redis.Client
	pubsub    *redis.PubSub
	sendTopic string

	recv chan []byte
	errs chan error

	closeOnce sync.Once
	done      chan struct{}
}

// InboxTopic names the Pub/Sub topic carrying a participant's inbound
// signaling events.
func InboxTopic(peerID string) string {
	return "signaling:inbox:" + peerID
}

// NewRedisChannel subscribes to the local participant's inbox and
// targets the remote participant's inbox for sends.
func NewRedisChannel(ctx context.Context, client *redis.Client, localPeerID, remotePeerID string) (*RedisChannel, error) {
	inbox := InboxTopic(localPeerID)
	pubsub := client.Subscribe(ctx, inbox)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRedisChannel",
		"inbox":    inbox,
	}).Info("Subscribed to signaling inbox")

	c := &RedisChannel{
		client:    client,
		pubsub:    pubsub,
		sendTopic: InboxTopic(remotePeerID),
		recv:      make(chan []byte, 64),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Send publishes one payload to the remote participant's inbox.
func (c *RedisChannel) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	return c.client.Publish(ctx, c.sendTopic, payload).Err()
}

// Receive returns the inbound payload queue.
func (c *RedisChannel) Receive() <-chan []byte {
	return c.recv
}

// Errors returns the transport error queue.
func (c *RedisChannel) Errors() <-chan error {
	return c.errs
}

// Close unsubscribes and stops the pump.
func (c *RedisChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pubsub.Close()
	})
	return err
}

func (c *RedisChannel) readPump() {
	defer close(c.recv)
	ch := c.pubsub.Channel()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-ch:
			if !ok {
				select {
				case <-c.done:
				default:
					logrus.WithFields(logrus.Fields{
						"function": "RedisChannel.readPump",
					}).Warn("Signaling subscription closed")
					select {
					case c.errs <- ErrChannelClosed:
					default:
					}
				}
				return
			}
			select {
			case c.recv <- []byte(msg.Payload):
			case <-c.done:
				return
			}
		}
	}
}

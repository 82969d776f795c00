package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WebSocketChannel is a Channel backed by a WebSocket connection to a
// signaling server. One connection carries one user's signaling inbox.
type WebSocketChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	recv    chan []byte
	errs    chan error

	closeOnce sync.Once
	done      chan struct{}
}

// DialWebSocket connects to the signaling server at the given URL and
// starts the read and keepalive pumps.
func DialWebSocket(ctx context.Context, url string) (*WebSocketChannel, error) {
	logrus.WithFields(logrus.Fields{
		"function": "DialWebSocket",
		"url":      url,
	}).Info("Connecting to signaling server")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketChannel(conn), nil
}

// NewWebSocketChannel wraps an established connection. Useful when the
// host performs its own dial with authentication headers.
func NewWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	c := &WebSocketChannel{
		conn: conn,
		recv: make(chan []byte, 64),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go c.readPump()
	go c.pingPump()
	return c
}

// Send writes one payload as a text message.
func (c *WebSocketChannel) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Receive returns the inbound payload queue.
func (c *WebSocketChannel) Receive() <-chan []byte {
	return c.recv
}

// Errors returns the transport error queue.
func (c *WebSocketChannel) Errors() <-chan error {
	return c.errs
}

// Close tears down the connection and both pumps.
func (c *WebSocketChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WebSocketChannel) readPump() {
	defer close(c.recv)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Deliberate close, not a transport failure.
			default:
				logrus.WithFields(logrus.Fields{
					"function": "WebSocketChannel.readPump",
					"error":    err.Error(),
				}).Warn("Signaling connection read failed")
				select {
				case c.errs <- err:
				default:
				}
			}
			return
		}
		select {
		case c.recv <- data:
		case <-c.done:
			return
		}
	}
}

func (c *WebSocketChannel) pingPump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "WebSocketChannel.pingPump",
					"error":    err.Error(),
				}).Debug("Keepalive ping failed")
				return
			}
		}
	}
}

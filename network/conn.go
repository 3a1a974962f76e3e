package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"hexapodctl/models"
	"hexapodctl/protocol"
	"hexapodctl/transport"
)

// DefaultHandshakeTimeout bounds the WebSocket dial and upgrade.
const DefaultHandshakeTimeout = 5 * time.Second

// ErrDisposed reports a Connect on a closed connection.
var ErrDisposed = errors.New("network: connection is disposed")

// ConnConfig controls the WebSocket command channel.
type ConnConfig struct {
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

func (c ConnConfig) withDefaults() ConnConfig {
	out := c
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Conn is the network implementation of transport.Connection: one persistent
// WebSocket to the robot, one command token per outbound text message, one
// message-stream event per inbound text message.
type Conn struct {
	dialer *websocket.Dialer
	logger *slog.Logger

	status   *transport.StatusTracker
	messages chan string

	mu   sync.Mutex
	sess *wsSession

	writeMu sync.Mutex

	disposed  atomic.Bool
	closeOnce sync.Once
}

// wsSession is the state of one dialed socket. A fresh session is created per
// Connect so a stale read loop can never touch a newer socket.
type wsSession struct {
	ws         *websocket.Conn
	done       chan struct{}
	userClosed atomic.Bool
}

// NewConn creates a disconnected network connection.
func NewConn(config ConnConfig) *Conn {
	cfg := config.withDefaults()
	return &Conn{
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger:   cfg.Logger,
		status:   transport.NewStatusTracker(),
		messages: make(chan string, 64),
	}
}

// Connect dials ws://address:port, starts the read loop, and sends init.
// Any existing session is torn down first.
func (c *Conn) Connect(ctx context.Context, device models.Device) error {
	if c.disposed.Load() {
		return ErrDisposed
	}

	c.Disconnect()
	c.status.Set(transport.StatusConnecting)

	url := fmt.Sprintf("ws://%s:%d", device.Address, device.Port)
	ws, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.status.Set(transport.StatusError)
		return fmt.Errorf("dial %q: %w", url, err)
	}

	sess := &wsSession{
		ws:   ws,
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	go c.readLoop(sess)

	c.status.Set(transport.StatusConnected)
	c.SendCommand(protocol.CommandInit)
	return nil
}

// Disconnect tears down the current session, if any, and leaves the
// connection disconnected. Safe to call at any time, any number of times.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess != nil {
		sess.userClosed.Store(true)
		_ = sess.ws.Close()
		<-sess.done
	}

	if c.status.Status() != transport.StatusDisconnected {
		c.status.Set(transport.StatusDisconnected)
	}
}

// SendCommand writes one command token as a WebSocket text message. Dropped
// with a log line when not connected; write failures are logged, not returned.
func (c *Conn) SendCommand(cmd protocol.Command) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess == nil || c.status.Status() != transport.StatusConnected {
		c.logger.Warn("dropping command, not connected", "command", cmd.Token())
		return
	}

	c.writeMu.Lock()
	err := sess.ws.WriteMessage(websocket.TextMessage, []byte(cmd.Token()))
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("command write failed", "command", cmd.Token(), "error", err)
	}
}

// Status returns the current lifecycle status.
func (c *Conn) Status() transport.Status {
	return c.status.Status()
}

// StatusEvents delivers every status transition in order.
func (c *Conn) StatusEvents() <-chan transport.Status {
	return c.status.Events()
}

// Messages delivers each inbound text message verbatim.
func (c *Conn) Messages() <-chan string {
	return c.messages
}

// Close tears down the socket and closes both streams permanently.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.disposed.Store(true)
		c.Disconnect()
		c.status.CloseEvents()
		close(c.messages)
	})
}

func (c *Conn) readLoop(sess *wsSession) {
	defer close(sess.done)

	for {
		_, data, err := sess.ws.ReadMessage()
		if err != nil {
			if sess.userClosed.Load() {
				// Disconnect owns the status transition.
				return
			}
			c.dropSession(sess)
			_ = sess.ws.Close()

			if isRemoteClose(err) {
				c.logger.Info("robot closed the connection")
				c.status.Set(transport.StatusDisconnected)
			} else {
				c.logger.Warn("read failed", "error", err)
				c.status.Set(transport.StatusError)
			}
			return
		}

		select {
		case c.messages <- string(data):
		default:
			c.logger.Warn("message stream full, dropping response")
		}
	}
}

func (c *Conn) dropSession(sess *wsSession) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
}

func isRemoteClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}

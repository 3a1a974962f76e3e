package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"hexapodctl/models"
	"hexapodctl/protocol"
	"hexapodctl/transport"
)

// ErrDisposed reports a Connect on a closed connection.
var ErrDisposed = errors.New("radio: connection is disposed")

// readBufferSize bounds one inbound serial frame.
const readBufferSize = 1024

// ConnConfig controls the serial-profile command channel.
type ConnConfig struct {
	// Adapter opens the channel by hardware address. Required unless
	// SerialPortPath is set.
	Adapter Adapter

	// SerialPortPath, when set, bypasses the adapter and opens a tty
	// already bound to the robot (an rfcomm device node).
	SerialPortPath string

	Logger *slog.Logger
}

func (c ConnConfig) withDefaults() ConnConfig {
	out := c
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Conn is the radio implementation of transport.Connection. Outbound tokens
// are UTF-8 with a trailing newline; each inbound byte frame is decoded and
// forwarded as one message-stream event, with invalid UTF-8 frames dropped.
type Conn struct {
	cfg    ConnConfig
	logger *slog.Logger

	status   *transport.StatusTracker
	messages chan string

	mu   sync.Mutex
	sess *serialSession

	writeMu sync.Mutex

	disposed  atomic.Bool
	closeOnce sync.Once
}

type serialSession struct {
	ch         io.ReadWriteCloser
	done       chan struct{}
	userClosed atomic.Bool
}

// NewConn creates a disconnected radio connection.
func NewConn(config ConnConfig) (*Conn, error) {
	cfg := config.withDefaults()
	if cfg.Adapter == nil && cfg.SerialPortPath == "" {
		return nil, errors.New("radio: adapter or serial port path is required")
	}
	return &Conn{
		cfg:      cfg,
		logger:   cfg.Logger,
		status:   transport.NewStatusTracker(),
		messages: make(chan string, 64),
	}, nil
}

// Connect opens the serial-profile channel to the device's hardware address,
// starts the read loop, and sends init. Port is ignored on this transport.
func (c *Conn) Connect(ctx context.Context, device models.Device) error {
	if c.disposed.Load() {
		return ErrDisposed
	}

	c.Disconnect()
	c.status.Set(transport.StatusConnecting)

	ch, err := c.openChannel(ctx, device.Address)
	if err != nil {
		c.status.Set(transport.StatusError)
		return fmt.Errorf("open channel to %s: %w", device.Address, err)
	}

	sess := &serialSession{
		ch:   ch,
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

// Disconnect tears down the channel idempotently.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess != nil {
		sess.userClosed.Store(true)
		_ = sess.ch.Close()
		<-sess.done
	}

	if c.status.Status() != transport.StatusDisconnected {
		c.status.Set(transport.StatusDisconnected)
	}
}

// SendCommand writes one newline-terminated UTF-8 token, fire and forget.
func (c *Conn) SendCommand(cmd protocol.Command) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess == nil || c.status.Status() != transport.StatusConnected {
		c.logger.Warn("dropping command, not connected", "command", cmd.Token())
		return
	}

	c.writeMu.Lock()
	_, err := sess.ch.Write([]byte(cmd.Token() + "\n"))
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

// Messages delivers each decoded inbound frame verbatim.
func (c *Conn) Messages() <-chan string {
	return c.messages
}

// Close tears down the channel and closes both streams permanently.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.disposed.Store(true)
		c.Disconnect()
		c.status.CloseEvents()
		close(c.messages)
	})
}

func (c *Conn) openChannel(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	if c.cfg.SerialPortPath != "" {
		return openSerialPort(c.cfg.SerialPortPath)
	}
	return c.cfg.Adapter.OpenChannel(ctx, address)
}

func (c *Conn) readLoop(sess *serialSession) {
	defer close(sess.done)

	buf := make([]byte, readBufferSize)
	for {
		n, err := sess.ch.Read(buf)
		if n > 0 {
			frame := buf[:n]
			if !utf8.Valid(frame) {
				c.logger.Warn("dropping frame with invalid utf-8", "bytes", n)
			} else {
				select {
				case c.messages <- string(frame):
				default:
					c.logger.Warn("message stream full, dropping response")
				}
			}
		}
		if err != nil {
			if sess.userClosed.Load() {
				// Disconnect owns the status transition.
				return
			}
			c.dropSession(sess)
			_ = sess.ch.Close()

			if errors.Is(err, io.EOF) {
				c.logger.Info("robot closed the channel")
				c.status.Set(transport.StatusDisconnected)
			} else {
				c.logger.Warn("read failed", "error", err)
				c.status.Set(transport.StatusError)
			}
			return
		}
	}
}

func (c *Conn) dropSession(sess *serialSession) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
}

// Package control holds the orchestrator the UI layer talks to: it owns the
// configured discovery and connection implementations, the rolling response
// log, and the connected-device bookkeeping.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hexapodctl/logbuf"
	"hexapodctl/models"
	"hexapodctl/protocol"
	"hexapodctl/storage"
	"hexapodctl/transport"
)

// DefaultDiscoveryTimeout bounds each user-triggered discovery attempt.
const DefaultDiscoveryTimeout = 5 * time.Second

// Config wires a Controller. Discovery and Connection are chosen once, at
// construction; the transport is fixed for the process lifetime.
type Config struct {
	Discovery  transport.Discovery
	Connection transport.Connection

	// TransportLabel names the transport in history rows ("network"/"radio").
	TransportLabel string

	// History, when set, receives a write-behind copy of sessions, sent
	// commands, and log entries. Failures there are logged, never surfaced.
	History *storage.Store

	LogCapacity      int
	DiscoveryTimeout time.Duration
	Logger           *slog.Logger
}

// Controller is the single place the UI layer talks to.
type Controller struct {
	discovery transport.Discovery
	conn      transport.Connection
	history   *storage.Store
	label     string
	logger    *slog.Logger

	discoveryTimeout time.Duration

	mu          sync.Mutex
	ring        *logbuf.Ring
	discovered  models.Device
	connected   models.Device
	discovering bool
	lastError   string
	sessionID   string

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a controller and starts its two long-lived subscriptions to the
// connection's status and message streams. Close releases them.
func New(config Config) (*Controller, error) {
	if config.Discovery == nil {
		return nil, errors.New("control: discovery is required")
	}
	if config.Connection == nil {
		return nil, errors.New("control: connection is required")
	}

	capacity := config.LogCapacity
	if capacity == 0 {
		capacity = logbuf.DefaultCapacity
	}
	ring, err := logbuf.New(capacity)
	if err != nil {
		return nil, err
	}

	timeout := config.DiscoveryTimeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	label := config.TransportLabel
	if label == "" {
		label = "network"
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		discovery:        config.Discovery,
		conn:             config.Connection,
		history:          config.History,
		label:            label,
		logger:           logger,
		discoveryTimeout: timeout,
		ring:             ring,
	}

	c.wg.Add(2)
	go c.watchStatus()
	go c.watchMessages()

	return c, nil
}

// DiscoverRobot makes one discovery attempt with the fixed timeout. The
// outcome is recorded; discovery failures surface as a last-error message,
// never as an error return.
func (c *Controller) DiscoverRobot(ctx context.Context) (models.Device, bool) {
	c.mu.Lock()
	c.lastError = ""
	c.discovering = true
	c.mu.Unlock()

	device, err := c.discovery.DiscoverOnce(ctx, c.discoveryTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.discovering = false

	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			c.lastError = "No robot located"
		} else {
			c.lastError = fmt.Sprintf("Discovery failed: %v", err)
		}
		c.logger.Info("discovery came up empty", "error", err)
		return models.Device{}, false
	}

	c.discovered = device
	c.logger.Info("robot discovered",
		"name", device.DisplayName, "address", device.Address, "port", device.Port)
	return device, true
}

// ConnectToDevice connects to a previously discovered device.
func (c *Controller) ConnectToDevice(ctx context.Context, device models.Device) bool {
	return c.connect(ctx, device)
}

// ConnectToManualAddress connects to a user-entered address and port.
func (c *Controller) ConnectToManualAddress(ctx context.Context, address string, port int) bool {
	return c.connect(ctx, models.NewDevice("Manual Connection", address, port))
}

// connect holds the lock across the dial: the message subscription appends
// under the same lock, so the "Connected" entry always lands in the log before
// any response the robot echoes to the automatic init. Connect attempts are
// serialized anyway; nothing else may run between the dial and the bookkeeping.
func (c *Controller) connect(ctx context.Context, device models.Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = ""

	if err := c.conn.Connect(ctx, device); err != nil {
		c.logger.Warn("connect failed", "address", device.Address, "error", err)
		c.lastError = fmt.Sprintf("Failed to connect to %s: %v", device.Address, err)
		c.appendLocked(logbuf.NewEntry(logbuf.LevelError, "Failed to connect to "+device.DisplayName))
		return false
	}

	c.connected = device
	c.beginSessionLocked(device)
	c.appendLocked(logbuf.NewEntry(logbuf.LevelInfo, "Connected to "+device.DisplayName))
	return true
}

// Disconnect tears the connection down and records the outcome.
func (c *Controller) Disconnect() {
	c.conn.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = models.Device{}
	c.appendLocked(logbuf.NewEntry(logbuf.LevelInfo, "Disconnected"))
	c.endSessionLocked()
}

// SendCommand forwards one command when connected; otherwise it records an
// error message without touching the transport.
func (c *Controller) SendCommand(cmd protocol.Command) {
	if !c.IsConnected() {
		c.mu.Lock()
		c.lastError = "Not connected to a robot"
		c.mu.Unlock()
		c.logger.Warn("command ignored, not connected", "command", cmd.Token())
		return
	}

	c.mu.Lock()
	c.lastError = ""
	sessionID := c.sessionID
	c.mu.Unlock()

	c.conn.SendCommand(cmd)

	if c.history != nil && sessionID != "" {
		if err := c.history.RecordCommand(sessionID, cmd); err != nil {
			c.logger.Warn("history write failed", "error", err)
		}
	}
}

// Forward walks the robot forward.
func (c *Controller) Forward() { c.SendCommand(protocol.CommandForward) }

// Backward walks the robot backward.
func (c *Controller) Backward() { c.SendCommand(protocol.CommandBackward) }

// Left turns the robot left.
func (c *Controller) Left() { c.SendCommand(protocol.CommandLeft) }

// Right turns the robot right.
func (c *Controller) Right() { c.SendCommand(protocol.CommandRight) }

// ClearLog empties the response log.
func (c *Controller) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring.Clear()
}

// Status returns the connection's current lifecycle status.
func (c *Controller) Status() transport.Status {
	return c.conn.Status()
}

// IsConnected reports whether a command channel is open.
func (c *Controller) IsConnected() bool {
	return c.conn.Status() == transport.StatusConnected
}

// DiscoveredDevice returns the most recent discovery result, if any.
func (c *Controller) DiscoveredDevice() (models.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discovered, !c.discovered.IsZero()
}

// ConnectedDevice returns the device of the active connection, if any.
func (c *Controller) ConnectedDevice() (models.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected, !c.connected.IsZero()
}

// Discovering reports whether a discovery attempt is in flight.
func (c *Controller) Discovering() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discovering
}

// LastError returns the human-readable message of the most recent failed
// operation, empty after a successful one.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// LogSnapshot returns the retained log entries oldest-first.
func (c *Controller) LogSnapshot() []logbuf.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.All()
}

// Close disposes the connection and stops both subscriptions.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.wg.Wait()

		c.mu.Lock()
		c.endSessionLocked()
		c.mu.Unlock()
	})
}

// watchStatus keeps the connected-device bookkeeping in step with the
// connection's transitions: leaving the connected state clears the record.
func (c *Controller) watchStatus() {
	defer c.wg.Done()

	for status := range c.conn.StatusEvents() {
		if status != transport.StatusDisconnected && status != transport.StatusError {
			continue
		}
		// A buffered transition from the teardown inside a reconnect can
		// arrive after the new session is recorded; trust the live status.
		if current := c.conn.Status(); current != transport.StatusDisconnected && current != transport.StatusError {
			continue
		}
		c.mu.Lock()
		c.connected = models.Device{}
		c.endSessionLocked()
		c.mu.Unlock()
	}
}

// watchMessages classifies every inbound text unit and appends it to the ring.
func (c *Controller) watchMessages() {
	defer c.wg.Done()

	for text := range c.conn.Messages() {
		entry := logbuf.Classify(text)
		c.mu.Lock()
		c.appendLocked(entry)
		c.mu.Unlock()
	}
}

func (c *Controller) appendLocked(entry logbuf.Entry) {
	c.ring.Insert(entry)

	if c.history != nil && c.sessionID != "" {
		if err := c.history.AppendLogEntry(c.sessionID, entry); err != nil {
			c.logger.Warn("history write failed", "error", err)
		}
	}
}

func (c *Controller) beginSessionLocked(device models.Device) {
	if c.history == nil {
		return
	}
	sessionID, err := c.history.BeginSession(c.label, device)
	if err != nil {
		c.logger.Warn("history session open failed", "error", err)
		return
	}
	c.sessionID = sessionID
}

func (c *Controller) endSessionLocked() {
	if c.history == nil || c.sessionID == "" {
		return
	}
	if err := c.history.EndSession(c.sessionID); err != nil {
		c.logger.Warn("history session close failed", "error", err)
	}
	c.sessionID = ""
}

package network

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexapodctl/models"
	"hexapodctl/transport"
)

// robotServer is a WebSocket stand-in for the robot: it records every command
// it receives and answers each one with "OK:<command>".
type robotServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	commands []string
	sendAck  bool
	closeReq chan struct{}
}

func newRobotServer(t *testing.T) *robotServer {
	t.Helper()
	rs := &robotServer{sendAck: true, closeReq: make(chan struct{})}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := rs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		go func() {
			select {
			case <-rs.closeReq:
				deadline := time.Now().Add(time.Second)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"), deadline)
			case <-r.Context().Done():
			}
		}()

		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			rs.mu.Lock()
			rs.commands = append(rs.commands, string(msg))
			ack := rs.sendAck
			rs.mu.Unlock()
			if ack {
				if err := ws.WriteMessage(websocket.TextMessage, []byte("OK:"+string(msg))); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *robotServer) device() models.Device {
	host := strings.TrimPrefix(rs.srv.URL, "http://")
	addr, portStr, _ := net.SplitHostPort(host)
	port, _ := strconv.Atoi(portStr)
	return models.NewDevice("robot-spider", addr, port)
}

func (rs *robotServer) received() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.commands...)
}

func recvString(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return ""
	}
}

func recvStatus(t *testing.T, ch <-chan transport.Status) transport.Status {
	t.Helper()
	select {
	case status := <-ch:
		return status
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a status transition")
		return ""
	}
}

func waitForCondition(t *testing.T, check func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectSendsInitAndStreamsAcks(t *testing.T) {
	rs := newRobotServer(t)
	conn := NewConn(ConnConfig{})
	defer conn.Close()

	events := conn.StatusEvents()

	require.NoError(t, conn.Connect(context.Background(), rs.device()))

	assert.Equal(t, transport.StatusConnecting, recvStatus(t, events))
	assert.Equal(t, transport.StatusConnected, recvStatus(t, events))

	// init goes out automatically on connect.
	assert.Equal(t, "OK:init", recvString(t, conn.Messages()))

	conn.SendCommand("forward")
	assert.Equal(t, "OK:forward", recvString(t, conn.Messages()))

	assert.Equal(t, []string{"init", "forward"}, rs.received())

	conn.Disconnect()
	assert.Equal(t, transport.StatusDisconnected, recvStatus(t, events))
	assert.Equal(t, transport.StatusDisconnected, conn.Status())
}

func TestConnectFailureReportsErrorStatus(t *testing.T) {
	// Grab a port nothing is listening on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	conn := NewConn(ConnConfig{HandshakeTimeout: time.Second})
	defer conn.Close()

	err = conn.Connect(context.Background(), models.NewDevice("robot-spider", addr, port))
	require.Error(t, err)
	assert.Equal(t, transport.StatusError, conn.Status())
}

func TestSendCommandWhileDisconnectedIsDropped(t *testing.T) {
	conn := NewConn(ConnConfig{})
	defer conn.Close()

	conn.SendCommand("forward")

	assert.Equal(t, transport.StatusDisconnected, conn.Status())
	select {
	case msg := <-conn.Messages():
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectTearsDownThePreviousSession(t *testing.T) {
	first := newRobotServer(t)
	second := newRobotServer(t)

	conn := NewConn(ConnConfig{})
	defer conn.Close()

	require.NoError(t, conn.Connect(context.Background(), first.device()))
	assert.Equal(t, "OK:init", recvString(t, conn.Messages()))

	require.NoError(t, conn.Connect(context.Background(), second.device()))
	assert.Equal(t, "OK:init", recvString(t, conn.Messages()))

	conn.SendCommand("left")
	assert.Equal(t, "OK:left", recvString(t, conn.Messages()))

	assert.Equal(t, []string{"init"}, first.received())
	assert.Equal(t, []string{"init", "left"}, second.received())
}

func TestRemoteCloseTransitionsToDisconnected(t *testing.T) {
	rs := newRobotServer(t)
	conn := NewConn(ConnConfig{})
	defer conn.Close()

	require.NoError(t, conn.Connect(context.Background(), rs.device()))
	assert.Equal(t, "OK:init", recvString(t, conn.Messages()))

	close(rs.closeReq)

	waitForCondition(t, func() bool {
		return conn.Status() == transport.StatusDisconnected
	}, "disconnect after the remote close")
}

func TestCloseShutsDownBothStreams(t *testing.T) {
	rs := newRobotServer(t)
	conn := NewConn(ConnConfig{})

	require.NoError(t, conn.Connect(context.Background(), rs.device()))
	conn.Close()
	conn.Close()

	waitForCondition(t, func() bool {
		select {
		case _, open := <-conn.Messages():
			return !open
		default:
			return false
		}
	}, "message stream to close")

	for range conn.StatusEvents() {
	}

	err := conn.Connect(context.Background(), rs.device())
	require.ErrorIs(t, err, ErrDisposed)
}

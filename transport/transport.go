// Package transport defines the two capability contracts every robot
// transport implements: Discovery locates a device without prior knowledge of
// its address, and Connection exchanges command tokens and response text with
// a located device. The network and radio packages each provide one
// implementation of both.
package transport

import (
	"context"
	"errors"
	"time"

	"hexapodctl/models"
	"hexapodctl/protocol"
)

// ErrNotFound reports that a discovery attempt completed without locating a
// robot. It is a normal outcome, not a transport failure; transport failures
// are returned as distinct errors so callers can log the difference.
var ErrNotFound = errors.New("transport: no device located")

// Discovery locates a robot on one transport.
type Discovery interface {
	// DiscoverOnce makes a single bounded attempt. It returns ErrNotFound
	// when the timeout elapses without a match; adapter or resolver
	// failures are returned as-is and should be treated as not-found by
	// callers that only care about the outcome.
	DiscoverOnce(ctx context.Context, timeout time.Duration) (models.Device, error)

	// Watch re-invokes DiscoverOnce every interval and delivers each
	// outcome until ctx is cancelled, then closes the returned channel.
	Watch(ctx context.Context, interval time.Duration) <-chan DiscoveryResult
}

// DiscoveryResult is one outcome of a continuous discovery watch.
type DiscoveryResult struct {
	Device models.Device
	Err    error
}

// Connection owns one command channel to a robot.
//
// Implementations never panic past this boundary: every transport failure is
// converted into a status transition plus an error return.
type Connection interface {
	// Connect opens the channel to device. An existing connection is torn
	// down first. On success the connection is StatusConnected and the
	// init command has already been written; on failure it is StatusError.
	Connect(ctx context.Context, device models.Device) error

	// Disconnect tears the channel down idempotently and always leaves the
	// connection StatusDisconnected.
	Disconnect()

	// SendCommand writes one wire token, fire and forget. Not being
	// connected or a write failure is logged locally, never returned.
	SendCommand(cmd protocol.Command)

	// Status returns the current lifecycle status.
	Status() Status

	// StatusEvents delivers every status transition in order.
	StatusEvents() <-chan Status

	// Messages delivers every inbound text unit verbatim, one per
	// underlying read event. Classification happens one layer up.
	Messages() <-chan string

	// Close tears down the transport and closes both event channels
	// permanently. No events are delivered after Close returns.
	Close()
}

// RunWatch is the shared continuous-discovery loop: it calls discover every
// interval, forwarding each outcome, until ctx is cancelled. Both transports
// implement Watch with it.
func RunWatch(ctx context.Context, interval time.Duration, discover func(context.Context) (models.Device, error)) <-chan DiscoveryResult {
	results := make(chan DiscoveryResult)

	go func() {
		defer close(results)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			device, err := discover(ctx)
			select {
			case results <- DiscoveryResult{Device: device, Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results
}

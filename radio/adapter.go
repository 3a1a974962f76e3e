// Package radio implements the short-range-radio transport: locating the
// robot among bonded or advertising devices and exchanging commands over a
// serial-profile channel.
package radio

import (
	"context"
	"errors"
	"io"
	"time"

	"hexapodctl/models"
)

const (
	// DefaultNameFilter is the substring matched against advertised names.
	DefaultNameFilter = "robot-spider"
	// DefaultScanTimeout bounds each active scan made by Watch.
	DefaultScanTimeout = 10 * time.Second
)

// ErrUnsupportedPlatform is returned by NewSystemAdapter on platforms without
// a radio backend.
var ErrUnsupportedPlatform = errors.New("radio: no adapter backend for this platform")

// ErrAdapterDisabled reports that the radio hardware is present but off.
var ErrAdapterDisabled = errors.New("radio: adapter is disabled")

// Adapter abstracts the platform radio stack so discovery and connection
// logic can be exercised against a fake in tests. The system implementation
// speaks to BlueZ over D-Bus on Linux.
type Adapter interface {
	// Powered reports whether the radio is switched on.
	Powered(ctx context.Context) (bool, error)

	// RequestPermission asks the platform for scan/connect permission.
	// A no-op on platforms that grant automatically.
	RequestPermission(ctx context.Context) error

	// BondedDevices returns the locally paired device list. This is a
	// local lookup and carries no timeout of its own.
	BondedDevices(ctx context.Context) ([]models.Device, error)

	// Scan actively scans until a device whose advertised name contains
	// nameFilter appears, or ctx ends. A device discovered after ctx ends
	// is discarded, never returned.
	Scan(ctx context.Context, nameFilter string) (models.Device, error)

	// OpenChannel opens the serial-profile channel to a hardware address.
	OpenChannel(ctx context.Context, address string) (io.ReadWriteCloser, error)
}

package radio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexapodctl/models"
	"hexapodctl/transport"
)

// fakeAdapter scripts every platform interaction so discovery logic runs
// without radio hardware.
type fakeAdapter struct {
	powered    bool
	poweredErr error

	permissionErr error

	bonded    []models.Device
	bondedErr error

	scanDevice models.Device
	scanErr    error
	scanDelay  time.Duration
	scanned    bool

	channel    io.ReadWriteCloser
	channelErr error
}

func (f *fakeAdapter) Powered(ctx context.Context) (bool, error) {
	return f.powered, f.poweredErr
}

func (f *fakeAdapter) RequestPermission(ctx context.Context) error {
	return f.permissionErr
}

func (f *fakeAdapter) BondedDevices(ctx context.Context) ([]models.Device, error) {
	return f.bonded, f.bondedErr
}

func (f *fakeAdapter) Scan(ctx context.Context, nameFilter string) (models.Device, error) {
	f.scanned = true
	if f.scanDelay > 0 {
		select {
		case <-time.After(f.scanDelay):
		case <-ctx.Done():
			return models.Device{}, ctx.Err()
		}
	}
	if f.scanErr != nil {
		return models.Device{}, f.scanErr
	}
	return f.scanDevice, nil
}

func (f *fakeAdapter) OpenChannel(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	return f.channel, f.channelErr
}

func TestDiscoverOncePrefersBondedDevices(t *testing.T) {
	adapter := &fakeAdapter{
		powered: true,
		bonded: []models.Device{
			models.NewDevice("kitchen-speaker", "11:22:33:44:55:66", 0),
			models.NewDevice("robot-spider", "AA:BB:CC:DD:EE:FF", 0),
		},
	}

	discovery, err := NewDiscovery(DiscoveryConfig{Adapter: adapter})
	require.NoError(t, err)

	device, err := discovery.DiscoverOnce(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", device.Address)
	assert.False(t, adapter.scanned, "bonded match must skip the active scan")
}

func TestDiscoverOnceFallsBackToActiveScan(t *testing.T) {
	adapter := &fakeAdapter{
		powered:    true,
		bonded:     []models.Device{models.NewDevice("kitchen-speaker", "11:22:33:44:55:66", 0)},
		scanDevice: models.NewDevice("robot-spider", "AA:BB:CC:DD:EE:FF", 0),
	}

	discovery, err := NewDiscovery(DiscoveryConfig{Adapter: adapter})
	require.NoError(t, err)

	device, err := discovery.DiscoverOnce(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", device.Address)
	assert.True(t, adapter.scanned)
}

func TestDiscoverOnceScansWhenBondedLookupFails(t *testing.T) {
	adapter := &fakeAdapter{
		powered:    true,
		bondedErr:  errors.New("dbus unavailable"),
		scanDevice: models.NewDevice("robot-spider", "AA:BB:CC:DD:EE:FF", 0),
	}

	discovery, err := NewDiscovery(DiscoveryConfig{Adapter: adapter})
	require.NoError(t, err)

	device, err := discovery.DiscoverOnce(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", device.Address)
}

func TestDiscoverOnceReportsDisabledAdapter(t *testing.T) {
	discovery, err := NewDiscovery(DiscoveryConfig{Adapter: &fakeAdapter{powered: false}})
	require.NoError(t, err)

	_, err = discovery.DiscoverOnce(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrAdapterDisabled)
}

func TestDiscoverOnceMapsScanTimeoutToNotFound(t *testing.T) {
	adapter := &fakeAdapter{powered: true, scanDelay: time.Second}

	discovery, err := NewDiscovery(DiscoveryConfig{Adapter: adapter})
	require.NoError(t, err)

	_, err = discovery.DiscoverOnce(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, transport.ErrNotFound)
}

func TestNewDiscoveryRequiresAnAdapter(t *testing.T) {
	_, err := NewDiscovery(DiscoveryConfig{})
	require.Error(t, err)
}

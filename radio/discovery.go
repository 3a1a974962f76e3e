package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hexapodctl/models"
	"hexapodctl/transport"
)

// DiscoveryConfig controls how the robot is located over radio.
type DiscoveryConfig struct {
	NameFilter  string
	ScanTimeout time.Duration
	Adapter     Adapter
	Logger      *slog.Logger
}

func (c DiscoveryConfig) withDefaults() DiscoveryConfig {
	out := c
	if out.NameFilter == "" {
		out.NameFilter = DefaultNameFilter
	}
	if out.ScanTimeout <= 0 {
		out.ScanTimeout = DefaultScanTimeout
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Discovery locates the robot among bonded devices first, then by active scan.
type Discovery struct {
	cfg     DiscoveryConfig
	adapter Adapter
	logger  *slog.Logger
}

// NewDiscovery creates a radio discovery service over an adapter.
func NewDiscovery(config DiscoveryConfig) (*Discovery, error) {
	cfg := config.withDefaults()
	if cfg.Adapter == nil {
		return nil, errors.New("radio: adapter is required")
	}
	return &Discovery{
		cfg:     cfg,
		adapter: cfg.Adapter,
		logger:  cfg.Logger,
	}, nil
}

// DiscoverOnce checks the bonded device list (a local lookup, untimed) and
// then runs one active scan bounded by timeout. Returns transport.ErrNotFound
// when the scan window closes without a match.
func (d *Discovery) DiscoverOnce(ctx context.Context, timeout time.Duration) (models.Device, error) {
	powered, err := d.adapter.Powered(ctx)
	if err != nil {
		return models.Device{}, fmt.Errorf("check adapter state: %w", err)
	}
	if !powered {
		return models.Device{}, ErrAdapterDisabled
	}

	if err := d.adapter.RequestPermission(ctx); err != nil {
		return models.Device{}, fmt.Errorf("radio permission: %w", err)
	}

	bonded, err := d.adapter.BondedDevices(ctx)
	if err != nil {
		d.logger.Warn("bonded device lookup failed, scanning instead", "error", err)
	}
	for _, device := range bonded {
		if strings.Contains(device.DisplayName, d.cfg.NameFilter) {
			return device, nil
		}
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	device, err := d.adapter.Scan(scanCtx, d.cfg.NameFilter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Device{}, transport.ErrNotFound
		}
		return models.Device{}, fmt.Errorf("active scan: %w", err)
	}
	return device, nil
}

// Watch re-runs DiscoverOnce every interval until ctx is cancelled.
func (d *Discovery) Watch(ctx context.Context, interval time.Duration) <-chan transport.DiscoveryResult {
	return transport.RunWatch(ctx, interval, func(ctx context.Context) (models.Device, error) {
		return d.DiscoverOnce(ctx, d.cfg.ScanTimeout)
	})
}

//go:build !linux

package radio

import "log/slog"

// AdapterConfig controls the system adapter. Only the Linux backend reads
// the adapter path and channel; they are accepted everywhere so callers can
// configure unconditionally.
type AdapterConfig struct {
	AdapterPath string
	Channel     uint8
	Logger      *slog.Logger
}

// NewSystemAdapter reports that no radio backend exists on this platform.
func NewSystemAdapter(config AdapterConfig) (Adapter, error) {
	return nil, ErrUnsupportedPlatform
}

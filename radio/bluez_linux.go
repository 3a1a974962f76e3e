//go:build linux

package radio

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"hexapodctl/models"
)

const (
	bluezService = "org.bluez"

	adapterInterface = "org.bluez.Adapter1"
	deviceInterface  = "org.bluez.Device1"

	// DefaultAdapterPath is the first radio adapter on most systems.
	DefaultAdapterPath = "/org/bluez/hci0"
	// DefaultRFCOMMChannel is the serial-profile channel the robot listens on.
	DefaultRFCOMMChannel = 1

	scanPollInterval = 500 * time.Millisecond
)

// AdapterConfig controls the BlueZ-backed system adapter.
type AdapterConfig struct {
	AdapterPath string
	Channel     uint8
	Logger      *slog.Logger
}

func (c AdapterConfig) withDefaults() AdapterConfig {
	out := c
	if out.AdapterPath == "" {
		out.AdapterPath = DefaultAdapterPath
	}
	if out.Channel == 0 {
		out.Channel = DefaultRFCOMMChannel
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// bluezAdapter implements Adapter against BlueZ over the system D-Bus, with
// the serial-profile channel opened as a raw RFCOMM socket.
type bluezAdapter struct {
	bus         *dbus.Conn
	adapterPath dbus.ObjectPath
	channel     uint8
	logger      *slog.Logger
}

// NewSystemAdapter connects to the system bus and returns the BlueZ adapter.
func NewSystemAdapter(config AdapterConfig) (Adapter, error) {
	cfg := config.withDefaults()

	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	return &bluezAdapter{
		bus:         bus,
		adapterPath: dbus.ObjectPath(cfg.AdapterPath),
		channel:     cfg.Channel,
		logger:      cfg.Logger,
	}, nil
}

func (a *bluezAdapter) Powered(ctx context.Context) (bool, error) {
	variant, err := a.bus.Object(bluezService, a.adapterPath).GetProperty(adapterInterface + ".Powered")
	if err != nil {
		return false, fmt.Errorf("read adapter powered state: %w", err)
	}
	powered, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected powered property type %T", variant.Value())
	}
	return powered, nil
}

// RequestPermission is a no-op: on Linux, access is granted by bus policy.
func (a *bluezAdapter) RequestPermission(ctx context.Context) error {
	return nil
}

func (a *bluezAdapter) BondedDevices(ctx context.Context) ([]models.Device, error) {
	objects, err := a.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.Device
	for _, ifaces := range objects {
		props, ok := ifaces[deviceInterface]
		if !ok {
			continue
		}
		paired, _ := props["Paired"].Value().(bool)
		if !paired {
			continue
		}
		if device, ok := deviceFromProperties(props); ok {
			out = append(out, device)
		}
	}
	return out, nil
}

func (a *bluezAdapter) Scan(ctx context.Context, nameFilter string) (models.Device, error) {
	adapterObj := a.bus.Object(bluezService, a.adapterPath)
	if err := adapterObj.CallWithContext(ctx, adapterInterface+".StartDiscovery", 0).Err; err != nil {
		return models.Device{}, fmt.Errorf("start discovery: %w", err)
	}
	defer func() {
		if err := adapterObj.Call(adapterInterface+".StopDiscovery", 0).Err; err != nil {
			a.logger.Warn("stop discovery failed", "error", err)
		}
	}()

	ticker := time.NewTicker(scanPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.Device{}, ctx.Err()
		case <-ticker.C:
			objects, err := a.managedObjects(ctx)
			if err != nil {
				return models.Device{}, err
			}
			for _, ifaces := range objects {
				props, ok := ifaces[deviceInterface]
				if !ok {
					continue
				}
				device, ok := deviceFromProperties(props)
				if !ok || !strings.Contains(device.DisplayName, nameFilter) {
					continue
				}
				return device, nil
			}
		}
	}
}

func (a *bluezAdapter) OpenChannel(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := parseHardwareAddress(address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("open rfcomm socket: %w", err)
	}

	sa := &unix.SockaddrRFCOMM{Addr: target, Channel: a.channel}
	if err := unix.Connect(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("connect rfcomm %s channel %d: %w", address, a.channel, err)
	}

	return os.NewFile(uintptr(fd), "rfcomm:"+address), nil
}

func (a *bluezAdapter) managedObjects(ctx context.Context) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := a.bus.Object(bluezService, "/").CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("list bluez objects: %w", err)
	}
	return objects, nil
}

func deviceFromProperties(props map[string]dbus.Variant) (models.Device, bool) {
	address, _ := props["Address"].Value().(string)
	if address == "" {
		return models.Device{}, false
	}
	name, _ := props["Name"].Value().(string)
	if name == "" {
		name, _ = props["Alias"].Value().(string)
	}
	return models.NewDevice(name, address, 0), true
}

// parseHardwareAddress converts "AA:BB:CC:DD:EE:FF" to the kernel's
// little-endian byte order.
func parseHardwareAddress(address string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(address, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("invalid hardware address %q", address)
	}
	for i, part := range parts {
		raw, err := hex.DecodeString(part)
		if err != nil || len(raw) != 1 {
			return out, fmt.Errorf("invalid hardware address %q", address)
		}
		out[5-i] = raw[0]
	}
	return out, nil
}

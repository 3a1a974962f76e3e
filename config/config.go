// Package config persists the app configuration: the build-time transport
// choice plus the fixed protocol constants of each transport.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"hexapodctl/logbuf"
	"hexapodctl/network"
	"hexapodctl/radio"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "hexapodctl"
	// TransportNetwork selects mDNS discovery and the WebSocket channel.
	TransportNetwork = "network"
	// TransportRadio selects bonded-list/active-scan discovery and the
	// serial-profile channel.
	TransportRadio = "radio"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// AppConfig contains the persistent settings. The transport is chosen here
// once; there is no runtime transport switching.
type AppConfig struct {
	ClientID  string `json:"client_id"`
	Transport string `json:"transport"`

	// Network transport constants.
	ServiceName string `json:"service_name"`
	Domain      string `json:"domain"`
	Hostname    string `json:"hostname"`
	Port        int    `json:"port"`

	// Radio transport constants.
	DeviceNameFilter string `json:"device_name_filter"`
	AdapterPath      string `json:"adapter_path"`
	RFCOMMChannel    uint8  `json:"rfcomm_channel"`
	SerialPortPath   string `json:"serial_port_path,omitempty"`

	LogCapacity    int  `json:"log_capacity"`
	HistoryEnabled bool `json:"history_enabled"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If HEXAPODCTL_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv("HEXAPODCTL_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *AppConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures the data directory and config exist, then returns the
// config and its path.
func LoadOrCreate() (*AppConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create data directory: %w", err)
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig()
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		ClientID:         uuid.NewString(),
		Transport:        TransportNetwork,
		ServiceName:      network.DefaultService,
		Domain:           network.DefaultDomain,
		Hostname:         network.DefaultHostname,
		Port:             network.DefaultPort,
		DeviceNameFilter: radio.DefaultNameFilter,
		AdapterPath:      "/org/bluez/hci0",
		RFCOMMChannel:    1,
		LogCapacity:      logbuf.DefaultCapacity,
		HistoryEnabled:   true,
	}
}

func normalizeDefaults(cfg *AppConfig) bool {
	updated := false

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
		updated = true
	}
	if cfg.Transport != TransportNetwork && cfg.Transport != TransportRadio {
		cfg.Transport = TransportNetwork
		updated = true
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = network.DefaultService
		updated = true
	}
	if cfg.Domain == "" {
		cfg.Domain = network.DefaultDomain
		updated = true
	}
	if cfg.Hostname == "" {
		cfg.Hostname = network.DefaultHostname
		updated = true
	}
	if cfg.Port <= 0 {
		cfg.Port = network.DefaultPort
		updated = true
	}
	if cfg.DeviceNameFilter == "" {
		cfg.DeviceNameFilter = radio.DefaultNameFilter
		updated = true
	}
	if cfg.AdapterPath == "" {
		cfg.AdapterPath = "/org/bluez/hci0"
		updated = true
	}
	if cfg.RFCOMMChannel == 0 {
		cfg.RFCOMMChannel = 1
		updated = true
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = logbuf.DefaultCapacity
		updated = true
	}

	return updated
}

package models

import "time"

// Device is an addressable remote robot endpoint: a network host plus port,
// or a radio hardware address with Port zero.
//
// Devices are value objects created by a discovery implementation or built
// manually from user-entered address/port. Identity is (Address, Port) only;
// DisplayName and DiscoveredAt are informational.
type Device struct {
	DisplayName  string    `json:"display_name"`
	Address      string    `json:"address"`
	Port         int       `json:"port"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// NewDevice builds a device stamped with the current time.
func NewDevice(displayName, address string, port int) Device {
	return Device{
		DisplayName:  displayName,
		Address:      address,
		Port:         port,
		DiscoveredAt: time.Now(),
	}
}

// Equal reports endpoint identity: same address and port, regardless of
// display name or discovery time.
func (d Device) Equal(other Device) bool {
	return d.Address == other.Address && d.Port == other.Port
}

// IsZero reports whether d carries no endpoint at all.
func (d Device) IsZero() bool {
	return d.Address == ""
}

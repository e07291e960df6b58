// Package ble maintains the host side of the micro:bit joystick link: one
// connection session at a time, a revision-ordered state mirror fed by
// notifications, and a single-slot command dispatcher for outbound writes.
package ble

import "context"

// Characteristic represents a BLE GATT characteristic on the device.
type Characteristic interface {
	// Read fetches the characteristic's current value.
	Read() ([]byte, error)
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe stops notifications.
	Unsubscribe() error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverService verifies that a primary service is present.
	DiscoverService(serviceUUID string) error
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// FindDevice scans for a peripheral advertising the given local name
	// until one is found or ctx is done.
	FindDevice(ctx context.Context, name string) (Device, error)
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}

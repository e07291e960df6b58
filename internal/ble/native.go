package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// NativeAdapter wraps tinygo-org/bluetooth (BlueZ on Linux, CoreBluetooth
// on macOS, WinRT on Windows). Note that on macOS device addresses are
// CoreBluetooth UUIDs, not MAC addresses; the Address strings here are
// whatever the platform stack reports.
type NativeAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*nativeConnection // keyed by device address
}

// NewNativeAdapter creates an adapter over the platform default radio.
func NewNativeAdapter() *NativeAdapter {
	return &NativeAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*nativeConnection),
	}
}

func (a *NativeAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// The stack fires this (connected=false) when a peripheral drops;
	// route it to the matching connection's OnDisconnect callback.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		a.mu.Unlock()
		if ok && conn.disconnectCb != nil {
			conn.disconnectCb()
		}
	})

	return nil
}

func (a *NativeAdapter) FindDevice(ctx context.Context, name string) (Device, error) {
	var (
		mu    sync.Mutex
		found *Device
	)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if result.LocalName() != name {
			return
		}
		mu.Lock()
		if found == nil {
			found = &Device{
				Name:    result.LocalName(),
				Address: result.Address.String(),
				RSSI:    int(result.RSSI),
			}
		}
		mu.Unlock()
		adapter.StopScan()
	})
	close(done)

	mu.Lock()
	defer mu.Unlock()
	if found != nil {
		return *found, nil
	}
	if err != nil && ctx.Err() == nil {
		return Device{}, fmt.Errorf("scan: %w", err)
	}
	return Device{}, fmt.Errorf("no device named %q: %w", name, ctx.Err())
}

func (a *NativeAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// The stack's Connect blocks with its own timeout; wrap it so our
	// ctx deadline is respected too.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The underlying Connect will eventually time out or succeed on
		// its own; we return immediately.
		return nil, fmt.Errorf("connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("connect to %s: %w", address, result.err)
		}
		conn := &nativeConnection{device: result.device}

		a.mu.Lock()
		a.connections[address] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that NativeAdapter implements Adapter.
var _ Adapter = (*NativeAdapter)(nil)

type nativeConnection struct {
	device       bluetooth.Device
	disconnectCb func()

	// mu protects the discovered-services cache. Discovery is repeated
	// per signal; the stack round-trip only happens once per service.
	mu       sync.Mutex
	services map[string]bluetooth.DeviceService
}

func (c *nativeConnection) service(serviceUUID string) (bluetooth.DeviceService, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return bluetooth.DeviceService{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.services == nil {
		c.services = make(map[string]bluetooth.DeviceService)
	}
	if svc, ok := c.services[serviceUUID]; ok {
		return svc, nil
	}

	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return bluetooth.DeviceService{}, fmt.Errorf("discover services: %w", err)
	}
	if len(svcs) == 0 {
		return bluetooth.DeviceService{}, fmt.Errorf("service %s not found", serviceUUID)
	}
	c.services[serviceUUID] = svcs[0]
	return svcs[0], nil
}

func (c *nativeConnection) DiscoverService(serviceUUID string) error {
	_, err := c.service(serviceUUID)
	return err
}

func (c *nativeConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svc, err := c.service(serviceUUID)
	if err != nil {
		return nil, err
	}

	parsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}
	chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{parsed})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("characteristic %s not found", charUUID)
	}

	return &nativeCharacteristic{char: chars[0]}, nil
}

func (c *nativeConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *nativeConnection) OnDisconnect(cb func()) {
	c.disconnectCb = cb
}

type nativeCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *nativeCharacteristic) Read() ([]byte, error) {
	buf := make([]byte, 64)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *nativeCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *nativeCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}

func (c *nativeCharacteristic) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}

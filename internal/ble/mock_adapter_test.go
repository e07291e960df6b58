package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"joyhost/internal/ble/protocol"
)

// mockCharacteristic holds a value, records writes, and allows subscribing.
type mockCharacteristic struct {
	mu           sync.Mutex
	value        []byte
	writes       [][]byte
	callback     func([]byte)
	unsubscribes int

	readErr      error
	writeErr     error
	subscribeErr error
	// writeHook runs inside Write while holding no locks; tests use it to
	// block the transport lane or inject disconnects mid-write.
	writeHook func([]byte)
}

func (c *mockCharacteristic) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	cp := make([]byte, len(c.value))
	copy(cp, c.value)
	return cp, nil
}

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	hook := c.writeHook
	c.mu.Unlock()
	if hook != nil {
		hook(data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	c.value = cp
	return nil
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.callback = cb
	return nil
}

func (c *mockCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = nil
	c.unsubscribes++
	return nil
}

// SimulateNotification pushes a payload to the subscriber, like the device
// notifying a value change.
func (c *mockCharacteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (c *mockCharacteristic) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *mockCharacteristic) lastWrite() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return nil
	}
	return c.writes[len(c.writes)-1]
}

// mockConnection simulates a connected joystick peripheral.
type mockConnection struct {
	mu           sync.Mutex
	services     map[string]bool
	chars        map[string]*mockCharacteristic // keyed by characteristic UUID
	disconnectCb func()
	disconnected bool
	// disconnectOrder records unsubscribe/disconnect sequencing.
	disconnectOrder []string
}

// newJoystickConnection builds a connection exposing the full firmware
// surface with idle initial values: axes centered, buttons released,
// battery full, 100ms update rate, LED on, default name.
func newJoystickConnection() *mockConnection {
	conn := &mockConnection{
		services: map[string]bool{
			protocol.JoystickServiceUUID: true,
			protocol.BatteryServiceUUID:  true,
			protocol.ConfigServiceUUID:   true,
		},
		chars: make(map[string]*mockCharacteristic),
	}
	initial := map[protocol.Signal]protocol.Value{
		protocol.AxisX:        protocol.Uint16(512),
		protocol.AxisY:        protocol.Uint16(512),
		protocol.BatteryLevel: protocol.Uint16(100),
		protocol.UpdateRateMs: protocol.Uint16(100),
		protocol.LedEnabled:   protocol.Pressed(true),
		protocol.DeviceName:   protocol.Text(protocol.AdvertisedName),
	}
	for _, sig := range protocol.Signals() {
		val := initial[sig] // buttons default to released
		data, err := protocol.Encode(sig, val)
		if err != nil {
			// Write-only effect signals have no stored value to encode.
			data = []byte{0}
		}
		conn.chars[protocol.Lookup(sig).UUID] = &mockCharacteristic{value: data}
	}
	return conn
}

func (c *mockConnection) DiscoverService(serviceUUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.services[serviceUUID] {
		return fmt.Errorf("mock: service %s not present", serviceUUID)
	}
	return nil
}

func (c *mockConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.services[serviceUUID] {
		return nil, fmt.Errorf("mock: service %s not present", serviceUUID)
	}
	char, ok := c.chars[charUUID]
	if !ok {
		return nil, fmt.Errorf("mock: unknown characteristic UUID %q", charUUID)
	}
	return &orderTrackingChar{char: char, conn: c, uuid: charUUID}, nil
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.disconnectOrder = append(c.disconnectOrder, "disconnect")
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// SimulateDisconnect reports an unrequested link drop, like the device
// powering off.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *mockConnection) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// char returns the raw mock characteristic for a signal, for seeding
// errors and asserting on writes.
func (c *mockConnection) char(sig protocol.Signal) *mockCharacteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chars[protocol.Lookup(sig).UUID]
}

// removeService drops a whole service, simulating older firmware.
func (c *mockConnection) removeService(serviceUUID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.services, serviceUUID)
	for _, sig := range protocol.Signals() {
		info := protocol.Lookup(sig)
		if info.Service == serviceUUID {
			delete(c.chars, info.UUID)
		}
	}
}

// orderTrackingChar wraps a characteristic so the connection can record
// the unsubscribe-before-disconnect ordering.
type orderTrackingChar struct {
	char *mockCharacteristic
	conn *mockConnection
	uuid string
}

func (o *orderTrackingChar) Read() ([]byte, error)    { return o.char.Read() }
func (o *orderTrackingChar) Write(data []byte) error  { return o.char.Write(data) }
func (o *orderTrackingChar) Subscribe(cb func([]byte)) error {
	return o.char.Subscribe(cb)
}

func (o *orderTrackingChar) Unsubscribe() error {
	err := o.char.Unsubscribe()
	o.conn.mu.Lock()
	o.conn.disconnectOrder = append(o.conn.disconnectOrder, "unsubscribe")
	o.conn.mu.Unlock()
	return err
}

// mockAdapter simulates the radio: a fixed set of advertising devices and
// one prepared connection.
type mockAdapter struct {
	mu         sync.Mutex
	devices    []Device
	connection *mockConnection
	connectErr error
	connects   int
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		devices: []Device{
			{Name: protocol.AdvertisedName, Address: "C0:FF:EE:00:00:01", RSSI: -60},
		},
		connection: newJoystickConnection(),
	}
}

func (a *mockAdapter) Enable() error { return nil }

func (a *mockAdapter) FindDevice(ctx context.Context, name string) (Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range a.devices {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, errors.New("mock: no matching advertisement")
}

func (a *mockAdapter) Connect(_ context.Context, _ string) (Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connects++
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	return a.connection, nil
}

func (a *mockAdapter) connectCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestMockConnectionImplementsInterface(t *testing.T) {
	var _ Connection = (*mockConnection)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ Characteristic = (*mockCharacteristic)(nil)
}

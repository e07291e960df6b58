// Package protocol defines the GATT contract of the micro:bit joystick:
// the signal registry (UUIDs, directions, encodings, valid ranges) and the
// fixed-width wire codec. The registry is built once at init and never
// mutated; routing an inbound notification is a LookupUUID plus a switch
// over Signal, not a UUID comparison chain.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Services exposed by the joystick firmware.
const (
	JoystickServiceUUID = "12345678-1234-5678-1234-56789abcdef0"
	BatteryServiceUUID  = "0000180f-0000-1000-8000-00805f9b34fb"
	ConfigServiceUUID   = "87654321-4321-8765-4321-fedcba987654"
)

// AdvertisedName is the local name the firmware advertises by default.
// It can be changed at runtime through the DeviceName characteristic.
const AdvertisedName = "microbit-joy"

// Signal identifies one named quantity exposed by the device.
type Signal int

const (
	AxisX Signal = iota
	AxisY
	ButtonA // legacy: current firmware reuses this pad as Button 3
	ButtonB
	Button1
	Button2
	Button3
	Button4
	Vibration
	Buzzer
	BatteryLevel
	UpdateRateMs
	LedEnabled
	DeviceName
	signalCount
)

var signalNames = [signalCount]string{
	"axis_x", "axis_y", "button_a", "button_b",
	"button_1", "button_2", "button_3", "button_4",
	"vibration", "buzzer", "battery_level",
	"update_rate_ms", "led_enabled", "device_name",
}

func (s Signal) String() string {
	if s < 0 || s >= signalCount {
		return fmt.Sprintf("signal(%d)", int(s))
	}
	return signalNames[s]
}

// Direction describes which GATT operations a signal supports.
type Direction int

const (
	// ReadNotify signals are device-owned: readable and pushed via
	// notifications, never written by the host.
	ReadNotify Direction = iota
	// WriteOnly signals trigger effects (vibration, buzzer).
	WriteOnly
	// ReadWrite signals are runtime configuration: readable, writable,
	// and notified back by the device when it clamps or rejects a write.
	ReadWrite
)

// Encoding is the wire representation of a signal's value.
type Encoding int

const (
	U8    Encoding = iota // one unsigned byte
	U16LE                 // two bytes, unsigned little-endian
	// Button is one byte compared against 1: pressed iff the byte equals 1,
	// every other value is released. This mirrors the firmware clients'
	// exact "== 1" comparison and is deliberately not a truthiness test.
	Button
	// Bool is one byte strictly 0 or 1; anything else is out of range.
	Bool
	// FixedString is a 20-byte zero-padded UTF-8 field.
	FixedString
)

// FixedStringWidth is the on-wire size of FixedString characteristics.
const FixedStringWidth = 20

// Width returns the wire width in bytes for an encoding.
func Width(e Encoding) int {
	switch e {
	case U16LE:
		return 2
	case FixedString:
		return FixedStringWidth
	default:
		return 1
	}
}

// Info describes one registry entry.
type Info struct {
	ID        Signal
	Service   string // canonical service UUID
	UUID      string // canonical characteristic UUID
	Direction Direction
	Encoding  Encoding
	Min, Max  uint16 // inclusive bounds for integer encodings
}

// Readable reports whether the signal supports GATT reads.
func (i Info) Readable() bool { return i.Direction != WriteOnly }

// Writable reports whether the signal accepts GATT writes.
func (i Info) Writable() bool { return i.Direction != ReadNotify }

// Notifies reports whether the device pushes this signal via notifications.
func (i Info) Notifies() bool { return i.Direction != WriteOnly }

var registry = [signalCount]Info{
	AxisX:        {AxisX, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdef1", ReadNotify, U16LE, 0, 1023},
	AxisY:        {AxisY, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdef2", ReadNotify, U16LE, 0, 1023},
	ButtonA:      {ButtonA, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdef3", ReadNotify, Button, 0, 1},
	ButtonB:      {ButtonB, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdef4", ReadNotify, Button, 0, 1},
	Button1:      {Button1, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdef5", ReadNotify, Button, 0, 1},
	Button2:      {Button2, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdef6", ReadNotify, Button, 0, 1},
	Button3:      {Button3, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdef7", ReadNotify, Button, 0, 1},
	Button4:      {Button4, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdef8", ReadNotify, Button, 0, 1},
	Vibration:    {Vibration, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdefa", WriteOnly, U8, 0, 5},
	Buzzer:       {Buzzer, JoystickServiceUUID, "12345678-1234-5678-1234-56789abcdefb", WriteOnly, U8, 0, 8},
	BatteryLevel: {BatteryLevel, BatteryServiceUUID, "00002a19-0000-1000-8000-00805f9b34fb", ReadNotify, U8, 0, 100},
	UpdateRateMs: {UpdateRateMs, ConfigServiceUUID, "87654321-4321-8765-4321-fedcba987655", ReadWrite, U16LE, 20, 2000},
	LedEnabled:   {LedEnabled, ConfigServiceUUID, "87654321-4321-8765-4321-fedcba987656", ReadWrite, Bool, 0, 1},
	DeviceName:   {DeviceName, ConfigServiceUUID, "87654321-4321-8765-4321-fedcba987657", ReadWrite, FixedString, 0, 0},
}

var byUUID map[string]Signal

func init() {
	byUUID = make(map[string]Signal, signalCount)
	for i := range registry {
		// Canonicalize so lookups are insensitive to case and formatting.
		// A malformed registry entry is a programming error, so panic.
		registry[i].Service = uuid.MustParse(registry[i].Service).String()
		canon := uuid.MustParse(registry[i].UUID).String()
		registry[i].UUID = canon
		if prev, dup := byUUID[canon]; dup {
			panic(fmt.Sprintf("protocol: UUID %s reused by %s and %s", canon, prev, registry[i].ID))
		}
		byUUID[canon] = registry[i].ID
	}
}

// Lookup returns the registry entry for a signal.
func Lookup(s Signal) Info {
	return registry[s]
}

// LookupUUID resolves a characteristic UUID to its signal. The second
// return is false for UUIDs outside the registry (firmware mismatch).
func LookupUUID(charUUID string) (Signal, bool) {
	u, err := uuid.Parse(strings.TrimSpace(charUUID))
	if err != nil {
		return 0, false
	}
	s, ok := byUUID[u.String()]
	return s, ok
}

// Signals returns all registered signals in declaration order. This order
// is the session's subscription order.
func Signals() []Signal {
	out := make([]Signal, 0, signalCount)
	for s := Signal(0); s < signalCount; s++ {
		out = append(out, s)
	}
	return out
}

// Direction check errors. These indicate host-side programming errors,
// not device faults.
var (
	ErrNotWritable = errors.New("protocol: signal is not writable")
	ErrNotReadable = errors.New("protocol: signal is not readable")
)

// CheckWritable returns ErrNotWritable if the signal rejects writes.
func CheckWritable(s Signal) error {
	if !registry[s].Writable() {
		return fmt.Errorf("%w: %s", ErrNotWritable, s)
	}
	return nil
}

// CheckReadable returns ErrNotReadable if the signal rejects reads.
func CheckReadable(s Signal) error {
	if !registry[s].Readable() {
		return fmt.Errorf("%w: %s", ErrNotReadable, s)
	}
	return nil
}

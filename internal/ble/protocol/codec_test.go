package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		sig Signal
		val Value
	}{
		{AxisX, Uint16(0)},
		{AxisX, Uint16(512)},
		{AxisX, Uint16(1023)},
		{AxisY, Uint16(256)},
		{ButtonB, Pressed(true)},
		{ButtonB, Pressed(false)},
		{Button4, Pressed(true)},
		{Vibration, Uint16(0)},
		{Vibration, Uint16(5)},
		{Buzzer, Uint16(8)},
		{BatteryLevel, Uint16(100)},
		{UpdateRateMs, Uint16(20)},
		{UpdateRateMs, Uint16(2000)},
		{LedEnabled, Pressed(true)},
		{DeviceName, Text("microbit-joy")},
		{DeviceName, Text("")},
	}

	for _, tc := range cases {
		data, err := Encode(tc.sig, tc.val)
		if err != nil {
			t.Errorf("Encode(%s, %s) error = %v", tc.sig, tc.val, err)
			continue
		}
		got, err := Decode(tc.sig, data)
		if err != nil {
			t.Errorf("Decode(%s, % x) error = %v", tc.sig, data, err)
			continue
		}
		if got != tc.val {
			t.Errorf("round trip %s: got %s, want %s", tc.sig, got, tc.val)
		}
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	for _, sig := range Signals() {
		// One byte longer than the fixed width is wrong for every encoding.
		data := make([]byte, Width(Lookup(sig).Encoding)+1)
		if _, err := Decode(sig, data); !errors.Is(err, ErrLengthMismatch) {
			t.Errorf("Decode(%s, %d bytes) error = %v, want ErrLengthMismatch", sig, len(data), err)
		}
	}

	// Two-byte signals must not silently truncate a single byte.
	if _, err := Decode(AxisX, []byte{0x42}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Decode(axis_x, 1 byte) error = %v, want ErrLengthMismatch", err)
	}
	if _, err := Decode(ButtonB, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Decode(button_b, empty) error = %v, want ErrLengthMismatch", err)
	}
}

func TestButtonEqualityToOne(t *testing.T) {
	cases := []struct {
		raw     byte
		pressed bool
	}{
		{0x00, false},
		{0x01, true},
		{0x02, false}, // only exactly 1 counts as pressed
		{0xff, false},
	}
	for _, tc := range cases {
		v, err := Decode(ButtonB, []byte{tc.raw})
		if err != nil {
			t.Fatalf("Decode(button_b, 0x%02x) error = %v", tc.raw, err)
		}
		if v.Bool() != tc.pressed {
			t.Errorf("Decode(button_b, 0x%02x).Bool() = %v, want %v", tc.raw, v.Bool(), tc.pressed)
		}
	}
}

func TestBoolStrictRange(t *testing.T) {
	// LedEnabled is a strict bool: 2 is a protocol violation, unlike the
	// button encoding where 2 means released.
	if _, err := Decode(LedEnabled, []byte{0x02}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Decode(led_enabled, 0x02) error = %v, want ErrOutOfRange", err)
	}
	v, err := Decode(LedEnabled, []byte{0x01})
	if err != nil || !v.Bool() {
		t.Errorf("Decode(led_enabled, 0x01) = %v, %v, want enabled", v, err)
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	cases := []struct {
		sig  Signal
		data []byte
	}{
		{AxisX, []byte{0x00, 0x04}},       // 1024
		{AxisY, []byte{0xff, 0xff}},       // 65535
		{BatteryLevel, []byte{101}},       //
		{UpdateRateMs, []byte{0x0a, 0x00}}, // 10ms, below device minimum
	}
	for _, tc := range cases {
		if _, err := Decode(tc.sig, tc.data); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Decode(%s, % x) error = %v, want ErrOutOfRange", tc.sig, tc.data, err)
		}
	}
}

func TestEncodeOutOfRangeNeverReachesWire(t *testing.T) {
	cases := []struct {
		sig Signal
		val Value
	}{
		{Vibration, Uint16(6)},
		{Buzzer, Uint16(9)},
		{UpdateRateMs, Uint16(10)},
		{UpdateRateMs, Uint16(2001)},
		{LedEnabled, Uint16(2)},
		{DeviceName, Text("this-name-is-far-too-long")},
	}
	for _, tc := range cases {
		if _, err := Encode(tc.sig, tc.val); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Encode(%s, %s) error = %v, want ErrOutOfRange", tc.sig, tc.val, err)
		}
	}
}

func TestEncodeLittleEndian(t *testing.T) {
	data, err := Encode(UpdateRateMs, Uint16(500))
	if err != nil {
		t.Fatalf("Encode(update_rate_ms, 500) error = %v", err)
	}
	if !bytes.Equal(data, []byte{0xf4, 0x01}) {
		t.Errorf("Encode(update_rate_ms, 500) = % x, want f4 01", data)
	}
}

func TestDecodeAxisLittleEndian(t *testing.T) {
	v, err := Decode(AxisX, []byte{0x00, 0x01})
	if err != nil {
		t.Fatalf("Decode(axis_x, 00 01) error = %v", err)
	}
	if v.Uint != 256 {
		t.Errorf("Decode(axis_x, 00 01) = %d, want 256", v.Uint)
	}
}

func TestFixedStringPadding(t *testing.T) {
	data, err := Encode(DeviceName, Text("test-joy"))
	if err != nil {
		t.Fatalf("Encode(device_name) error = %v", err)
	}
	if len(data) != FixedStringWidth {
		t.Fatalf("Encode(device_name) length = %d, want %d", len(data), FixedStringWidth)
	}
	if !bytes.HasSuffix(data, make([]byte, FixedStringWidth-len("test-joy"))) {
		t.Errorf("Encode(device_name) = % x, want zero padded", data)
	}

	v, err := Decode(DeviceName, data)
	if err != nil {
		t.Fatalf("Decode(device_name) error = %v", err)
	}
	if v.Text != "test-joy" {
		t.Errorf("Decode(device_name) = %q, want %q", v.Text, "test-joy")
	}
}

func TestFixedStringInvalidUTF8(t *testing.T) {
	data := make([]byte, FixedStringWidth)
	copy(data, []byte{0xff, 0xfe, 0xfd})
	if _, err := Decode(DeviceName, data); !errors.Is(err, ErrInvalidText) {
		t.Errorf("Decode(device_name, invalid UTF-8) error = %v, want ErrInvalidText", err)
	}
}

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Codec errors, distinguished with errors.Is.
var (
	ErrLengthMismatch = errors.New("protocol: payload length mismatch")
	ErrOutOfRange     = errors.New("protocol: value out of range")
	ErrInvalidText    = errors.New("protocol: invalid UTF-8 text")
)

// Value is a decoded signal value. Integer encodings (U8, U16LE, Button,
// Bool) populate Uint; FixedString populates Text. Values are comparable
// with ==.
type Value struct {
	Uint uint16
	Text string
}

// Uint16 wraps an integer value for U8 and U16LE signals.
func Uint16(v uint16) Value { return Value{Uint: v} }

// Pressed wraps a button or bool state.
func Pressed(on bool) Value {
	if on {
		return Value{Uint: 1}
	}
	return Value{}
}

// Text wraps a string value for FixedString signals.
func Text(s string) Value { return Value{Text: s} }

// Bool reports the value as a pressed/enabled flag, using the exact
// equality-to-1 comparison the device contract specifies.
func (v Value) Bool() bool { return v.Uint == 1 }

func (v Value) String() string {
	if v.Text != "" {
		return fmt.Sprintf("%q", v.Text)
	}
	return fmt.Sprintf("%d", v.Uint)
}

// Decode turns a characteristic payload into a Value according to the
// signal's registry entry. Payloads that cannot be produced by a
// conforming device yield an error and must be dropped by the caller,
// never stored.
func Decode(sig Signal, data []byte) (Value, error) {
	info := registry[sig]

	want := Width(info.Encoding)
	if info.Encoding == FixedString {
		// Reads return the full 20-byte field; some stacks trim the
		// zero padding from notifications. Longer than the field is
		// always a violation.
		if len(data) > want {
			return Value{}, fmt.Errorf("%w: %s payload is %d bytes, max %d", ErrLengthMismatch, sig, len(data), want)
		}
	} else if len(data) != want {
		return Value{}, fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrLengthMismatch, sig, len(data), want)
	}

	switch info.Encoding {
	case U8:
		v := uint16(data[0])
		if v < info.Min || v > info.Max {
			return Value{}, fmt.Errorf("%w: %s = %d, valid %d..%d", ErrOutOfRange, sig, v, info.Min, info.Max)
		}
		return Uint16(v), nil

	case U16LE:
		v := binary.LittleEndian.Uint16(data)
		if v < info.Min || v > info.Max {
			return Value{}, fmt.Errorf("%w: %s = %d, valid %d..%d", ErrOutOfRange, sig, v, info.Min, info.Max)
		}
		return Uint16(v), nil

	case Button:
		// Exact equality: 0x01 is pressed, everything else (including
		// 0x02) is released. See the Button encoding doc.
		return Pressed(data[0] == 1), nil

	case Bool:
		if data[0] > 1 {
			return Value{}, fmt.Errorf("%w: %s = %d, valid 0..1", ErrOutOfRange, sig, data[0])
		}
		return Pressed(data[0] == 1), nil

	case FixedString:
		trimmed := bytes.TrimRight(data, "\x00")
		if !utf8.Valid(trimmed) {
			return Value{}, fmt.Errorf("%w: %s", ErrInvalidText, sig)
		}
		return Text(string(trimmed)), nil
	}

	return Value{}, fmt.Errorf("protocol: %s has unknown encoding %d", sig, info.Encoding)
}

// Encode turns a Value into the characteristic payload for a signal.
// Out-of-range values fail here, before anything reaches the transport;
// the device enforces the same ranges independently and may still clamp
// or reject.
func Encode(sig Signal, v Value) ([]byte, error) {
	info := registry[sig]

	switch info.Encoding {
	case U8, Button, Bool:
		if v.Uint < info.Min || v.Uint > info.Max {
			return nil, fmt.Errorf("%w: %s = %d, valid %d..%d", ErrOutOfRange, sig, v.Uint, info.Min, info.Max)
		}
		return []byte{byte(v.Uint)}, nil

	case U16LE:
		if v.Uint < info.Min || v.Uint > info.Max {
			return nil, fmt.Errorf("%w: %s = %d, valid %d..%d", ErrOutOfRange, sig, v.Uint, info.Min, info.Max)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, v.Uint)
		return buf, nil

	case FixedString:
		if len(v.Text) > FixedStringWidth {
			return nil, fmt.Errorf("%w: %s is %d bytes, max %d", ErrOutOfRange, sig, len(v.Text), FixedStringWidth)
		}
		if !utf8.ValidString(v.Text) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidText, sig)
		}
		buf := make([]byte, FixedStringWidth)
		copy(buf, v.Text)
		return buf, nil
	}

	return nil, fmt.Errorf("protocol: %s has unknown encoding %d", sig, info.Encoding)
}

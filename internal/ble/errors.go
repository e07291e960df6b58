package ble

import "errors"

// Error taxonomy for the session and dispatcher. Discovery errors are
// user-recoverable by retrying; link errors tear the session down and
// require a fresh connect; the rest never touch the transport.
var (
	// ErrDeviceNotFound means no peripheral advertising the configured
	// name showed up within the scan timeout.
	ErrDeviceNotFound = errors.New("ble: device not found")

	// ErrServiceMissing means the connected peripheral does not expose
	// the joystick service; the session disconnects rather than operate
	// against an unexpected device.
	ErrServiceMissing = errors.New("ble: joystick service missing")

	// ErrLinkFailure is any transport-level failure: connect timeout,
	// dropped link, failed read or write.
	ErrLinkFailure = errors.New("ble: link failure")

	// ErrNotConnected is returned for operations on an inactive session.
	ErrNotConnected = errors.New("ble: not connected")

	// ErrSuperseded reports that a staged command was replaced by a newer
	// one for the same signal before its transport write was issued.
	ErrSuperseded = errors.New("ble: command superseded")

	// ErrDeviceRejected reports that the device pushed a corrective
	// notification disagreeing with a just-written value. The correction
	// is authoritative; the dispatcher never retries on its own.
	ErrDeviceRejected = errors.New("ble: write rejected by device")
)

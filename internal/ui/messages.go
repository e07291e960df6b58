// Package ui implements the Bubble Tea live dashboard: axes, buttons,
// battery and device config from the state mirror, plus key bindings
// that stage effect and config commands on the dispatcher.
package ui

import (
	"time"

	"joyhost/internal/ble"
	"joyhost/internal/state"
)

// tickMsg drives the periodic repaint.
type tickMsg time.Time

// connectDoneMsg reports the outcome of the async connect attempt.
type connectDoneMsg struct {
	Err error
}

// mirrorUpdateMsg wraps one accepted state change from the mirror watch.
type mirrorUpdateMsg struct {
	Update state.Update
}

// mirrorClosedMsg means the watch channel closed under the dashboard.
type mirrorClosedMsg struct{}

// commandResultMsg carries one dispatcher outcome.
type commandResultMsg struct {
	Result ble.CommandResult
}

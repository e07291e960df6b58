package state

import (
	"testing"

	"joyhost/internal/ble/protocol"
)

func TestHighestRevisionWins(t *testing.T) {
	m := NewMirror()

	// Arrival order 3, 1, 2: the value from revision 3 must survive.
	if !m.Apply(protocol.AxisX, protocol.Uint16(300), 3) {
		t.Fatal("Apply(rev 3) rejected")
	}
	if m.Apply(protocol.AxisX, protocol.Uint16(100), 1) {
		t.Error("Apply(rev 1) accepted after rev 3")
	}
	if m.Apply(protocol.AxisX, protocol.Uint16(200), 2) {
		t.Error("Apply(rev 2) accepted after rev 3")
	}

	v, ok := m.Get(protocol.AxisX)
	if !ok || v.Uint != 300 {
		t.Errorf("Get(axis_x) = %v, %v, want 300 (highest revision, not last arrival)", v, ok)
	}
}

func TestReadResultLosesToNewerNotification(t *testing.T) {
	m := NewMirror()

	// A read captures the revision before the transport call.
	readRev := m.Revision(protocol.AxisY)

	// A notification arrives while the read is in flight.
	notifRev := m.NextRevision(protocol.AxisY)
	m.Apply(protocol.AxisY, protocol.Uint16(700), notifRev)

	// The stale read completion must be discarded.
	if m.Apply(protocol.AxisY, protocol.Uint16(512), readRev) {
		t.Error("stale read result was applied over a newer notification")
	}
	if v, _ := m.Get(protocol.AxisY); v.Uint != 700 {
		t.Errorf("Get(axis_y) = %d, want 700", v.Uint)
	}
}

func TestWatchStartsFromNextChange(t *testing.T) {
	m := NewMirror()
	m.Apply(protocol.ButtonB, protocol.Pressed(true), m.NextRevision(protocol.ButtonB))

	ch, cancel := m.Watch(protocol.ButtonB, 4)
	defer cancel()

	// History is not replayed.
	select {
	case u := <-ch:
		t.Fatalf("fresh watcher received historical update %v", u)
	default:
	}

	m.Apply(protocol.ButtonB, protocol.Pressed(false), m.NextRevision(protocol.ButtonB))
	u := <-ch
	if u.Signal != protocol.ButtonB || u.Value.Bool() {
		t.Errorf("watcher received %v, want button_b released", u)
	}

	// Exactly one event per accepted apply.
	select {
	case u := <-ch:
		t.Fatalf("watcher received extra update %v", u)
	default:
	}
}

func TestWatchIsPerSignal(t *testing.T) {
	m := NewMirror()
	ch, cancel := m.Watch(protocol.BatteryLevel, 2)
	defer cancel()

	m.Apply(protocol.AxisX, protocol.Uint16(4), m.NextRevision(protocol.AxisX))
	select {
	case u := <-ch:
		t.Fatalf("battery watcher received %v", u)
	default:
	}

	m.Apply(protocol.BatteryLevel, protocol.Uint16(88), m.NextRevision(protocol.BatteryLevel))
	if u := <-ch; u.Value.Uint != 88 {
		t.Errorf("battery watcher received %v, want 88", u)
	}
}

func TestSlowWatcherDropsOldest(t *testing.T) {
	m := NewMirror()
	ch, cancel := m.Watch(protocol.AxisX, 1)
	defer cancel()

	m.Apply(protocol.AxisX, protocol.Uint16(1), m.NextRevision(protocol.AxisX))
	m.Apply(protocol.AxisX, protocol.Uint16(2), m.NextRevision(protocol.AxisX))

	if u := <-ch; u.Value.Uint != 2 {
		t.Errorf("slow watcher received %d, want the newest value 2", u.Value.Uint)
	}
	if m.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", m.Dropped())
	}
}

func TestWatchCancelCloses(t *testing.T) {
	m := NewMirror()
	ch, cancel := m.Watch(protocol.AxisX, 1)
	cancel()
	cancel() // idempotent

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Applying after cancel must not panic or deliver.
	m.Apply(protocol.AxisX, protocol.Uint16(9), m.NextRevision(protocol.AxisX))
}

func TestSnapshot(t *testing.T) {
	m := NewMirror()
	m.Apply(protocol.AxisX, protocol.Uint16(512), m.NextRevision(protocol.AxisX))
	m.Apply(protocol.DeviceName, protocol.Text("microbit-joy"), m.NextRevision(protocol.DeviceName))

	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() has %d entries, want 2", len(snap))
	}
	if snap[protocol.AxisX].Uint != 512 || snap[protocol.DeviceName].Text != "microbit-joy" {
		t.Errorf("Snapshot() = %v", snap)
	}

	// Mutating the snapshot must not touch the mirror.
	snap[protocol.AxisX] = protocol.Uint16(0)
	if v, _ := m.Get(protocol.AxisX); v.Uint != 512 {
		t.Error("snapshot mutation leaked into the mirror")
	}
}

// Package state holds the host-side mirror of last-known device state.
// The mirror is written only by the transport lane (notification and
// read-completion events) and read from the observer lane; updates are
// ordered by per-signal revisions, not by arrival time.
package state

import (
	"sync"

	"joyhost/internal/ble/protocol"
)

// Update is one accepted change to a signal.
type Update struct {
	Signal   protocol.Signal
	Value    protocol.Value
	Revision uint64
}

type entry struct {
	val protocol.Value
	rev uint64
	set bool
}

type watcher struct {
	signal protocol.Signal // watchAny matches every signal
	ch     chan Update
}

const watchAny = protocol.Signal(-1)

// Mirror caches the last decoded value per signal.
type Mirror struct {
	mu       sync.Mutex
	entries  map[protocol.Signal]entry
	counters map[protocol.Signal]uint64
	watchers map[int]*watcher
	nextID   int
	dropped  uint64
}

// NewMirror returns an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{
		entries:  make(map[protocol.Signal]entry),
		counters: make(map[protocol.Signal]uint64),
		watchers: make(map[int]*watcher),
	}
}

// NextRevision reserves the next revision for a signal. Notification
// deliveries call this on arrival, so a read result that was issued
// earlier always carries a smaller revision.
func (m *Mirror) NextRevision(sig protocol.Signal) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[sig]++
	return m.counters[sig]
}

// Revision returns the most recently reserved revision for a signal.
// Reads capture this before touching the transport.
func (m *Mirror) Revision(sig protocol.Signal) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[sig]
}

// Apply stores a value if its revision is not older than the stored one
// and reports whether the update was accepted. A discarded update means
// a newer value already won the race.
func (m *Mirror) Apply(sig protocol.Signal, val protocol.Value, rev uint64) bool {
	m.mu.Lock()
	e := m.entries[sig]
	if e.set && rev < e.rev {
		m.mu.Unlock()
		return false
	}
	m.entries[sig] = entry{val: val, rev: rev, set: true}

	u := Update{Signal: sig, Value: val, Revision: rev}
	for _, w := range m.watchers {
		if w.signal != watchAny && w.signal != sig {
			continue
		}
		select {
		case w.ch <- u:
		default:
			// Observer is behind: drop its oldest update so the stream
			// stays current rather than blocking the transport lane.
			select {
			case <-w.ch:
				m.dropped++
			default:
			}
			select {
			case w.ch <- u:
			default:
			}
		}
	}
	m.mu.Unlock()
	return true
}

// Get returns the last-known value for a signal.
func (m *Mirror) Get(sig protocol.Signal) (protocol.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[sig]
	return e.val, e.set
}

// Snapshot returns a copy of all known values.
func (m *Mirror) Snapshot() map[protocol.Signal]protocol.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[protocol.Signal]protocol.Value, len(m.entries))
	for sig, e := range m.entries {
		if e.set {
			out[sig] = e.val
		}
	}
	return out
}

// Watch returns a stream of future changes to one signal. Each watcher
// has an independent cursor; history is not replayed. The cancel func
// releases the watcher and closes the channel.
func (m *Mirror) Watch(sig protocol.Signal, buffer int) (<-chan Update, func()) {
	return m.watch(sig, buffer)
}

// WatchAll is Watch across every signal.
func (m *Mirror) WatchAll(buffer int) (<-chan Update, func()) {
	return m.watch(watchAny, buffer)
}

func (m *Mirror) watch(sig protocol.Signal, buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	w := &watcher{signal: sig, ch: make(chan Update, buffer)}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = w
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(w.ch)
		}
		m.mu.Unlock()
	}
	return w.ch, cancel
}

// Dropped returns how many updates were discarded because an observer
// fell behind.
func (m *Mirror) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

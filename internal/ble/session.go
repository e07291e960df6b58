package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"joyhost/internal/ble/protocol"
	"joyhost/internal/state"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateScanning
	StateConnecting
	StateServiceDiscovery
	StateSubscribing
	StateActive
	StateDisconnecting
)

var sessionStateNames = map[SessionState]string{
	StateDisconnected:     "disconnected",
	StateScanning:         "scanning",
	StateConnecting:       "connecting",
	StateServiceDiscovery: "service-discovery",
	StateSubscribing:      "subscribing",
	StateActive:           "active",
	StateDisconnecting:    "disconnecting",
}

func (s SessionState) String() string { return sessionStateNames[s] }

// SessionOptions configures session behavior.
type SessionOptions struct {
	DeviceName     string        // advertised name to scan for
	ScanTimeout    time.Duration // how long to scan before ErrDeviceNotFound
	ConnectTimeout time.Duration // transport connect deadline
	ShutdownGrace  time.Duration // how long Disconnect waits for the transport lane
	Subscriptions  []protocol.Signal
	// OnConnectionLost fires after an unrequested teardown completes.
	OnConnectionLost func()
	Logger           *slog.Logger
}

// DefaultSessionOptions returns sensible defaults. The subscription set is
// every notifying signal except the legacy ButtonA pad.
func DefaultSessionOptions() SessionOptions {
	var subs []protocol.Signal
	for _, sig := range protocol.Signals() {
		if sig == protocol.ButtonA || !protocol.Lookup(sig).Notifies() {
			continue
		}
		subs = append(subs, sig)
	}
	return SessionOptions{
		DeviceName:     protocol.AdvertisedName,
		ScanTimeout:    10 * time.Second,
		ConnectTimeout: 20 * time.Second,
		ShutdownGrace:  2 * time.Second,
		Subscriptions:  subs,
	}
}

// SubscribeResult enumerates per-signal subscription outcomes. A failure
// on one signal never rolls back the others: losing battery notifications
// should not block joystick operation.
type SubscribeResult struct {
	Subscribed []protocol.Signal
	Failed     map[protocol.Signal]error
}

// Session owns one active device link. At most one session is active at a
// time; the transport handle is never shared.
type Session struct {
	adapter Adapter
	mirror  *state.Mirror
	opts    SessionOptions
	log     *slog.Logger

	mu    sync.Mutex
	state SessionState
	conn  Connection
	chars map[protocol.Signal]Characteristic
	subs  map[protocol.Signal]bool
	done  chan struct{} // closed when the current link is torn down

	// txMu serializes all transport reads and writes: no two transport
	// operations execute concurrently over one session.
	txMu sync.Mutex
}

// NewSession creates a session that feeds decoded updates into mirror.
func NewSession(adapter Adapter, mirror *state.Mirror, opts SessionOptions) *Session {
	if opts.DeviceName == "" {
		opts.DeviceName = protocol.AdvertisedName
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 10 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 20 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 2 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		adapter: adapter,
		mirror:  mirror,
		opts:    opts,
		log:     log,
		state:   StateDisconnected,
		chars:   make(map[protocol.Signal]Characteristic),
		subs:    make(map[protocol.Signal]bool),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mirror returns the state mirror this session feeds.
func (s *Session) Mirror() *state.Mirror { return s.mirror }

func (s *Session) setState(next SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.log.Debug("[BLE] session state", "from", prev, "to", next)
	}
}

// Connect scans for the configured device name, connects, verifies the
// joystick service, discovers characteristics, and subscribes to the
// configured notification set. On success the session is Active.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("ble: connect in state %s", s.state)
	}
	s.state = StateScanning
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.adapter.Enable(); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: enable adapter: %v", ErrLinkFailure, err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.opts.ScanTimeout)
	dev, err := s.adapter.FindDevice(scanCtx, s.opts.DeviceName)
	cancel()
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %q: %v", ErrDeviceNotFound, s.opts.DeviceName, err)
	}
	s.log.Info("[BLE] found device", "name", dev.Name, "address", dev.Address, "rssi", dev.RSSI)

	s.setState(StateConnecting)
	connCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	conn, err := s.adapter.Connect(connCtx, dev.Address)
	cancel()
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: connect to %s: %v", ErrLinkFailure, dev.Address, err)
	}

	s.setState(StateServiceDiscovery)
	if err := conn.DiscoverService(protocol.JoystickServiceUUID); err != nil {
		// Wrong or incompatible device: disconnect immediately rather
		// than operate against it.
		conn.Disconnect()
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %v", ErrServiceMissing, err)
	}

	chars := make(map[protocol.Signal]Characteristic)
	for _, sig := range protocol.Signals() {
		info := protocol.Lookup(sig)
		c, err := conn.DiscoverCharacteristic(info.Service, info.UUID)
		if err != nil {
			// Older firmware lacks the battery and config services.
			// Operate with what is present.
			s.log.Warn("[BLE] characteristic unavailable", "signal", sig, "error", err)
			continue
		}
		chars[sig] = c
	}

	s.mu.Lock()
	s.conn = conn
	s.chars = chars
	s.subs = make(map[protocol.Signal]bool)
	s.mu.Unlock()

	conn.OnDisconnect(s.handleConnectionLoss)

	s.setState(StateSubscribing)
	res := s.Subscribe(s.opts.Subscriptions)
	for sig, err := range res.Failed {
		s.log.Warn("[BLE] subscribe failed", "signal", sig, "error", err)
	}

	s.setState(StateActive)
	s.log.Info("[BLE] connected", "name", dev.Name, "subscribed", len(res.Subscribed))
	return nil
}

// Subscribe enables notifications for the given signals in registry order.
// Failures are reported per signal; prior successes are kept.
func (s *Session) Subscribe(sigs []protocol.Signal) SubscribeResult {
	res := SubscribeResult{Failed: make(map[protocol.Signal]error)}

	// Registry order keeps the on-air subscription sequence consistent
	// regardless of caller ordering.
	want := make(map[protocol.Signal]bool, len(sigs))
	for _, sig := range sigs {
		want[sig] = true
	}

	for _, sig := range protocol.Signals() {
		if !want[sig] {
			continue
		}
		if !protocol.Lookup(sig).Notifies() {
			res.Failed[sig] = fmt.Errorf("ble: %s does not notify", sig)
			continue
		}

		s.mu.Lock()
		c, ok := s.chars[sig]
		already := s.subs[sig]
		s.mu.Unlock()
		if !ok {
			res.Failed[sig] = fmt.Errorf("ble: %s: characteristic not discovered", sig)
			continue
		}
		if already {
			res.Subscribed = append(res.Subscribed, sig)
			continue
		}

		uuid := protocol.Lookup(sig).UUID
		// Subscription changes share the transport lane with reads and
		// writes; never interleave them.
		s.txMu.Lock()
		err := c.Subscribe(func(data []byte) {
			s.HandleNotification(uuid, data)
		})
		s.txMu.Unlock()
		if err != nil {
			res.Failed[sig] = err
			continue
		}
		s.mu.Lock()
		s.subs[sig] = true
		s.mu.Unlock()
		res.Subscribed = append(res.Subscribed, sig)
	}
	return res
}

// HandleNotification routes one inbound notification payload: UUID to
// signal via the registry, decode, apply to the mirror. Unknown UUIDs and
// undecodable payloads indicate a firmware/host mismatch for that single
// signal; they are logged and dropped without touching the session.
func (s *Session) HandleNotification(charUUID string, data []byte) {
	select {
	case <-s.currentDone():
		return // link torn down, stop processing
	default:
	}

	sig, ok := protocol.LookupUUID(charUUID)
	if !ok {
		s.log.Warn("[BLE] notification from unknown UUID", "uuid", charUUID)
		return
	}
	val, err := protocol.Decode(sig, data)
	if err != nil {
		s.log.Warn("[BLE] dropping notification", "signal", sig, "error", err)
		return
	}
	rev := s.mirror.NextRevision(sig)
	s.mirror.Apply(sig, val, rev)
}

func (s *Session) currentDone() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		// Never connected: a closed channel makes the select above drop.
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Read performs a single synchronous read-then-decode and applies the
// result to the mirror. A notification that arrives while the read is in
// flight wins the race by revision.
func (s *Session) Read(ctx context.Context, sig protocol.Signal) (protocol.Value, error) {
	if err := protocol.CheckReadable(sig); err != nil {
		return protocol.Value{}, err
	}
	c, err := s.characteristic(sig)
	if err != nil {
		return protocol.Value{}, err
	}

	// Capture the revision before the transport call so the mirror can
	// discard this result if a newer notification lands first.
	rev := s.mirror.Revision(sig)

	s.txMu.Lock()
	data, err := c.Read()
	s.txMu.Unlock()
	if err != nil {
		return protocol.Value{}, fmt.Errorf("%w: read %s: %v", ErrLinkFailure, sig, err)
	}
	if err := ctx.Err(); err != nil {
		return protocol.Value{}, fmt.Errorf("%w: read %s: %v", ErrLinkFailure, sig, err)
	}

	val, err := protocol.Decode(sig, data)
	if err != nil {
		return protocol.Value{}, fmt.Errorf("read %s: %w", sig, err)
	}
	s.mirror.Apply(sig, val, rev)
	return val, nil
}

// Write encodes and transmits one value. Host-side validation fails fast:
// an out-of-range value never reaches the transport. Write ordering per
// signal is the dispatcher's job, not the session's.
func (s *Session) Write(ctx context.Context, sig protocol.Signal, val protocol.Value) error {
	if err := protocol.CheckWritable(sig); err != nil {
		return err
	}
	data, err := protocol.Encode(sig, val)
	if err != nil {
		return err
	}
	c, err := s.characteristic(sig)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrLinkFailure, sig, err)
	}

	s.txMu.Lock()
	err = c.Write(data)
	s.txMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrLinkFailure, sig, err)
	}
	return nil
}

func (s *Session) characteristic(sig protocol.Signal) (Characteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, fmt.Errorf("%w: session is %s", ErrNotConnected, s.state)
	}
	c, ok := s.chars[sig]
	if !ok {
		return nil, fmt.Errorf("%w: %s: characteristic not discovered", ErrNotConnected, sig)
	}
	return c, nil
}

// Disconnect tears the session down: best-effort unsubscribe from every
// active subscription, then close the link. Unsubscribe errors are logged,
// never fatal. Safe to call from any goroutine and at any time; calls
// after the first are no-ops.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateDisconnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnecting
	conn := s.conn
	chars := s.chars
	subs := s.subs
	done := s.done
	s.mu.Unlock()

	s.log.Info("[BLE] disconnecting")
	if done != nil {
		close(done) // stop notification processing
	}

	// The transport lane may be mid-operation; give it a moment to
	// finish, then hold it through the teardown so unsubscribes never
	// interleave with a straggling read or write. If the lane stays
	// busy past the grace period, closing the link below fails the
	// stuck operation.
	acquired := make(chan struct{})
	release := make(chan struct{})
	go func() {
		s.txMu.Lock()
		close(acquired)
		<-release
		s.txMu.Unlock()
	}()
	select {
	case <-acquired:
	case <-time.After(s.opts.ShutdownGrace):
		s.log.Warn("[BLE] transport lane busy past shutdown grace, closing link anyway")
	}

	// Unsubscribe first, then drop the link, always in that order.
	for sig, active := range subs {
		if !active {
			continue
		}
		if c, ok := chars[sig]; ok {
			if err := c.Unsubscribe(); err != nil {
				s.log.Warn("[BLE] unsubscribe failed", "signal", sig, "error", err)
			}
		}
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			s.log.Warn("[BLE] disconnect error", "error", err)
		}
	}
	close(release)

	s.mu.Lock()
	s.conn = nil
	s.chars = make(map[protocol.Signal]Characteristic)
	s.subs = make(map[protocol.Signal]bool)
	s.state = StateDisconnected
	s.mu.Unlock()
	s.log.Info("[BLE] disconnected")
}

// handleConnectionLoss runs when the transport reports the link dropped
// out from under us.
func (s *Session) handleConnectionLoss() {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateDisconnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnecting
	done := s.done
	s.mu.Unlock()

	s.log.Warn("[BLE] connection lost")
	if done != nil {
		close(done)
	}

	s.mu.Lock()
	s.conn = nil
	s.chars = make(map[protocol.Signal]Characteristic)
	s.subs = make(map[protocol.Signal]bool)
	s.state = StateDisconnected
	s.mu.Unlock()

	if s.opts.OnConnectionLost != nil {
		s.opts.OnConnectionLost()
	}
}

package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"joyhost/internal/ble/protocol"
	"joyhost/internal/state"
)

// Writer is the transport surface the dispatcher needs; *Session
// satisfies it.
type Writer interface {
	Write(ctx context.Context, sig protocol.Signal, val protocol.Value) error
}

// CommandResult reports the outcome of one submitted command.
type CommandResult struct {
	ID     ulid.ULID
	Signal protocol.Signal
	Value  protocol.Value
	// Err is nil on success, ErrSuperseded if a newer command replaced
	// this one before its write was issued, ErrDeviceRejected if the
	// device pushed a corrective notification, or a transport error.
	Err error
	// Corrected holds the device's corrective value when Err is
	// ErrDeviceRejected.
	Corrected *protocol.Value
}

// DispatcherOptions configures dispatch behavior.
type DispatcherOptions struct {
	// RatePerSecond caps transport writes. The firmware runs on a
	// microcontroller; flooding it with effect commands starves the
	// notification path. 0 means unlimited.
	RatePerSecond float64
	Burst         int
	// RejectionWindow is how long to watch for a corrective notification
	// after writing a config signal. If nothing arrives the write is
	// reported successful: absence of correction is inconclusive, never
	// proof of rejection.
	RejectionWindow time.Duration
	// OnResult receives every command outcome. Called from dispatcher
	// goroutines; must not block on the transport.
	OnResult func(CommandResult)
	Logger   *slog.Logger
}

// DefaultDispatcherOptions returns sensible defaults.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		RatePerSecond:   20,
		Burst:           5,
		RejectionWindow: time.Second,
	}
}

type pendingCommand struct {
	id     ulid.ULID
	sig    protocol.Signal
	val    protocol.Value
	issued time.Time
}

// slot is the single-slot-per-signal staging area. staged holds the next
// command to issue; inFlight is true while a transport write for this
// signal is outstanding. A staged command can be superseded; an in-flight
// one is always awaited before its replacement goes out, so the device
// never observes writes out of order.
type slot struct {
	staged   *pendingCommand
	inFlight bool
}

// Dispatcher serializes outbound writes onto the session, enforcing
// at-most-one-in-flight per write-capable signal. It never retries:
// re-triggering a vibration or buzzer effect is not idempotent-safe, so
// retries are a caller decision.
type Dispatcher struct {
	writer  Writer
	mirror  *state.Mirror
	opts    DispatcherOptions
	limiter *rate.Limiter
	log     *slog.Logger

	mu    sync.Mutex
	slots map[protocol.Signal]*slot
	wake  chan struct{}
}

// NewDispatcher creates a dispatcher. Run must be started for staged
// commands to reach the transport. mirror may be nil to disable the
// rejection watch.
func NewDispatcher(writer Writer, mirror *state.Mirror, opts DispatcherOptions) *Dispatcher {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.RejectionWindow <= 0 {
		opts.RejectionWindow = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Dispatcher{
		writer:  writer,
		mirror:  mirror,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Burst),
		log:     log,
		slots:   make(map[protocol.Signal]*slot),
		wake:    make(chan struct{}, 1),
	}
}

// Submit stages a command for a write-capable signal. Validation happens
// up front: direction and range errors return immediately and nothing
// reaches the transport. If a command for the same signal is already
// staged but not yet issued, the new one replaces it and the old one
// completes with ErrSuperseded.
func (d *Dispatcher) Submit(sig protocol.Signal, val protocol.Value) (ulid.ULID, error) {
	if err := protocol.CheckWritable(sig); err != nil {
		return ulid.ULID{}, err
	}
	if _, err := protocol.Encode(sig, val); err != nil {
		return ulid.ULID{}, fmt.Errorf("ble: submit %s: %w", sig, err)
	}

	cmd := &pendingCommand{id: ulid.Make(), sig: sig, val: val, issued: time.Now()}

	d.mu.Lock()
	s := d.slots[sig]
	if s == nil {
		s = &slot{}
		d.slots[sig] = s
	}
	superseded := s.staged
	s.staged = cmd
	d.mu.Unlock()

	if superseded != nil {
		d.log.Debug("[BLE] command superseded", "signal", sig, "id", superseded.id)
		d.emit(CommandResult{ID: superseded.id, Signal: sig, Value: superseded.val, Err: ErrSuperseded})
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return cmd.id, nil
}

// Run drains staged commands onto the transport until ctx is done. This
// is the only goroutine that issues dispatcher writes, so per-signal
// ordering holds globally.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.failPending(ctx.Err())
			return
		case <-d.wake:
		}
		for d.step(ctx) {
		}
	}
}

// step issues at most one staged command. Reports whether more work may
// remain.
func (d *Dispatcher) step(ctx context.Context) bool {
	cmd := d.take()
	if cmd == nil {
		return false
	}

	// The rejection watch must exist before the write goes out: a
	// correction can land the instant the transport call returns, and
	// the mirror does not replay history to late watchers.
	var watch <-chan state.Update
	var cancelWatch func()
	if d.mirror != nil && protocol.Lookup(cmd.sig).Notifies() {
		watch, cancelWatch = d.mirror.Watch(cmd.sig, 4)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.complete(cmd, err, nil, cancelWatch)
		return false
	}
	err := d.writer.Write(ctx, cmd.sig, cmd.val)
	d.complete(cmd, err, watch, cancelWatch)
	return true
}

// take claims the next staged command, marking its slot in flight.
func (d *Dispatcher) take() *pendingCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sig := range protocol.Signals() {
		s := d.slots[sig]
		if s == nil || s.staged == nil || s.inFlight {
			continue
		}
		cmd := s.staged
		s.staged = nil
		s.inFlight = true
		return cmd
	}
	return nil
}

// complete clears the in-flight mark and reports the outcome. The slot is
// always released, even on transport failure: a disconnect mid-write must
// never wedge future writes to the same signal.
func (d *Dispatcher) complete(cmd *pendingCommand, err error, watch <-chan state.Update, cancelWatch func()) {
	d.mu.Lock()
	if s := d.slots[cmd.sig]; s != nil {
		s.inFlight = false
	}
	d.mu.Unlock()

	if err != nil {
		if cancelWatch != nil {
			cancelWatch()
		}
		d.log.Warn("[BLE] command failed", "signal", cmd.sig, "id", cmd.id, "error", err)
		d.emit(CommandResult{ID: cmd.id, Signal: cmd.sig, Value: cmd.val, Err: err})
		return
	}

	d.log.Debug("[BLE] command written", "signal", cmd.sig, "id", cmd.id, "value", cmd.val)
	if watch != nil {
		// Config signals notify back: a disagreeing value within the
		// window is an authoritative rejection.
		go d.watchForRejection(cmd, watch, cancelWatch)
		return
	}
	d.emit(CommandResult{ID: cmd.id, Signal: cmd.sig, Value: cmd.val})
}

// watchForRejection waits for the device's post-write notification on a
// config signal. The watch was registered before the write was issued.
func (d *Dispatcher) watchForRejection(cmd *pendingCommand, ch <-chan state.Update, cancel func()) {
	defer cancel()

	timer := time.NewTimer(d.opts.RejectionWindow)
	defer timer.Stop()

	for {
		select {
		case u, ok := <-ch:
			if !ok {
				d.emit(CommandResult{ID: cmd.id, Signal: cmd.sig, Value: cmd.val})
				return
			}
			if u.Value == cmd.val {
				// Device echoed the written value: confirmed.
				d.emit(CommandResult{ID: cmd.id, Signal: cmd.sig, Value: cmd.val})
				return
			}
			corrected := u.Value
			d.log.Warn("[BLE] device rejected write", "signal", cmd.sig, "wrote", cmd.val, "corrected", corrected)
			d.emit(CommandResult{
				ID: cmd.id, Signal: cmd.sig, Value: cmd.val,
				Err: ErrDeviceRejected, Corrected: &corrected,
			})
			return
		case <-timer.C:
			// No correction observed: inconclusive, report success.
			d.emit(CommandResult{ID: cmd.id, Signal: cmd.sig, Value: cmd.val})
			return
		}
	}
}

// failPending completes every staged command with err during shutdown.
func (d *Dispatcher) failPending(err error) {
	d.mu.Lock()
	var staged []*pendingCommand
	for _, s := range d.slots {
		if s.staged != nil {
			staged = append(staged, s.staged)
			s.staged = nil
		}
		s.inFlight = false
	}
	d.mu.Unlock()

	for _, cmd := range staged {
		d.emit(CommandResult{ID: cmd.id, Signal: cmd.sig, Value: cmd.val, Err: err})
	}
}

func (d *Dispatcher) emit(res CommandResult) {
	if d.opts.OnResult != nil {
		d.opts.OnResult(res)
	}
}

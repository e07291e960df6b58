package ble

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
)

// SupervisorOptions configures reconnect behavior.
type SupervisorOptions struct {
	ReconnectMax int // max reconnect backoff in seconds
	// BreakerCooldown is how long the breaker stays open after repeated
	// connect failures (device powered off, out of range) before letting
	// another attempt through.
	BreakerCooldown time.Duration
	Logger          *slog.Logger
}

// DefaultSupervisorOptions returns sensible defaults.
func DefaultSupervisorOptions() SupervisorOptions {
	return SupervisorOptions{
		ReconnectMax:    30,
		BreakerCooldown: 30 * time.Second,
	}
}

// Supervisor reconnects a session after unrequested connection loss,
// with exponential backoff. A circuit breaker around connect attempts
// keeps a powered-off device from being hammered with scans.
type Supervisor struct {
	session *Session
	opts    SupervisorOptions
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker[struct{}]

	reconnecting atomic.Bool
	closed       atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewSupervisor wraps a session. The session's OnConnectionLost option
// must be wired to OnConnectionLost for automatic reconnects.
func NewSupervisor(session *Session, opts SupervisorOptions) *Supervisor {
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		session: session,
		opts:    opts,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "ble-connect",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("[BLE] connect breaker", "from", from.String(), "to", to.String())
		},
	})
	return s
}

// OnConnectionLost starts a reconnect loop unless one is already running.
// Wire this into SessionOptions.OnConnectionLost.
func (s *Supervisor) OnConnectionLost() {
	if s.closed.Load() {
		return
	}
	if !s.reconnecting.CompareAndSwap(false, true) {
		return // a reconnect loop is already running
	}
	s.log.Warn("[BLE] disconnected, reconnecting...")
	go s.reconnectLoop()
}

// Close stops any running reconnect loop. It does not disconnect the
// session.
func (s *Supervisor) Close() {
	s.closed.Store(true)
	s.cancel()
}

func (s *Supervisor) reconnectLoop() {
	defer s.reconnecting.Store(false)

	for attempt := 0; ; attempt++ {
		if s.closed.Load() {
			return
		}
		// First attempt goes immediately; later ones back off.
		if attempt > 0 {
			delay := backoffDelay(attempt-1, s.opts.ReconnectMax)
			s.log.Info("[BLE] reconnect backoff", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return
			}
		}

		_, err := s.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, s.session.Connect(s.ctx)
		})
		if err == nil {
			s.log.Info("[BLE] reconnected")
			return
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.log.Warn("[BLE] connect breaker open, pausing reconnect", "cooldown", s.opts.BreakerCooldown)
			select {
			case <-time.After(s.opts.BreakerCooldown):
			case <-s.ctx.Done():
				return
			}
			continue
		}
		s.log.Warn("[BLE] reconnect failed", "error", err, "attempt", attempt+1)
	}
}

// backoffDelay returns the reconnection delay for attempt n, capped at
// maxSeconds. The shift is clamped so large attempt counts cannot
// overflow.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	max := time.Duration(maxSeconds) * time.Second
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

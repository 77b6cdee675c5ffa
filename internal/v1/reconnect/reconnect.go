// Package reconnect implements the viewer-side recovery policy of spec.md
// §4.9: an attempt counter with exponential backoff, and an ICE-restart-
// first recovery path for transient transport interruptions before falling
// back to a full re-join.
//
// Grounded on the teacher's pkg/sfu.Client gobreaker wiring (client.go): the
// same attempt-counter-plus-backoff shape the breaker uses to decide when to
// probe a half-open state, re-expressed here as a pure function instead of a
// stateful breaker, since the thing being protected is a single client's own
// reconnect loop rather than a shared upstream dependency.
package reconnect

import (
	"context"
	"math"
	"sync"
	"time"
)

// Config holds the backoff and grace parameters. BaseDelay/MaxAttempts
// mirror spec.md §4.9's `base * 2^(n-1)` formula; DisconnectGrace absorbs a
// brief transport flap before a reconnect is even scheduled.
type Config struct {
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	MaxAttempts     int
	DisconnectGrace time.Duration
}

// DefaultConfig matches the coordinator-side defaults in internal/v1/room
// (disconnect grace) scaled to a client-side reconnect loop.
var DefaultConfig = Config{
	BaseDelay:       500 * time.Millisecond,
	MaxDelay:        30 * time.Second,
	MaxAttempts:     8,
	DisconnectGrace: 3 * time.Second,
}

// Delay returns the backoff duration for the attempt'th retry (1-indexed),
// clamped to MaxDelay. attempt <= 0 returns 0 (no backoff on the first,
// immediate attempt).
func (c Config) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(c.BaseDelay) * math.Pow(2, float64(attempt-1))
	if max := float64(c.MaxDelay); d > max {
		d = max
	}
	return time.Duration(d)
}

// IceRestarter is the narrow surface of sfu.Router this package depends on:
// requesting fresh ICE parameters for a transport that went disconnected.
type IceRestarter interface {
	RestartIce(ctx context.Context, transportID string) (iceParameters map[string]any, err error)
}

// TransportApplier applies restarted ICE parameters to a live transport and
// reports whether the transport is connected again.
type TransportApplier interface {
	ApplyIceParameters(transportID string, iceParameters map[string]any) error
	IsConnected(transportID string) bool
}

// Engine tracks one client's reconnect attempt count and in-flight grace
// timer. It is safe for concurrent use; Engine methods are typically called
// from a single session-controller goroutine plus occasional cancellation
// from a user-initiated leave.
type Engine struct {
	cfg Config

	mu           sync.Mutex
	attempt      int
	foregrounded bool
	graceTimer   *time.Timer
}

// New constructs an Engine. Pass reconnect.DefaultConfig for the teacher-
// aligned defaults, or a Config built from coordinator-provided ICE server
// / grace settings.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, foregrounded: true}
}

// SetForegrounded toggles whether the app is currently foregrounded; backoff
// delays are only honored while foregrounded (spec.md §4.9: "gated on app
// being foregrounded"). While backgrounded, NextAttempt returns a zero
// delay.
func (e *Engine) SetForegrounded(fg bool) {
	e.mu.Lock()
	e.foregrounded = fg
	e.mu.Unlock()
}

// NextAttempt increments the attempt counter and returns the delay to wait
// before that attempt, honoring MaxAttempts. ok is false once the attempt
// budget is exhausted; callers should surface a terminal error rather than
// retry again.
func (e *Engine) NextAttempt() (delay time.Duration, attempt int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.attempt >= e.cfg.MaxAttempts {
		return 0, e.attempt, false
	}
	e.attempt++
	if !e.foregrounded {
		return 0, e.attempt, true
	}
	return e.cfg.Delay(e.attempt), e.attempt, true
}

// Reset clears the attempt counter, called once a connection is fully
// restored (ICE restart succeeded, or a full re-join completed).
func (e *Engine) Reset() {
	e.mu.Lock()
	e.attempt = 0
	e.mu.Unlock()
}

// Attempts reports the current attempt count.
func (e *Engine) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempt
}

// ArmDisconnectGrace starts (or restarts) the disconnect-grace timer: if the
// transport has not returned to connected by the time it fires, onExpire
// runs to schedule the actual reconnect attempt. A transport returning to
// connected before expiry must call CancelDisconnectGrace.
func (e *Engine) ArmDisconnectGrace(onExpire func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graceTimer != nil {
		e.graceTimer.Stop()
	}
	e.graceTimer = time.AfterFunc(e.cfg.DisconnectGrace, onExpire)
}

// CancelDisconnectGrace stops a pending disconnect-grace timer, used when
// the transport recovers (e.g. via ICE restart) before the grace window
// expires.
func (e *Engine) CancelDisconnectGrace() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graceTimer != nil {
		e.graceTimer.Stop()
		e.graceTimer = nil
	}
}

// RecoverTransport implements the ICE-restart-first recovery step: request
// new ICE parameters for transportID, apply them, and report whether the
// transport came back to connected within the grace window. Only if this
// returns false should the caller tear down and perform a full reconnect.
func (e *Engine) RecoverTransport(ctx context.Context, transportID string, ice IceRestarter, applier TransportApplier) bool {
	params, err := ice.RestartIce(ctx, transportID)
	if err != nil {
		return false
	}
	if err := applier.ApplyIceParameters(transportID, params); err != nil {
		return false
	}

	deadline := time.Now().Add(e.cfg.DisconnectGrace)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if applier.IsConnected(transportID) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return applier.IsConnected(transportID)
}

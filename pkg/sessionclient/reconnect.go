package sessionclient

import (
	"context"
	"time"

	"github.com/huddlecore/signaling/internal/v1/reconnect"
)

// Reconnector drives spec.md §4.9's recovery policy for one Client: on an
// unexpected disconnect it arms a grace timer, tries an ICE restart first,
// and only falls back to a full reconnect-sequence if that doesn't recover
// the transport within the grace window.
type Reconnector struct {
	client *Client
	engine *reconnect.Engine

	// Reconnect performs a full Connect+Join cycle; supplied by the caller
	// since only it knows the room/session identifiers and auth/device
	// dependencies to reuse.
	Reconnect func(ctx context.Context) error
}

// NewReconnector builds a Reconnector bound to client, using cfg for the
// backoff/grace parameters (reconnect.DefaultConfig is a reasonable start).
func NewReconnector(client *Client, cfg reconnect.Config) *Reconnector {
	return &Reconnector{client: client, engine: reconnect.New(cfg)}
}

// SetForegrounded forwards foreground/background state to the underlying
// engine, gating whether backoff delays are honored (spec.md §4.9).
func (r *Reconnector) SetForegrounded(fg bool) {
	r.engine.SetForegrounded(fg)
}

// HandleTransportDown is called when a transport the client depends on
// moves to disconnected/failed. It arms the disconnect-grace timer; if the
// transport doesn't recover within the window it escalates to a full
// reconnect loop via Reconnect.
func (r *Reconnector) HandleTransportDown(ctx context.Context) {
	r.engine.ArmDisconnectGrace(func() {
		r.runReconnectLoop(ctx)
	})
}

// HandleTransportRecovered cancels a pending disconnect-grace timer and
// resets the attempt counter, called once ICE restart (or any other path)
// brings the transport back to connected on its own.
func (r *Reconnector) HandleTransportRecovered() {
	r.engine.CancelDisconnectGrace()
	r.engine.Reset()
}

// RecoverTransport attempts the ICE-restart-first step described in
// spec.md §4.9 for a single transport, returning whether it succeeded.
func (r *Reconnector) RecoverTransport(ctx context.Context, transportID string, ice reconnect.IceRestarter, applier reconnect.TransportApplier) bool {
	if r.engine.RecoverTransport(ctx, transportID, ice, applier) {
		r.HandleTransportRecovered()
		return true
	}
	return false
}

func (r *Reconnector) runReconnectLoop(ctx context.Context) {
	r.client.setState(StateReconnecting)

	for {
		delay, _, ok := r.engine.NextAttempt()
		if !ok {
			r.client.setState(StateError)
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		if r.Reconnect == nil {
			continue
		}
		if err := r.Reconnect(ctx); err == nil {
			r.engine.Reset()
			return
		}
	}
}

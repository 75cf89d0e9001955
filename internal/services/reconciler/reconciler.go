// Package reconciler runs the long-lived process's polling loop that
// repairs cross-process staleness by honoring signal-channel requests.
package reconciler

import (
	"context"
	"time"

	"github.com/quotidian-app/engine/internal/domain/identity"
	"github.com/quotidian-app/engine/internal/localstate"
	"github.com/quotidian-app/engine/internal/metrics"
	"github.com/quotidian-app/engine/internal/services/daily"
	"github.com/quotidian-app/engine/pkg/logger"
)

const (
	defaultInterval    = 15 * time.Second
	defaultCallTimeout = 10 * time.Second
)

// Reconciler polls the signal channel on a fixed interval. The platform
// offers no cross-process wake signal, so polling is the channel's read
// side. Each iteration's remote call carries its own timeout independent
// of the loop interval, so one slow call cannot starve the loop.
type Reconciler struct {
	svc      *daily.Service
	local    localstate.Store
	provider identity.Provider
	log      *logger.Logger

	interval    time.Duration
	callTimeout time.Duration
}

// New constructs a reconciler. Zero durations take the defaults.
func New(svc *daily.Service, local localstate.Store, provider identity.Provider, log *logger.Logger, interval, callTimeout time.Duration) *Reconciler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Reconciler{
		svc:         svc,
		local:       local,
		provider:    provider,
		log:         log,
		interval:    interval,
		callTimeout: callTimeout,
	}
}

// Run polls until the context is cancelled. Iteration errors are logged
// and the loop continues; there is no loop-level deadline.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.WithField("interval", r.interval.String()).Info("reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.log.WithError(err).Warn("reconciler iteration failed")
			}
		}
	}
}

// RunOnce performs a single poll iteration: publish the current identity
// state, then honor any pending refresh or resync request.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	metrics.ReconcilerRuns.Inc()

	if err := r.publishIdentityState(ctx); err != nil {
		return err
	}

	sig, err := r.local.ReadSignal(ctx)
	if err != nil {
		return err
	}
	if !sig.ResyncNeeded && !sig.RefreshActionable() {
		return nil
	}

	// Clear before fetching: if the fetch fails the flag must not
	// linger and replay the same request on every following poll.
	if sig.RefreshActionable() {
		if err := r.local.ClearRefreshRequest(ctx); err != nil {
			return err
		}
	}
	if sig.ResyncNeeded {
		if err := r.local.SetResyncNeeded(ctx, false); err != nil {
			return err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	q, err := r.svc.GetOrAssignTodaysQuote(callCtx, identity.Identity{})
	if err != nil {
		// The flag is already cleared; the requester reschedules itself.
		r.log.WithError(err).Warn("signal-driven refresh failed")
		return nil
	}

	metrics.ReconcilerRepairs.Inc()
	r.log.WithField("quote_id", q.ID).Info("signal-driven refresh completed")
	return nil
}

// publishIdentityState mirrors the identity provider into the signal
// channel so the short-lived process can resolve an identity without a
// session. A scope switch invalidates the previous scope's cache.
func (r *Reconciler) publishIdentityState(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}

	current, err := r.provider.CurrentIdentity(ctx)
	if err != nil {
		r.log.WithError(err).Warn("identity provider unavailable")
		return nil
	}

	sig, err := r.local.ReadSignal(ctx)
	if err != nil {
		return err
	}

	if sig.IdentityKey == current.Key() && sig.Authenticated == current.Authenticated() {
		return nil
	}

	if sig.IdentityKey != current.Key() && sig.IdentityKey != "" {
		r.log.WithField("identity", current.Key()).Info("identity scope changed")
		return r.svc.OnIdentityChanged(ctx, current)
	}

	if err := r.local.SetIdentity(ctx, current.Key()); err != nil {
		return err
	}
	return r.local.SetAuthenticated(ctx, current.Authenticated())
}

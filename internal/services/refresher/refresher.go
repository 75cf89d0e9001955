// Package refresher implements the short-lived process's per-invocation
// refresh policy: serve cached data, fetch fresh data, or delegate the
// fetch to the long-lived process via the signal channel.
package refresher

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quotidian-app/engine/internal/domain/identity"
	"github.com/quotidian-app/engine/internal/domain/quote"
	"github.com/quotidian-app/engine/internal/localstate"
	"github.com/quotidian-app/engine/internal/metrics"
	"github.com/quotidian-app/engine/internal/services/daily"
	"github.com/quotidian-app/engine/pkg/logger"
)

// Outcome is the rendering decision for one invocation.
type Outcome int

const (
	// OutcomeSignIn renders the "sign in" placeholder.
	OutcomeSignIn Outcome = iota
	// OutcomeQuote renders a freshly resolved quote.
	OutcomeQuote
	// OutcomeFallback renders the cached quote, or a placeholder when no
	// cache entry exists.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSignIn:
		return "sign_in"
	case OutcomeQuote:
		return "quote"
	case OutcomeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Evaluation is the result of one invocation: what to render and when
// the host should invoke the process next.
type Evaluation struct {
	Outcome Outcome
	Quote   quote.Quote
	Err     error
	NextRun time.Time
}

const (
	defaultIdleInterval  = 30 * time.Minute
	defaultRetryInterval = 5 * time.Minute

	// The natural refresh point for a daily artifact.
	midnightSpec = "0 0 * * *"
)

// Refresher decides, once per invocation, how to serve the widget.
// Retries are expressed entirely as "schedule the next invocation
// sooner"; there is no retry loop inside a single invocation.
type Refresher struct {
	svc   *daily.Service
	local localstate.Store
	log   *logger.Logger

	idleInterval  time.Duration
	retryInterval time.Duration
	midnight      cron.Schedule
	loc           *time.Location
	now           func() time.Time
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithIntervals overrides the idle and retry scheduling intervals.
func WithIntervals(idle, retry time.Duration) Option {
	return func(f *Refresher) {
		if idle > 0 {
			f.idleInterval = idle
		}
		if retry > 0 {
			f.retryInterval = retry
		}
	}
}

// WithLocation sets the timezone whose midnight delimits the day.
func WithLocation(loc *time.Location) Option {
	return func(f *Refresher) { f.loc = loc }
}

// WithClock overrides the wall clock; used in tests.
func WithClock(now func() time.Time) Option {
	return func(f *Refresher) { f.now = now }
}

// New constructs a refresher.
func New(svc *daily.Service, local localstate.Store, log *logger.Logger, opts ...Option) *Refresher {
	midnight, _ := cron.ParseStandard(midnightSpec)
	f := &Refresher{
		svc:           svc,
		local:         local,
		log:           log,
		idleInterval:  defaultIdleInterval,
		retryInterval: defaultRetryInterval,
		midnight:      midnight,
		loc:           time.Local,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Evaluate runs the one-shot decision for this invocation, in order:
// unauthenticated → sign-in placeholder at a long interval; fresh fetch
// succeeded → quote until the next local midnight; fetch failed →
// delegate to the long-lived process, fall back to cache, retry soon.
func (f *Refresher) Evaluate(ctx context.Context) Evaluation {
	now := f.now()

	sig, err := f.local.ReadSignal(ctx)
	if err != nil {
		f.log.WithError(err).Warn("signal channel unreadable")
		return f.fallback(ctx, now, err)
	}

	if !sig.Authenticated {
		return Evaluation{Outcome: OutcomeSignIn, NextRun: now.Add(f.idleInterval)}
	}

	q, err := f.svc.GetOrAssignTodaysQuote(ctx, identity.Identity{})
	if err == nil {
		return Evaluation{Outcome: OutcomeQuote, Quote: q, NextRun: f.nextMidnight(now)}
	}

	if errors.Is(err, daily.ErrNoQuotesAvailable) {
		// An empty catalog will not clear on its own; surface the error
		// and idle rather than hammering the store.
		return Evaluation{Outcome: OutcomeFallback, Err: err, NextRun: now.Add(f.idleInterval)}
	}

	// Recoverable: delegate the fetch to the process that has a real
	// session, and come back soon.
	f.delegate(ctx, now)
	return f.fallback(ctx, now, err)
}

func (f *Refresher) delegate(ctx context.Context, now time.Time) {
	if err := f.local.SetResyncNeeded(ctx, true); err != nil {
		f.log.WithError(err).Warn("failed to set resync flag")
	}
	if err := f.local.RequestRefresh(ctx, now); err != nil {
		f.log.WithError(err).Warn("failed to request refresh")
	}
}

func (f *Refresher) fallback(ctx context.Context, now time.Time, cause error) Evaluation {
	ev := Evaluation{Outcome: OutcomeFallback, Err: cause, NextRun: now.Add(f.retryInterval)}
	if cached, ok := f.svc.CachedQuote(ctx); ok {
		metrics.CacheFallbacks.Inc()
		ev.Quote = cached
	}
	return ev
}

func (f *Refresher) nextMidnight(now time.Time) time.Time {
	return f.midnight.Next(now.In(f.loc))
}

// Package daily implements the daily-quote assignment engine: the
// idempotent get-or-create of one quote per identity per calendar day,
// with a write-through local cache and signal-channel publishing.
package daily

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/quotidian-app/engine/internal/domain/assignment"
	"github.com/quotidian-app/engine/internal/domain/identity"
	"github.com/quotidian-app/engine/internal/domain/quote"
	"github.com/quotidian-app/engine/internal/localstate"
	"github.com/quotidian-app/engine/internal/metrics"
	"github.com/quotidian-app/engine/internal/storage"
	"github.com/quotidian-app/engine/pkg/logger"
)

// Errors
var (
	// ErrIdentityRequired means neither an authenticated session nor a
	// previously-published shared identity is available. Surfaced to the
	// UI as "sign in"; never retried automatically.
	ErrIdentityRequired = errors.New("identity required")

	// ErrNoQuotesAvailable means the remote catalog is empty. Fatal to
	// the request; never retried.
	ErrNoQuotesAvailable = errors.New("no quotes available")

	// ErrStoreUnavailable means the remote store could not be reached or
	// did not converge within the retry budget. Retried via scheduling,
	// degraded to cache on the short-lived side.
	ErrStoreUnavailable = errors.New("quote store unavailable")
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 200 * time.Millisecond
)

// Service is the per-process assignment engine. One instance is
// constructed per process and passed by reference to all callers; no
// process-wide singleton exists. Cross-process conflicts are resolved at
// the assignment store, never by client-side locking.
type Service struct {
	quotes      storage.QuoteStore
	assignments storage.AssignmentStore
	local       localstate.Store
	provider    identity.Provider
	log         *logger.Logger

	loc           *time.Location
	now           func() time.Time
	retryAttempts int
	retryDelay    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithIdentityProvider attaches the identity provider. Only the
// long-lived process has one; the short-lived process resolves identity
// from the signal channel instead.
func WithIdentityProvider(p identity.Provider) Option {
	return func(s *Service) { s.provider = p }
}

// WithLocation sets the timezone that delimits a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithClock overrides the wall clock; used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetry overrides the bounded retry budget for read-after-write
// visibility races.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		s.retryDelay = delay
	}
}

// New constructs the assignment service.
func New(quotes storage.QuoteStore, assignments storage.AssignmentStore, local localstate.Store, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		quotes:        quotes,
		assignments:   assignments,
		local:         local,
		log:           log,
		loc:           time.Local,
		now:           time.Now,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrAssignTodaysQuote returns today's quote for the identity,
// assigning one uniformly at random on first request. Calling it again
// for the same (identity, day) returns the identical quote until
// ForceNewQuote or ClearTodaysAssignment intervenes.
func (s *Service) GetOrAssignTodaysQuote(ctx context.Context, id identity.Identity) (quote.Quote, error) {
	id, err := s.resolveIdentity(ctx, id)
	if err != nil {
		return quote.Quote{}, err
	}
	day := assignment.DayOf(s.now(), s.loc)

	a, err := s.assignments.GetAssignment(ctx, id.Key(), day)
	switch {
	case err == nil:
		q, err := s.getQuoteWithRetry(ctx, a.QuoteID)
		if err != nil {
			return quote.Quote{}, err
		}
		s.writeThrough(ctx, q)
		return q, nil
	case errors.Is(err, storage.ErrNotFound):
		return s.assignNew(ctx, id, day)
	default:
		metrics.StoreErrors.WithLabelValues("get_assignment").Inc()
		return quote.Quote{}, storeUnavailable(err)
	}
}

func (s *Service) assignNew(ctx context.Context, id identity.Identity, day string) (quote.Quote, error) {
	q, err := s.pickRandomQuote(ctx)
	if err != nil {
		return quote.Quote{}, err
	}

	_, inserted, err := s.assignments.InsertAssignment(ctx, assignment.Assignment{
		IdentityKey: id.Key(),
		Day:         day,
		QuoteID:     q.ID,
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("insert_assignment").Inc()
		return quote.Quote{}, storeUnavailable(err)
	}

	if !inserted {
		// Lost the cross-process race; the winner's row is authoritative
		// and all callers must observe the same quote.
		winner, err := s.getAssignmentWithRetry(ctx, id.Key(), day)
		if err != nil {
			return quote.Quote{}, err
		}
		q, err = s.getQuoteWithRetry(ctx, winner.QuoteID)
		if err != nil {
			return quote.Quote{}, err
		}
	} else {
		metrics.AssignmentsCreated.Inc()
		s.log.WithField("identity", id.Key()).
			WithField("day", day).
			WithField("quote_id", q.ID).
			Info("daily quote assigned")
	}

	s.writeThrough(ctx, q)
	s.publishIdentity(ctx, id)
	return q, nil
}

// ForceNewQuote replaces today's assignment with a fresh random pick.
// The cache is invalidated before the remote write so a crash in between
// leaves the remote store authoritative and the cache merely stale.
func (s *Service) ForceNewQuote(ctx context.Context, id identity.Identity) (quote.Quote, error) {
	id, err := s.resolveIdentity(ctx, id)
	if err != nil {
		return quote.Quote{}, err
	}
	day := assignment.DayOf(s.now(), s.loc)

	if err := s.local.ClearCache(ctx); err != nil {
		s.log.WithError(err).Warn("failed to invalidate cache before reassignment")
	}

	q, err := s.pickRandomQuote(ctx)
	if err != nil {
		return quote.Quote{}, err
	}

	if _, err := s.assignments.ReplaceAssignment(ctx, assignment.Assignment{
		IdentityKey: id.Key(),
		Day:         day,
		QuoteID:     q.ID,
	}); err != nil {
		metrics.StoreErrors.WithLabelValues("replace_assignment").Inc()
		return quote.Quote{}, storeUnavailable(err)
	}
	metrics.AssignmentsForced.Inc()

	s.writeThrough(ctx, q)
	if err := s.local.SetResyncNeeded(ctx, true); err != nil {
		s.log.WithError(err).Warn("failed to signal resync after forced reassignment")
	}

	s.log.WithField("identity", id.Key()).
		WithField("day", day).
		WithField("quote_id", q.ID).
		Info("daily quote replaced")
	return q, nil
}

// ClearTodaysAssignment deletes today's row. Deleting a non-existent row
// is not an error.
func (s *Service) ClearTodaysAssignment(ctx context.Context, id identity.Identity) error {
	id, err := s.resolveIdentity(ctx, id)
	if err != nil {
		return err
	}
	day := assignment.DayOf(s.now(), s.loc)

	if err := s.assignments.DeleteAssignment(ctx, id.Key(), day); err != nil {
		metrics.StoreErrors.WithLabelValues("delete_assignment").Inc()
		return storeUnavailable(err)
	}
	if err := s.local.ClearCache(ctx); err != nil {
		s.log.WithError(err).Warn("failed to clear cache after assignment delete")
	}
	return nil
}

// CachedQuote returns the locally cached quote, if any. It never blocks
// on the network and never touches the remote store.
func (s *Service) CachedQuote(ctx context.Context) (quote.Quote, bool) {
	entry, ok, err := s.local.GetCache(ctx)
	if err != nil || !ok {
		return quote.Quote{}, false
	}
	return entry.Quote, true
}

// MarkViewed records that the identity has seen today's quote.
func (s *Service) MarkViewed(ctx context.Context, id identity.Identity) error {
	id, err := s.resolveIdentity(ctx, id)
	if err != nil {
		return err
	}
	day := assignment.DayOf(s.now(), s.loc)

	err = s.assignments.MarkViewed(ctx, id.Key(), day, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("mark_viewed").Inc()
		return storeUnavailable(err)
	}
	return nil
}

// OnIdentityChanged handles a scope switch (sign-in or sign-out): the
// previous scope's cached quote must never be served under the new one.
func (s *Service) OnIdentityChanged(ctx context.Context, id identity.Identity) error {
	if err := s.local.ClearCache(ctx); err != nil {
		return fmt.Errorf("clear cache on identity change: %w", err)
	}
	if err := s.local.SetIdentity(ctx, id.Key()); err != nil {
		return fmt.Errorf("publish identity: %w", err)
	}
	if err := s.local.SetAuthenticated(ctx, id.Authenticated()); err != nil {
		return fmt.Errorf("publish authenticated flag: %w", err)
	}
	return nil
}

// --- internals --------------------------------------------------------------

func (s *Service) resolveIdentity(ctx context.Context, id identity.Identity) (identity.Identity, error) {
	if !id.IsZero() {
		return id, nil
	}
	if s.provider != nil {
		resolved, err := s.provider.CurrentIdentity(ctx)
		if err == nil && !resolved.IsZero() {
			return resolved, nil
		}
	}
	// The short-lived process has no session access; fall back to the
	// identity the daemon last published.
	sig, err := s.local.ReadSignal(ctx)
	if err == nil && sig.IdentityKey != "" {
		if resolved := identity.ParseKey(sig.IdentityKey); !resolved.IsZero() {
			return resolved, nil
		}
	}
	return identity.Identity{}, ErrIdentityRequired
}

// pickRandomQuote selects uniformly via count-then-random-offset, which
// needs no random-ordering support from the store.
func (s *Service) pickRandomQuote(ctx context.Context) (quote.Quote, error) {
	n, err := s.quotes.CountQuotes(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("count_quotes").Inc()
		return quote.Quote{}, storeUnavailable(err)
	}
	if n == 0 {
		return quote.Quote{}, ErrNoQuotesAvailable
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	q, err := s.quotes.QuoteAt(ctx, r.Int63n(n))
	if err != nil {
		metrics.StoreErrors.WithLabelValues("quote_at").Inc()
		return quote.Quote{}, storeUnavailable(err)
	}
	return q, nil
}

// getQuoteWithRetry absorbs the read-after-write race where a row just
// written is not yet visible to a subsequent read. Bounded, fixed-delay;
// an exhausted budget degrades to ErrStoreUnavailable.
func (s *Service) getQuoteWithRetry(ctx context.Context, quoteID string) (quote.Quote, error) {
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.VisibilityRetries.Inc()
			if err := sleepCtx(ctx, s.retryDelay); err != nil {
				return quote.Quote{}, storeUnavailable(err)
			}
		}
		q, err := s.quotes.GetQuote(ctx, quoteID)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			metrics.StoreErrors.WithLabelValues("get_quote").Inc()
			return quote.Quote{}, storeUnavailable(err)
		}
		lastErr = err
	}
	return quote.Quote{}, storeUnavailable(lastErr)
}

func (s *Service) getAssignmentWithRetry(ctx context.Context, identityKey, day string) (assignment.Assignment, error) {
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.VisibilityRetries.Inc()
			if err := sleepCtx(ctx, s.retryDelay); err != nil {
				return assignment.Assignment{}, storeUnavailable(err)
			}
		}
		a, err := s.assignments.GetAssignment(ctx, identityKey, day)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			metrics.StoreErrors.WithLabelValues("get_assignment").Inc()
			return assignment.Assignment{}, storeUnavailable(err)
		}
		lastErr = err
	}
	return assignment.Assignment{}, storeUnavailable(lastErr)
}

// writeThrough mirrors a successful remote read or write into the local
// cache. Cache failures degrade to a warning; the remote store stays
// authoritative and the next read repairs the cache.
func (s *Service) writeThrough(ctx context.Context, q quote.Quote) {
	entry := localstate.CacheEntry{Quote: q, FetchedAt: s.now().UTC()}
	if err := s.local.PutCache(ctx, entry); err != nil {
		s.log.WithError(err).Warn("cache write-through failed")
	}
}

// publishIdentity makes the resolved identity visible to the counterpart
// process. Only the process holding a real session publishes.
func (s *Service) publishIdentity(ctx context.Context, id identity.Identity) {
	if s.provider == nil {
		return
	}
	if err := s.local.SetIdentity(ctx, id.Key()); err != nil {
		s.log.WithError(err).Warn("failed to publish identity to signal channel")
	}
	if err := s.local.SetAuthenticated(ctx, id.Authenticated()); err != nil {
		s.log.WithError(err).Warn("failed to publish authenticated flag")
	}
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

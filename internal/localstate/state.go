// Package localstate persists the per-installation cache slot and the
// cross-process signal record. Both processes of an installation open
// the same backing store; every write must be durable before the call
// returns, because the counterpart process's next read may be the only
// observer.
package localstate

import (
	"context"
	"time"

	"github.com/quotidian-app/engine/internal/domain/quote"
)

// CacheEntry is the single-slot local mirror of the last fetched quote.
type CacheEntry struct {
	Quote     quote.Quote `json:"quote"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// Stale reports whether the entry is older than maxAge at now. Staleness
// is a soft signal only; remote-store truth wins whenever reachable.
func (e CacheEntry) Stale(maxAge time.Duration, now time.Time) bool {
	if e.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(e.FetchedAt) > maxAge
}

// Signal is the shared flag record both processes poll. Fields are
// written individually, so readers may observe a partially-updated
// record; RefreshActionable folds that into "not yet actionable".
type Signal struct {
	Authenticated      bool      `json:"authenticated"`
	IdentityKey        string    `json:"identity_key"`
	RefreshRequested   bool      `json:"refresh_requested"`
	RefreshRequestedAt time.Time `json:"refresh_requested_at"`
	ResyncNeeded       bool      `json:"resync_needed"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RefreshActionable reports whether a refresh request is complete enough
// to act on. A set flag with a zero timestamp is a half-written record
// and is skipped until the next poll.
func (s Signal) RefreshActionable() bool {
	return s.RefreshRequested && !s.RefreshRequestedAt.IsZero()
}

// Store persists one cache entry and one signal record per installation.
// Writers flush before returning; there is no delivery guarantee beyond
// "eventually visible" to the counterpart process.
//
// Each signal flag has a single designated clearer: the reconciler
// clears RefreshRequested and ResyncNeeded, the daemon owns
// Authenticated and IdentityKey.
type Store interface {
	PutCache(ctx context.Context, entry CacheEntry) error
	GetCache(ctx context.Context) (CacheEntry, bool, error)
	ClearCache(ctx context.Context) error

	ReadSignal(ctx context.Context) (Signal, error)
	SetAuthenticated(ctx context.Context, authenticated bool) error
	SetIdentity(ctx context.Context, identityKey string) error
	RequestRefresh(ctx context.Context, at time.Time) error
	ClearRefreshRequest(ctx context.Context) error
	SetResyncNeeded(ctx context.Context, needed bool) error

	Close() error
}

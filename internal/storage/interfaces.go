// Package storage defines the persistence interfaces for the remote
// quote catalog and the assignment table.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/quotidian-app/engine/internal/domain/assignment"
	"github.com/quotidian-app/engine/internal/domain/quote"
)

// ErrNotFound is returned when a requested row does not exist. Store
// implementations map their driver's not-found condition onto it.
var ErrNotFound = errors.New("storage: not found")

// QuoteStore reads the immutable quote catalog. The count/offset pair
// supports uniform random selection without requiring random-ordering
// support from the store.
type QuoteStore interface {
	// CountQuotes returns the catalog size.
	CountQuotes(ctx context.Context) (int64, error)
	// QuoteAt returns the single quote at the given offset in the
	// store's stable iteration order, joined with author and category.
	QuoteAt(ctx context.Context, offset int64) (quote.Quote, error)
	// GetQuote returns the quote with the given id, joined with author
	// and category.
	GetQuote(ctx context.Context, id string) (quote.Quote, error)
}

// AssignmentStore persists per-identity, per-day quote assignments.
// Conflict resolution for concurrent first-assignment lives here, never
// in client-side locking.
type AssignmentStore interface {
	// GetAssignment returns the assignment for (identityKey, day).
	GetAssignment(ctx context.Context, identityKey, day string) (assignment.Assignment, error)

	// InsertAssignment writes a new assignment only if none exists for
	// its (identityKey, day). The boolean reports whether the row was
	// inserted; false means another writer won the race and the caller
	// should re-read.
	InsertAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, bool, error)

	// ReplaceAssignment upserts the assignment, overwriting any existing
	// row for its (identityKey, day). The write is atomic from the
	// store's perspective.
	ReplaceAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error)

	// DeleteAssignment removes the row for (identityKey, day). Deleting
	// a non-existent row is not an error.
	DeleteAssignment(ctx context.Context, identityKey, day string) error

	// MarkViewed sets the viewed flag and timestamp on the row for
	// (identityKey, day).
	MarkViewed(ctx context.Context, identityKey, day string, at time.Time) error
}

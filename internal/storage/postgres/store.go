package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quotidian-app/engine/internal/domain/assignment"
	"github.com/quotidian-app/engine/internal/domain/quote"
	"github.com/quotidian-app/engine/internal/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.QuoteStore = (*Store)(nil)
var _ storage.AssignmentStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const quoteColumns = `
	q.id, q.text, q.gradient_start, q.gradient_end, q.created_at,
	a.id, a.name,
	c.id, c.name
`

const quoteJoins = `
	FROM quotes q
	JOIN authors a ON a.id = q.author_id
	JOIN categories c ON c.id = q.category_id
`

// --- QuoteStore -------------------------------------------------------------

func (s *Store) CountQuotes(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotes`).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) QuoteAt(ctx context.Context, offset int64) (quote.Quote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+quoteColumns+quoteJoins+`
		ORDER BY q.created_at, q.id
		OFFSET $1 LIMIT 1
	`, offset)
	return scanQuote(row)
}

func (s *Store) GetQuote(ctx context.Context, id string) (quote.Quote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+quoteColumns+quoteJoins+`
		WHERE q.id = $1
	`, id)
	return scanQuote(row)
}

func scanQuote(row *sql.Row) (quote.Quote, error) {
	var (
		q             quote.Quote
		gradientStart sql.NullString
		gradientEnd   sql.NullString
	)
	err := row.Scan(
		&q.ID, &q.Text, &gradientStart, &gradientEnd, &q.CreatedAt,
		&q.Author.ID, &q.Author.Name,
		&q.Category.ID, &q.Category.Name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return quote.Quote{}, storage.ErrNotFound
	}
	if err != nil {
		return quote.Quote{}, err
	}
	if gradientStart.Valid && gradientEnd.Valid {
		q.Gradient = &quote.Gradient{Start: gradientStart.String, End: gradientEnd.String}
	}
	return q, nil
}

// --- AssignmentStore --------------------------------------------------------

func (s *Store) GetAssignment(ctx context.Context, identityKey, day string) (assignment.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, identity_key, day, quote_id, viewed, viewed_at, created_at, updated_at
		FROM quote_assignments
		WHERE identity_key = $1 AND day = $2
	`, identityKey, day)

	var (
		a        assignment.Assignment
		viewedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.IdentityKey, &a.Day, &a.QuoteID, &a.Viewed, &viewedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return assignment.Assignment{}, storage.ErrNotFound
	}
	if err != nil {
		return assignment.Assignment{}, err
	}
	if viewedAt.Valid {
		a.ViewedAt = viewedAt.Time.UTC()
	}
	return a, nil
}

func (s *Store) InsertAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_assignments (id, identity_key, day, quote_id, viewed, viewed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity_key, day) DO NOTHING
	`, a.ID, a.IdentityKey, a.Day, a.QuoteID, a.Viewed, toNullTime(a.ViewedAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return assignment.Assignment{}, false, err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Another writer holds (identity_key, day); caller re-reads.
		return assignment.Assignment{}, false, nil
	}
	return a, true, nil
}

func (s *Store) ReplaceAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Viewed = false
	a.ViewedAt = time.Time{}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_assignments (id, identity_key, day, quote_id, viewed, viewed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, NULL, $5, $6)
		ON CONFLICT (identity_key, day) DO UPDATE
		SET quote_id = EXCLUDED.quote_id,
		    viewed = FALSE,
		    viewed_at = NULL,
		    updated_at = EXCLUDED.updated_at
	`, a.ID, a.IdentityKey, a.Day, a.QuoteID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return assignment.Assignment{}, err
	}
	// The pre-existing row keeps its id and created_at on conflict.
	return s.GetAssignment(ctx, a.IdentityKey, a.Day)
}

func (s *Store) DeleteAssignment(ctx context.Context, identityKey, day string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM quote_assignments WHERE identity_key = $1 AND day = $2
	`, identityKey, day)
	return err
}

func (s *Store) MarkViewed(ctx context.Context, identityKey, day string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE quote_assignments
		SET viewed = TRUE, viewed_at = $3, updated_at = $3
		WHERE identity_key = $1 AND day = $2
	`, identityKey, day, at.UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

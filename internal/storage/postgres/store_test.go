package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/quotidian-app/engine/internal/domain/assignment"
)

func TestInsertAssignmentReportsLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	store := New(db)
	a := assignment.Assignment{IdentityKey: "user:1", Day: "2026-08-29", QuoteID: "q-1"}

	// ON CONFLICT DO NOTHING reports zero affected rows when another
	// writer already holds (identity_key, day).
	mock.ExpectExec("INSERT INTO quote_assignments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, inserted, err := store.InsertAssignment(context.Background(), a)
	if err != nil {
		t.Fatalf("insert assignment: %v", err)
	}
	if inserted {
		t.Fatal("expected lost race to report inserted=false")
	}

	mock.ExpectExec("INSERT INTO quote_assignments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, inserted, err := store.InsertAssignment(context.Background(), a)
	if err != nil {
		t.Fatalf("insert assignment: %v", err)
	}
	if !inserted {
		t.Fatal("expected fresh insert to report inserted=true")
	}
	if created.ID == "" {
		t.Fatal("expected generated assignment id")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkViewedMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	store := New(db)

	mock.ExpectExec("UPDATE quote_assignments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.MarkViewed(context.Background(), "user:1", "2026-08-29", time.Now())
	if err == nil {
		t.Fatal("expected error marking a missing row viewed")
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)

	n, err := store.CountQuotes(ctx)
	if err != nil {
		t.Fatalf("count quotes: %v", err)
	}
	if n > 0 {
		if _, err := store.QuoteAt(ctx, 0); err != nil {
			t.Fatalf("quote at offset 0: %v", err)
		}
	}
}

package refresher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quotidian-app/engine/internal/domain/assignment"
	"github.com/quotidian-app/engine/internal/domain/identity"
	"github.com/quotidian-app/engine/internal/domain/quote"
	"github.com/quotidian-app/engine/internal/localstate"
	"github.com/quotidian-app/engine/internal/services/daily"
	"github.com/quotidian-app/engine/internal/storage/memory"
	"github.com/quotidian-app/engine/pkg/logger"
)

var testNow = time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func newFixture(t *testing.T, seed int) (*Refresher, *memory.Store, *localstate.Memory) {
	t.Helper()

	store := memory.New()
	for i := 0; i < seed; i++ {
		store.AddQuote(quote.Quote{Text: "quote", Author: quote.Author{ID: "a", Name: "A"}})
	}
	local := localstate.NewMemory()
	log := logger.NewDefault("refresher-test")

	// The widget-side service has no identity provider; identity comes
	// from the signal channel only.
	svc := daily.New(store, store, local, log,
		daily.WithClock(testClock),
		daily.WithLocation(time.UTC),
		daily.WithRetry(2, time.Millisecond))

	ref := New(svc, local, log,
		WithClock(testClock),
		WithLocation(time.UTC),
		WithIntervals(30*time.Minute, 5*time.Minute))
	return ref, store, local
}

func signIn(t *testing.T, local *localstate.Memory, id identity.Identity) {
	t.Helper()
	ctx := context.Background()
	if err := local.SetIdentity(ctx, id.Key()); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	if err := local.SetAuthenticated(ctx, true); err != nil {
		t.Fatalf("set authenticated: %v", err)
	}
}

func TestRefresherSignInOutcome(t *testing.T) {
	ref, _, _ := newFixture(t, 5)

	ev := ref.Evaluate(context.Background())

	if ev.Outcome != OutcomeSignIn {
		t.Fatalf("expected sign-in outcome, got %s", ev.Outcome)
	}
	want := testNow.Add(30 * time.Minute)
	if !ev.NextRun.Equal(want) {
		t.Errorf("next run %v, expected idle interval %v", ev.NextRun, want)
	}
}

func TestRefresherQuoteUntilMidnight(t *testing.T) {
	ref, _, local := newFixture(t, 5)
	signIn(t, local, identity.User("alice"))

	ev := ref.Evaluate(context.Background())

	if ev.Outcome != OutcomeQuote {
		t.Fatalf("expected quote outcome, got %s (err %v)", ev.Outcome, ev.Err)
	}
	if ev.Quote.IsZero() {
		t.Fatal("expected a resolved quote")
	}

	wantMidnight := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if !ev.NextRun.Equal(wantMidnight) {
		t.Errorf("next run %v, expected local midnight %v", ev.NextRun, wantMidnight)
	}
}

func TestRefresherDelegatesOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	local := localstate.NewMemory()
	log := logger.NewDefault("refresher-test")

	cached := quote.Quote{ID: "q-cached", Text: "cached"}
	if err := local.PutCache(ctx, localstate.CacheEntry{Quote: cached, FetchedAt: testNow}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	signIn(t, local, identity.User("alice"))

	down := &downStore{}
	svc := daily.New(down, down, local, log,
		daily.WithClock(testClock), daily.WithRetry(2, time.Millisecond))
	ref := New(svc, local, log,
		WithClock(testClock), WithIntervals(30*time.Minute, 5*time.Minute))

	ev := ref.Evaluate(ctx)

	if ev.Outcome != OutcomeFallback {
		t.Fatalf("expected fallback outcome, got %s", ev.Outcome)
	}
	if ev.Quote.ID != cached.ID {
		t.Errorf("expected cached quote %s, got %s", cached.ID, ev.Quote.ID)
	}
	want := testNow.Add(5 * time.Minute)
	if !ev.NextRun.Equal(want) {
		t.Errorf("next run %v, expected short retry %v", ev.NextRun, want)
	}

	sig, err := local.ReadSignal(ctx)
	if err != nil {
		t.Fatalf("read signal: %v", err)
	}
	if !sig.ResyncNeeded {
		t.Error("failed fetch should delegate via the resync flag")
	}
	if !sig.RefreshActionable() {
		t.Error("refresh request should be complete (flag plus timestamp)")
	}
}

func TestRefresherEmptyCatalogIdles(t *testing.T) {
	ref, _, local := newFixture(t, 0)
	signIn(t, local, identity.User("alice"))

	ev := ref.Evaluate(context.Background())

	if ev.Outcome != OutcomeFallback {
		t.Fatalf("expected fallback outcome, got %s", ev.Outcome)
	}
	if !errors.Is(ev.Err, daily.ErrNoQuotesAvailable) {
		t.Errorf("expected ErrNoQuotesAvailable, got %v", ev.Err)
	}
	want := testNow.Add(30 * time.Minute)
	if !ev.NextRun.Equal(want) {
		t.Errorf("empty catalog should idle, next run %v, expected %v", ev.NextRun, want)
	}

	sig, err := local.ReadSignal(context.Background())
	if err != nil {
		t.Fatalf("read signal: %v", err)
	}
	if sig.ResyncNeeded {
		t.Error("an empty catalog is not recoverable; no resync should be requested")
	}
}

// downStore simulates an unreachable remote store.
type downStore struct{}

var errStoreDown = errors.New("connection refused")

func (d *downStore) CountQuotes(ctx context.Context) (int64, error) { return 0, errStoreDown }
func (d *downStore) QuoteAt(ctx context.Context, offset int64) (quote.Quote, error) {
	return quote.Quote{}, errStoreDown
}
func (d *downStore) GetQuote(ctx context.Context, id string) (quote.Quote, error) {
	return quote.Quote{}, errStoreDown
}
func (d *downStore) GetAssignment(ctx context.Context, identityKey, day string) (assignment.Assignment, error) {
	return assignment.Assignment{}, errStoreDown
}
func (d *downStore) InsertAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, bool, error) {
	return assignment.Assignment{}, false, errStoreDown
}
func (d *downStore) ReplaceAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	return assignment.Assignment{}, errStoreDown
}
func (d *downStore) DeleteAssignment(ctx context.Context, identityKey, day string) error {
	return errStoreDown
}
func (d *downStore) MarkViewed(ctx context.Context, identityKey, day string, at time.Time) error {
	return errStoreDown
}

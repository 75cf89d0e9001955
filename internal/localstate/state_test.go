package localstate

import (
	"testing"
	"time"
)

func TestCacheEntryStale(t *testing.T) {
	now := time.Now().UTC()

	var empty CacheEntry
	if !empty.Stale(time.Hour, now) {
		t.Error("entry without a fetch timestamp should be stale")
	}

	fresh := CacheEntry{FetchedAt: now.Add(-10 * time.Minute)}
	if fresh.Stale(time.Hour, now) {
		t.Error("entry within maxAge should not be stale")
	}

	old := CacheEntry{FetchedAt: now.Add(-2 * time.Hour)}
	if !old.Stale(time.Hour, now) {
		t.Error("entry past maxAge should be stale")
	}
}

func TestSignalRefreshActionable(t *testing.T) {
	var sig Signal
	if sig.RefreshActionable() {
		t.Error("zero signal should not be actionable")
	}

	// Flag set but timestamp not yet written: a partially-updated record
	// is "not yet actionable", never an error.
	sig.RefreshRequested = true
	if sig.RefreshActionable() {
		t.Error("half-written refresh request should not be actionable")
	}

	sig.RefreshRequestedAt = time.Now().UTC()
	if !sig.RefreshActionable() {
		t.Error("complete refresh request should be actionable")
	}
}

// Package assignment defines the per-identity, per-day quote binding.
package assignment

import "time"

// DayFormat is the calendar-day rendering used as the assignment key's
// second component.
const DayFormat = "2006-01-02"

// Assignment binds one quote to one identity for one calendar day.
// Invariant: at most one row exists per (IdentityKey, Day); the store's
// conditional upsert enforces this under concurrent multi-process writers.
type Assignment struct {
	ID          string    `json:"id"`
	IdentityKey string    `json:"identity_key"`
	Day         string    `json:"day"`
	QuoteID     string    `json:"quote_id"`
	Viewed      bool      `json:"viewed"`
	ViewedAt    time.Time `json:"viewed_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DayOf renders the calendar day of t in loc. A nil loc means local time.
func DayOf(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DayFormat)
}

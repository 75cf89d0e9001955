// Package quote defines the immutable quote catalog types.
package quote

import "time"

// Author is the person a quote is attributed to.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Category groups quotes by theme.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Gradient is an optional pair of color values used as a background
// descriptor for a quote. Colors are opaque strings owned by the UI.
type Gradient struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Quote is a single catalog record, denormalized with its author and
// category. Records are never mutated by this engine.
type Quote struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	Category  Category  `json:"category"`
	Gradient  *Gradient `json:"gradient,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsZero reports whether q carries no catalog record.
func (q Quote) IsZero() bool {
	return q.ID == ""
}

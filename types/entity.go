// Package types provides common types used across Journal.
package types

import "time"

// Entity is the base type for all Journal records with timestamps.
// Journal records are append-only, so UpdatedAt normally equals
// CreatedAt; it moves only on administrative corrections.
type Entity struct {
	CreatedAt time.Time `json:"created_at" grove:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `json:"updated_at" grove:"updated_at,notnull,default:current_timestamp"`
}

// NewEntity creates a new Entity with current timestamps.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Age returns how long ago the record was created.
func (e Entity) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// WithinWindow reports whether the record was created inside the given
// lookback window, as used by the reconciliation sweeps.
func (e Entity) WithinWindow(lookback time.Duration) bool {
	return e.Age() <= lookback
}

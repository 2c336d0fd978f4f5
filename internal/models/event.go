package models

import "time"

// DisasterEvent represents a declared disaster event. At most one event is
// active at a time; status resolution is always scoped to it.
type DisasterEvent struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Type       string     `json:"type" db:"type"`
	DeclaredAt time.Time  `json:"declared_at" db:"declared_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Active     bool       `json:"active" db:"active"`
}

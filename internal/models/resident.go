package models

import "time"

// Resident represents a registered resident. Status is never stored on the
// resident row; it is always derived from the status log.
type Resident struct {
	ID           string     `json:"id" db:"id"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	BirthDate    *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Sex          string     `json:"sex" db:"sex"`
	Municipality string     `json:"municipality" db:"municipality"`
	Barangay     string     `json:"barangay" db:"barangay"`
	Address      string     `json:"address" db:"address"`
	Household    string     `json:"household" db:"household"`
	Contact      string     `json:"contact" db:"contact"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// ResolvedResident is the read-only view of a resident joined with its
// derived status. The underlying Resident is never mutated.
type ResolvedResident struct {
	Resident
	Status       StatusValue `json:"status"`
	EvacCenterID string      `json:"evac_center_id,omitempty"`
}

// ScopeFilter narrows which residents are considered. Scope filtering is
// applied before status resolution; the resolution engine itself is
// agnostic to geography.
type ScopeFilter struct {
	Municipality string `json:"municipality,omitempty"`
	Barangay     string `json:"barangay,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

package models

import (
	"encoding/json"
	"math"
	"time"
)

// EvacCenter represents an evacuation center
type EvacCenter struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Municipality string    `json:"municipality" db:"municipality"`
	Barangay     string    `json:"barangay" db:"barangay"`
	Address      string    `json:"address" db:"address"`
	Capacity     int       `json:"capacity" db:"capacity"`
	Latitude     *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude    *float64  `json:"longitude,omitempty" db:"longitude"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// CenterStats reports current occupancy for one evacuation center.
// OccupancyRatio is occupancy/capacity; a center with zero capacity but
// nonzero occupancy is treated as saturated and reports +Inf.
type CenterStats struct {
	CenterID       string  `json:"center_id"`
	Name           string  `json:"name"`
	Occupancy      int     `json:"occupancy"`
	Capacity       int     `json:"capacity"`
	OccupancyRatio float64 `json:"occupancy_ratio"`
}

// Saturated reports whether the center holds evacuees beyond any
// declared capacity (zero-capacity improvised shelters included).
func (s CenterStats) Saturated() bool {
	return math.IsInf(s.OccupancyRatio, 1)
}

// MarshalJSON emits a null occupancy ratio plus a saturated flag for
// zero-capacity centers with occupants. JSON has no encoding for the
// +Inf ratio those centers carry internally for sorting.
func (s CenterStats) MarshalJSON() ([]byte, error) {
	out := struct {
		CenterID       string   `json:"center_id"`
		Name           string   `json:"name"`
		Occupancy      int      `json:"occupancy"`
		Capacity       int      `json:"capacity"`
		OccupancyRatio *float64 `json:"occupancy_ratio"`
		Saturated      bool     `json:"saturated"`
	}{
		CenterID:  s.CenterID,
		Name:      s.Name,
		Occupancy: s.Occupancy,
		Capacity:  s.Capacity,
		Saturated: s.Saturated(),
	}
	if !out.Saturated {
		ratio := s.OccupancyRatio
		out.OccupancyRatio = &ratio
	}
	return json.Marshal(out)
}

package models

import "time"

// StatusValue is the closed set of resident statuses
type StatusValue string

const (
	StatusSafe      StatusValue = "safe"
	StatusEvacuated StatusValue = "evacuated"
	StatusInjured   StatusValue = "injured"
	StatusMissing   StatusValue = "missing"
	StatusDeceased  StatusValue = "deceased"

	// StatusUnknown is never written to the log. It is the synthesized
	// default for a resident with no log entry in the active event.
	StatusUnknown StatusValue = "unknown"
)

// StatusValues lists every status in report order, Unknown last.
func StatusValues() []StatusValue {
	return []StatusValue{
		StatusSafe, StatusEvacuated, StatusInjured,
		StatusMissing, StatusDeceased, StatusUnknown,
	}
}

// Valid reports whether v is a status that may be written to the log.
func (v StatusValue) Valid() bool {
	switch v {
	case StatusSafe, StatusEvacuated, StatusInjured, StatusMissing, StatusDeceased:
		return true
	}
	return false
}

// StatusLogEntry is an append-only status change fact. Entries are never
// updated or deleted. Seq is assigned by the store on insert and is the
// tie-break when two entries for the same resident share a timestamp:
// the higher sequence number wins.
type StatusLogEntry struct {
	ID           string      `json:"id" db:"id"`
	Seq          int64       `json:"seq" db:"seq"`
	ResidentID   string      `json:"resident_id" db:"resident_id"`
	EventID      string      `json:"event_id" db:"event_id"`
	Status       StatusValue `json:"status" db:"status"`
	EvacCenterID *string     `json:"evac_center_id,omitempty" db:"evac_center_id"`
	Latitude     *float64    `json:"latitude,omitempty" db:"latitude"`
	Longitude    *float64    `json:"longitude,omitempty" db:"longitude"`
	ReportedBy   string      `json:"reported_by" db:"reported_by"`
	RecordedAt   time.Time   `json:"recorded_at" db:"recorded_at"`
}

// StatusLogFilter for querying the status log
type StatusLogFilter struct {
	EventID     string        `json:"event_id"`
	ResidentIDs []string      `json:"resident_ids,omitempty"`
	Statuses    []StatusValue `json:"statuses,omitempty"`
	Limit       int           `json:"limit,omitempty"`
	Offset      int           `json:"offset,omitempty"`
}

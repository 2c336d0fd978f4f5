package store

import (
	"context"
	"time"

	"github.com/bantayph/bantay/internal/models"
)

// Store defines the interface to the hosted relational store. The status
// log is append-only: entries are inserted, never updated or deleted.
type Store interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	PingContext(ctx context.Context) error
	Migrate() error

	// Resident operations
	FetchResidents(ctx context.Context, scope models.ScopeFilter) ([]*models.Resident, error)
	GetResident(ctx context.Context, id string) (*models.Resident, error)
	SaveResident(ctx context.Context, resident *models.Resident) error

	// Evacuation center operations
	FetchEvacCenters(ctx context.Context) ([]*models.EvacCenter, error)
	SaveEvacCenter(ctx context.Context, center *models.EvacCenter) error

	// Disaster event operations
	FetchActiveEvent(ctx context.Context) (*models.DisasterEvent, error)
	SaveEvent(ctx context.Context, event *models.DisasterEvent) error

	// Status log operations
	FetchStatusLog(ctx context.Context, filter models.StatusLogFilter) ([]*models.StatusLogEntry, error)
	AppendStatusLog(ctx context.Context, entries []*models.StatusLogEntry) error

	// Statistics and monitoring
	GetStats(ctx context.Context) (*StoreStats, error)
	GetHealth() *StoreHealth
}

// StoreStats provides remote store statistics
type StoreStats struct {
	TotalResidents   int64      `json:"total_residents"`
	TotalEvacCenters int64      `json:"total_evac_centers"`
	TotalLogEntries  int64      `json:"total_log_entries"`
	OldestLogEntry   *time.Time `json:"oldest_log_entry,omitempty"`
	LatestLogEntry   *time.Time `json:"latest_log_entry,omitempty"`
}

// StoreHealth reports remote store health
type StoreHealth struct {
	Healthy  bool      `json:"healthy"`
	LastPing time.Time `json:"last_ping"`
	Error    string    `json:"error,omitempty"`
}

// StoreConfig holds remote store configuration
type StoreConfig struct {
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	QueryTimeout     time.Duration `json:"query_timeout"`
}

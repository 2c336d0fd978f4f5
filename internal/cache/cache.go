package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Managed collection names. The offline cache only ever holds these plus
// the metadata table.
const (
	CollectionResidents   = "residents"
	CollectionEvacCenters = "evac_centers"
)

// Record is one cached row: an opaque JSON blob keyed by the record's
// primary identifier. Collections are not normalized relationally; the
// cache is a read-only snapshot consumed by simple lookups, never joined
// or indexed by secondary keys on-device.
type Record struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Cache defines the interface for the durable offline object cache.
//
// PutCollection replaces the entire named collection in one transaction;
// a concurrent reader never observes a partially-cleared or
// partially-populated collection. Replace-not-merge is deliberate: it
// keeps the offline dataset exactly consistent with the last successful
// download, even when the cached scope changes.
type Cache interface {
	// Connection management
	Open() error
	Close() error
	Ping() error
	Migrate() error

	// Collection operations
	PutCollection(ctx context.Context, collection string, records []Record) error
	GetCollection(ctx context.Context, collection string) ([]Record, error)
	CountCollection(ctx context.Context, collection string) (int64, error)

	// Metadata operations
	GetMetadata(ctx context.Context, key string) (json.RawMessage, bool, error)
	SetMetadata(ctx context.Context, key string, value json.RawMessage) error

	// Maintenance
	ClearAll(ctx context.Context) error

	GetHealth() *CacheHealth
}

// CacheConfig holds offline cache configuration
type CacheConfig struct {
	Path           string        `json:"path"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleTime    time.Duration `json:"max_idle_time"`
}

// CacheHealth reports offline cache health
type CacheHealth struct {
	Healthy  bool      `json:"healthy"`
	Path     string    `json:"path"`
	LastPing time.Time `json:"last_ping"`
	Error    string    `json:"error,omitempty"`
}

// EncodeRecords marshals a slice of identifiable values into cache records.
func EncodeRecords[T any](items []T, id func(T) string) ([]Record, error) {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: id(item), Data: data})
	}
	return records, nil
}

// DecodeRecords unmarshals cache records back into typed values.
func DecodeRecords[T any](records []Record) ([]T, error) {
	items := make([]T, 0, len(records))
	for _, record := range records {
		var item T
		if err := json.Unmarshal(record.Data, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// EncodeMetadata marshals a metadata value for SetMetadata.
func EncodeMetadata(value interface{}) (json.RawMessage, error) {
	return json.Marshal(value)
}

// DecodeMetadata unmarshals a metadata value returned by GetMetadata.
func DecodeMetadata(raw json.RawMessage, out interface{}) error {
	return json.Unmarshal(raw, out)
}

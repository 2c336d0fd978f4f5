package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/bantayph/bantay/internal/metrics"
	"github.com/bantayph/bantay/pkg/utils"
)

// SQLiteCache implements Cache using an embedded SQLite database
type SQLiteCache struct {
	db     *sql.DB
	config *CacheConfig
	logger *logrus.Logger

	metricsManager *metrics.Manager
}

// NewSQLiteCache creates a new SQLite-backed offline cache
func NewSQLiteCache(config *CacheConfig) *SQLiteCache {
	return &SQLiteCache{
		config: config,
		logger: utils.GetLogger(),
	}
}

// SetMetricsManager attaches a metrics manager for cache operation metrics
func (c *SQLiteCache) SetMetricsManager(m *metrics.Manager) {
	c.metricsManager = m
}

// Open opens the underlying database file
func (c *SQLiteCache) Open() error {
	// Ensure directory exists
	dir := filepath.Dir(c.config.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to create cache directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", c.config.Path)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to open offline cache", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(c.config.MaxConnections)
	db.SetMaxIdleConns(c.config.MaxConnections / 2)
	db.SetConnMaxLifetime(c.config.MaxIdleTime)

	// WAL mode: writers replace collections while readers keep a
	// consistent snapshot, so a replace is never observed half-done.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to enable WAL mode", err.Error())
	}

	c.db = db
	c.logger.WithField("path", c.config.Path).Info("Offline cache opened")

	return nil
}

// Close closes the database connection
func (c *SQLiteCache) Close() error {
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		c.logger.Info("Offline cache closed")
		return err
	}
	return nil
}

// Ping checks cache availability
func (c *SQLiteCache) Ping() error {
	if c.db == nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Offline cache not opened", "")
	}
	return c.db.Ping()
}

// Migrate creates the cache schema
func (c *SQLiteCache) Migrate() error {
	if c.db == nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Offline cache not opened", "")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL, -- JSON
			cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		);

		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL, -- JSON
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to migrate offline cache", err.Error())
	}

	c.logger.Info("Offline cache schema ready")
	return nil
}

// PutCollection atomically replaces the named collection's contents
func (c *SQLiteCache) PutCollection(ctx context.Context, collection string, records []Record) error {
	start := time.Now()

	err := c.putCollection(ctx, collection, records)

	if c.metricsManager != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metricsManager.GetPrometheusMetrics().RecordCacheOperation("replace", collection, status, time.Since(start))
		if err == nil {
			c.metricsManager.GetPrometheusMetrics().UpdateCachedRecords(collection, len(records))
		}
	}

	return err
}

func (c *SQLiteCache) putCollection(ctx context.Context, collection string, records []Record) error {
	if c.db == nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Offline cache not opened", "")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to begin cache transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE collection = ?", collection); err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to clear collection", err.Error())
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO records (collection, id, data, cached_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	now := time.Now()
	for _, record := range records {
		if _, err := stmt.ExecContext(ctx, collection, record.ID, string(record.Data), now); err != nil {
			return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to insert cached record", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to commit cache transaction", err.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"collection": collection,
		"count":      len(records),
	}).Debug("Replaced cached collection")

	return nil
}

// GetCollection returns all records in the named collection. A collection
// that was never populated yields an empty slice.
func (c *SQLiteCache) GetCollection(ctx context.Context, collection string) ([]Record, error) {
	if c.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeStorageUnavailable, "Offline cache not opened", "")
	}

	rows, err := c.db.QueryContext(ctx, "SELECT id, data FROM records WHERE collection = ? ORDER BY id ASC", collection)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to query collection", err.Error())
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var record Record
		var data string

		if err := rows.Scan(&record.ID, &data); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to scan cached record", err.Error())
		}

		record.Data = json.RawMessage(data)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to read collection", err.Error())
	}

	return records, nil
}

// CountCollection returns the number of records in the named collection
func (c *SQLiteCache) CountCollection(ctx context.Context, collection string) (int64, error) {
	if c.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeStorageUnavailable, "Offline cache not opened", "")
	}

	var count int64
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE collection = ?", collection).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to count collection", err.Error())
	}

	return count, nil
}

// GetMetadata returns the value stored under key, if any
func (c *SQLiteCache) GetMetadata(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if c.db == nil {
		return nil, false, utils.NewAppError(utils.ErrCodeStorageUnavailable, "Offline cache not opened", "")
	}

	var value string
	err := c.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to get metadata", err.Error())
	}

	return json.RawMessage(value), true, nil
}

// SetMetadata stores value under key, replacing any previous value
func (c *SQLiteCache) SetMetadata(ctx context.Context, key string, value json.RawMessage) error {
	if c.db == nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Offline cache not opened", "")
	}

	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value, updated_at) VALUES (?, ?, ?)",
		key, string(value), time.Now())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to set metadata", err.Error())
	}

	return nil
}

// ClearAll empties every managed collection and the metadata table in one
// transaction; used to fully reset offline state.
func (c *SQLiteCache) ClearAll(ctx context.Context) error {
	if c.db == nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Offline cache not opened", "")
	}

	start := time.Now()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to begin cache transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to clear records", err.Error())
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM metadata"); err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to clear metadata", err.Error())
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeStorageUnavailable, "Failed to commit cache transaction", err.Error())
	}

	if c.metricsManager != nil {
		c.metricsManager.GetPrometheusMetrics().RecordCacheOperation("clear_all", "*", "success", time.Since(start))
		c.metricsManager.GetPrometheusMetrics().UpdateCachedRecords(CollectionResidents, 0)
		c.metricsManager.GetPrometheusMetrics().UpdateCachedRecords(CollectionEvacCenters, 0)
	}

	c.logger.Info("Offline cache cleared")
	return nil
}

// GetHealth reports cache health
func (c *SQLiteCache) GetHealth() *CacheHealth {
	health := &CacheHealth{
		Path:     c.config.Path,
		LastPing: time.Now(),
	}

	if err := c.Ping(); err != nil {
		health.Error = err.Error()
		return health
	}

	health.Healthy = true
	return health
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/bantayph/bantay/internal/metrics"
	"github.com/bantayph/bantay/internal/models"
	"github.com/bantayph/bantay/pkg/utils"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db         *sql.DB
	config     *StoreConfig
	logger     *logrus.Logger
	migrations []*Migration

	metricsManager *metrics.Manager
}

// NewPostgresStore creates a new PostgreSQL store instance
func NewPostgresStore(config *StoreConfig) *PostgresStore {
	return &PostgresStore{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// SetMetricsManager attaches a metrics manager for database operation metrics
func (p *PostgresStore) SetMetricsManager(m *metrics.Manager) {
	p.metricsManager = m
}

// Connect establishes database connection
func (p *PostgresStore) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgresStore) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// PingContext checks database connectivity with a caller-supplied deadline
func (p *PostgresStore) PingContext(ctx context.Context) error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.PingContext(ctx)
}

// Migrate runs database migrations
func (p *PostgresStore) Migrate() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	p.logger.Info("Starting database migrations")

	for _, migration := range p.migrations {
		p.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := p.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	p.logger.Info("Database migrations completed")
	return nil
}

// requireConn guards operations against a store that never connected.
// The error carries the remote-fetch code so callers degrade to the
// offline path instead of failing hard.
func (p *PostgresStore) requireConn() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Remote store not connected", "")
	}
	return nil
}

// FetchResidents retrieves residents matching the organizational scope
func (p *PostgresStore) FetchResidents(ctx context.Context, scope models.ScopeFilter) ([]*models.Resident, error) {
	if err := p.requireConn(); err != nil {
		return nil, err
	}

	start := time.Now()

	query := `
		SELECT id, first_name, last_name, birth_date, sex, municipality, barangay,
		       address, household, contact, created_at, updated_at
		FROM residents WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1

	if scope.Municipality != "" {
		query += fmt.Sprintf(" AND municipality = $%d", argIndex)
		args = append(args, scope.Municipality)
		argIndex++
	}

	if scope.Barangay != "" {
		query += fmt.Sprintf(" AND barangay = $%d", argIndex)
		args = append(args, scope.Barangay)
		argIndex++
	}

	query += " ORDER BY last_name ASC, first_name ASC"

	if scope.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, scope.Limit)
		argIndex++
	}

	if scope.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, scope.Offset)
		argIndex++
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		p.recordOperation("select", "residents", "error", start)
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to fetch residents", err.Error())
	}
	defer rows.Close()

	var residents []*models.Resident
	for rows.Next() {
		var resident models.Resident
		var birthDate sql.NullTime

		err := rows.Scan(&resident.ID, &resident.FirstName, &resident.LastName, &birthDate,
			&resident.Sex, &resident.Municipality, &resident.Barangay, &resident.Address,
			&resident.Household, &resident.Contact, &resident.CreatedAt, &resident.UpdatedAt)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to scan resident", err.Error())
		}

		if birthDate.Valid {
			resident.BirthDate = &birthDate.Time
		}

		residents = append(residents, &resident)
	}

	p.recordOperation("select", "residents", "success", start)
	return residents, nil
}

// GetResident retrieves a single resident by ID
func (p *PostgresStore) GetResident(ctx context.Context, id string) (*models.Resident, error) {
	if err := p.requireConn(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, first_name, last_name, birth_date, sex, municipality, barangay,
		       address, household, contact, created_at, updated_at
		FROM residents WHERE id = $1
	`

	row := p.db.QueryRowContext(ctx, query, id)

	var resident models.Resident
	var birthDate sql.NullTime

	err := row.Scan(&resident.ID, &resident.FirstName, &resident.LastName, &birthDate,
		&resident.Sex, &resident.Municipality, &resident.Barangay, &resident.Address,
		&resident.Household, &resident.Contact, &resident.CreatedAt, &resident.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.NewAppError(utils.ErrCodeNotFound, "Resident not found", id)
		}
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to get resident", err.Error())
	}

	if birthDate.Valid {
		resident.BirthDate = &birthDate.Time
	}

	return &resident, nil
}

// SaveResident inserts or updates a resident
func (p *PostgresStore) SaveResident(ctx context.Context, resident *models.Resident) error {
	if err := p.requireConn(); err != nil {
		return err
	}

	start := time.Now()

	query := `
		INSERT INTO residents (id, first_name, last_name, birth_date, sex, municipality,
		                       barangay, address, household, contact, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			birth_date = EXCLUDED.birth_date, sex = EXCLUDED.sex,
			municipality = EXCLUDED.municipality, barangay = EXCLUDED.barangay,
			address = EXCLUDED.address, household = EXCLUDED.household,
			contact = EXCLUDED.contact, updated_at = EXCLUDED.updated_at
	`

	_, err := p.db.ExecContext(ctx, query,
		resident.ID, resident.FirstName, resident.LastName, resident.BirthDate,
		resident.Sex, resident.Municipality, resident.Barangay, resident.Address,
		resident.Household, resident.Contact, resident.CreatedAt, resident.UpdatedAt)

	if err != nil {
		p.recordOperation("upsert", "residents", "error", start)
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save resident", err.Error())
	}

	p.recordOperation("upsert", "residents", "success", start)
	return nil
}

// FetchEvacCenters retrieves all active evacuation centers
func (p *PostgresStore) FetchEvacCenters(ctx context.Context) ([]*models.EvacCenter, error) {
	if err := p.requireConn(); err != nil {
		return nil, err
	}

	start := time.Now()

	query := `
		SELECT id, name, municipality, barangay, address, capacity, latitude, longitude,
		       active, created_at, updated_at
		FROM evac_centers WHERE active = TRUE ORDER BY name ASC
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		p.recordOperation("select", "evac_centers", "error", start)
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to fetch evacuation centers", err.Error())
	}
	defer rows.Close()

	var centers []*models.EvacCenter
	for rows.Next() {
		var center models.EvacCenter
		var lat, lng sql.NullFloat64

		err := rows.Scan(&center.ID, &center.Name, &center.Municipality, &center.Barangay,
			&center.Address, &center.Capacity, &lat, &lng, &center.Active,
			&center.CreatedAt, &center.UpdatedAt)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to scan evacuation center", err.Error())
		}

		if lat.Valid {
			center.Latitude = &lat.Float64
		}
		if lng.Valid {
			center.Longitude = &lng.Float64
		}

		centers = append(centers, &center)
	}

	p.recordOperation("select", "evac_centers", "success", start)
	return centers, nil
}

// SaveEvacCenter inserts or updates an evacuation center
func (p *PostgresStore) SaveEvacCenter(ctx context.Context, center *models.EvacCenter) error {
	if err := p.requireConn(); err != nil {
		return err
	}

	start := time.Now()

	query := `
		INSERT INTO evac_centers (id, name, municipality, barangay, address, capacity,
		                          latitude, longitude, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, municipality = EXCLUDED.municipality,
			barangay = EXCLUDED.barangay, address = EXCLUDED.address,
			capacity = EXCLUDED.capacity, latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude, active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := p.db.ExecContext(ctx, query,
		center.ID, center.Name, center.Municipality, center.Barangay, center.Address,
		center.Capacity, center.Latitude, center.Longitude, center.Active,
		center.CreatedAt, center.UpdatedAt)

	if err != nil {
		p.recordOperation("upsert", "evac_centers", "error", start)
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save evacuation center", err.Error())
	}

	p.recordOperation("upsert", "evac_centers", "success", start)
	return nil
}

// FetchActiveEvent retrieves the currently active disaster event, or nil
// if no event is in progress
func (p *PostgresStore) FetchActiveEvent(ctx context.Context) (*models.DisasterEvent, error) {
	if err := p.requireConn(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, type, declared_at, ended_at, active
		FROM disaster_events WHERE active = TRUE
		ORDER BY declared_at DESC LIMIT 1
	`

	row := p.db.QueryRowContext(ctx, query)

	var event models.DisasterEvent
	var endedAt sql.NullTime

	err := row.Scan(&event.ID, &event.Name, &event.Type, &event.DeclaredAt, &endedAt, &event.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to fetch active event", err.Error())
	}

	if endedAt.Valid {
		event.EndedAt = &endedAt.Time
	}

	return &event, nil
}

// SaveEvent inserts or updates a disaster event
func (p *PostgresStore) SaveEvent(ctx context.Context, event *models.DisasterEvent) error {
	if err := p.requireConn(); err != nil {
		return err
	}

	query := `
		INSERT INTO disaster_events (id, name, type, declared_at, ended_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type,
			declared_at = EXCLUDED.declared_at, ended_at = EXCLUDED.ended_at,
			active = EXCLUDED.active
	`

	_, err := p.db.ExecContext(ctx, query,
		event.ID, event.Name, event.Type, event.DeclaredAt, event.EndedAt, event.Active)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save disaster event", err.Error())
	}

	return nil
}

// FetchStatusLog retrieves status log entries based on filter
func (p *PostgresStore) FetchStatusLog(ctx context.Context, filter models.StatusLogFilter) ([]*models.StatusLogEntry, error) {
	if err := p.requireConn(); err != nil {
		return nil, err
	}

	start := time.Now()

	query := `
		SELECT id, seq, resident_id, event_id, status, evac_center_id,
		       latitude, longitude, reported_by, recorded_at
		FROM status_log WHERE event_id = $1
	`
	args := []interface{}{filter.EventID}
	argIndex := 2

	if len(filter.ResidentIDs) > 0 {
		query += fmt.Sprintf(" AND resident_id = ANY($%d)", argIndex)
		args = append(args, pq.Array(filter.ResidentIDs))
		argIndex++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statuses))
		argIndex++
	}

	query += " ORDER BY recorded_at ASC, seq ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
		argIndex++
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		p.recordOperation("select", "status_log", "error", start)
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to fetch status log", err.Error())
	}
	defer rows.Close()

	var entries []*models.StatusLogEntry
	for rows.Next() {
		var entry models.StatusLogEntry
		var centerID sql.NullString
		var lat, lng sql.NullFloat64

		err := rows.Scan(&entry.ID, &entry.Seq, &entry.ResidentID, &entry.EventID,
			&entry.Status, &centerID, &lat, &lng, &entry.ReportedBy, &entry.RecordedAt)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to scan status log entry", err.Error())
		}

		if centerID.Valid {
			entry.EvacCenterID = &centerID.String
		}
		if lat.Valid {
			entry.Latitude = &lat.Float64
		}
		if lng.Valid {
			entry.Longitude = &lng.Float64
		}

		entries = append(entries, &entry)
	}

	p.recordOperation("select", "status_log", "success", start)
	return entries, nil
}

// AppendStatusLog inserts status log entries in a transaction. Entries
// receive a generated ID when empty, and their Seq field is filled from
// the database sequence.
func (p *PostgresStore) AppendStatusLog(ctx context.Context, entries []*models.StatusLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := p.requireConn(); err != nil {
		return err
	}

	start := time.Now()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO status_log (id, resident_id, event_id, status, evac_center_id,
		                        latitude, longitude, reported_by, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq
	`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	for _, entry := range entries {
		if !entry.Status.Valid() {
			return utils.NewAppError(utils.ErrCodeValidation, "Invalid status value", string(entry.Status))
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}

		err := stmt.QueryRowContext(ctx,
			entry.ID, entry.ResidentID, entry.EventID, entry.Status, entry.EvacCenterID,
			entry.Latitude, entry.Longitude, entry.ReportedBy, entry.RecordedAt).Scan(&entry.Seq)
		if err != nil {
			p.recordOperation("insert", "status_log", "error", start)
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append status log entry", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}

	p.recordOperation("insert", "status_log", "success", start)
	p.logger.WithField("count", len(entries)).Debug("Appended status log entries")
	return nil
}

// GetStats returns remote store statistics
func (p *PostgresStore) GetStats(ctx context.Context) (*StoreStats, error) {
	if err := p.requireConn(); err != nil {
		return nil, err
	}

	stats := &StoreStats{}

	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM residents").Scan(&stats.TotalResidents); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to count residents", err.Error())
	}
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evac_centers").Scan(&stats.TotalEvacCenters); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to count evacuation centers", err.Error())
	}
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM status_log").Scan(&stats.TotalLogEntries); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to count status log", err.Error())
	}

	var oldest, latest sql.NullTime
	err := p.db.QueryRowContext(ctx, "SELECT MIN(recorded_at), MAX(recorded_at) FROM status_log").Scan(&oldest, &latest)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "Failed to read status log range", err.Error())
	}
	if oldest.Valid {
		stats.OldestLogEntry = &oldest.Time
	}
	if latest.Valid {
		stats.LatestLogEntry = &latest.Time
	}

	return stats, nil
}

// GetHealth reports remote store health
func (p *PostgresStore) GetHealth() *StoreHealth {
	health := &StoreHealth{
		LastPing: time.Now(),
	}

	if err := p.Ping(); err != nil {
		health.Error = err.Error()
		return health
	}

	health.Healthy = true
	return health
}

func (p *PostgresStore) recordOperation(operation, table, status string, start time.Time) {
	if p.metricsManager != nil {
		p.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
	}
}

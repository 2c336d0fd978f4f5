package store

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create residents table",
			SQL: `
				CREATE TABLE IF NOT EXISTS residents (
					id TEXT PRIMARY KEY,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL,
					birth_date DATE,
					sex TEXT NOT NULL DEFAULT '',
					municipality TEXT NOT NULL,
					barangay TEXT NOT NULL,
					address TEXT NOT NULL DEFAULT '',
					household TEXT NOT NULL DEFAULT '',
					contact TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_residents_municipality ON residents(municipality);
				CREATE INDEX IF NOT EXISTS idx_residents_barangay ON residents(municipality, barangay);
			`,
		},
		{
			Version:     "002",
			Description: "Create evac_centers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS evac_centers (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					municipality TEXT NOT NULL,
					barangay TEXT NOT NULL,
					address TEXT NOT NULL DEFAULT '',
					capacity INTEGER NOT NULL DEFAULT 0,
					latitude DOUBLE PRECISION,
					longitude DOUBLE PRECISION,
					active BOOLEAN DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_evac_centers_active ON evac_centers(active);
				CREATE INDEX IF NOT EXISTS idx_evac_centers_municipality ON evac_centers(municipality);
			`,
		},
		{
			Version:     "003",
			Description: "Create disaster_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS disaster_events (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					declared_at TIMESTAMP WITH TIME ZONE NOT NULL,
					ended_at TIMESTAMP WITH TIME ZONE,
					active BOOLEAN DEFAULT FALSE
				);

				CREATE INDEX IF NOT EXISTS idx_disaster_events_active ON disaster_events(active);
			`,
		},
		{
			Version:     "004",
			Description: "Create status_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS status_log (
					id TEXT PRIMARY KEY,
					seq BIGSERIAL,
					resident_id TEXT NOT NULL REFERENCES residents(id),
					event_id TEXT NOT NULL REFERENCES disaster_events(id),
					status TEXT NOT NULL,
					evac_center_id TEXT REFERENCES evac_centers(id),
					latitude DOUBLE PRECISION,
					longitude DOUBLE PRECISION,
					reported_by TEXT NOT NULL DEFAULT '',
					recorded_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_status_log_event ON status_log(event_id);
				CREATE INDEX IF NOT EXISTS idx_status_log_resident ON status_log(event_id, resident_id);
				CREATE INDEX IF NOT EXISTS idx_status_log_recorded_at ON status_log(recorded_at);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_status_log_seq ON status_log(seq);
			`,
		},
	}
}

package repository

import (
	"context"
	"fmt"
	"time"

	"station-climate/pkg/database"
	"station-climate/pkg/logging"
)

type migration struct {
	Version     int
	Description string
	// Statements per driver; each entry is executed on its own.
	Statements map[string][]string
}

const sqliteDateCheck = `CHECK (
        date GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]'
        AND CAST(SUBSTR(date, 1, 4) AS INTEGER) BETWEEN 1800 AND 2099
    )`

const postgresDateCheck = `CHECK (
        date ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}$'
        AND CAST(SUBSTR(date, 1, 4) AS INTEGER) BETWEEN 1800 AND 2099
    )`

var migrations = []migration{
	{
		Version:     1,
		Description: "Weather records and annual statistics",
		Statements: map[string][]string{
			database.DriverSQLite: {
				`CREATE TABLE IF NOT EXISTS weather_records (
    station_id TEXT NOT NULL,
    date TEXT NOT NULL,
    max_temp INTEGER,
    min_temp INTEGER,
    precipitation INTEGER,
    PRIMARY KEY (station_id, date),
    ` + sqliteDateCheck + `
)`,
				`CREATE TABLE IF NOT EXISTS annual_weather_stats (
    station_id TEXT NOT NULL,
    year INTEGER NOT NULL,
    avg_max_temp REAL,
    avg_min_temp REAL,
    total_precipitation REAL,
    PRIMARY KEY (station_id, year)
)`,
			},
			database.DriverPostgres: {
				`CREATE TABLE IF NOT EXISTS weather_records (
    station_id TEXT NOT NULL,
    date TEXT NOT NULL,
    max_temp INTEGER,
    min_temp INTEGER,
    precipitation INTEGER,
    PRIMARY KEY (station_id, date),
    ` + postgresDateCheck + `
)`,
				`CREATE TABLE IF NOT EXISTS annual_weather_stats (
    station_id TEXT NOT NULL,
    year INTEGER NOT NULL,
    avg_max_temp DOUBLE PRECISION,
    avg_min_temp DOUBLE PRECISION,
    total_precipitation DOUBLE PRECISION,
    PRIMARY KEY (station_id, year)
)`,
			},
		},
	},
	{
		Version:     2,
		Description: "Filter indexes for date and year lookups",
		Statements: map[string][]string{
			database.DriverSQLite: {
				`CREATE INDEX IF NOT EXISTS idx_weather_records_date ON weather_records(date)`,
				`CREATE INDEX IF NOT EXISTS idx_annual_weather_stats_year ON annual_weather_stats(year)`,
			},
			database.DriverPostgres: {
				`CREATE INDEX IF NOT EXISTS idx_weather_records_date ON weather_records(date)`,
				`CREATE INDEX IF NOT EXISTS idx_annual_weather_stats_year ON annual_weather_stats(year)`,
			},
		},
	},
}

// Migrate applies every schema migration that has not been recorded in
// schema_migrations yet. Safe to call on every start.
func (r *weatherRepository) Migrate(ctx context.Context) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	applied, err := r.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	driver := r.db.DriverName()
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		statements, ok := m.Statements[driver]
		if !ok {
			return fmt.Errorf("migration %d has no statements for driver %s", m.Version, driver)
		}

		r.logger.Info(ctx, "[MIGRATE] Applying migration", logging.Fields{
			"version":     m.Version,
			"description": m.Description,
			"driver":      driver,
		})

		if err := r.applyMigration(ctx, m, statements); err != nil {
			return err
		}
	}

	return nil
}

func (r *weatherRepository) applyMigration(ctx context.Context, m migration, statements []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)"),
		m.Version, m.Description, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

func (r *weatherRepository) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "create_migrations_table", `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at TEXT
		)
	`)
	return err
}

func (r *weatherRepository) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	var versions []int
	if err := r.db.SelectContext(ctx, "applied_migrations", &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, err
	}

	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh store
func (r *weatherRepository) SchemaVersion(ctx context.Context) (int, error) {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var version *int
	if err := r.db.GetContext(ctx, "schema_version", &version, "SELECT MAX(version) FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

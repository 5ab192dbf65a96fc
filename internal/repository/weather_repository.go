package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"station-climate/internal/models"
	"station-climate/pkg/database"
	"station-climate/pkg/logging"
	"station-climate/pkg/metrics"
)

// WeatherRepository provides data access for weather records and annual statistics
type WeatherRepository interface {
	// Record operations
	InsertRecordsBatch(ctx context.Context, records []*models.WeatherRecord) (*BatchResult, error)
	GetRecords(ctx context.Context, filter RecordFilter) ([]*models.WeatherRecord, int, error)
	CountRecords(ctx context.Context) (int, error)

	// Statistics operations
	ComputeAnnualStats(ctx context.Context, policy models.PrecipitationPolicy) ([]*models.AnnualStat, error)
	UpsertAnnualStats(ctx context.Context, stats []*models.AnnualStat) error
	GetAnnualStats(ctx context.Context, filter StatsFilter) ([]*models.AnnualStat, int, error)

	// Utility operations
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
}

// RecordFilter defines filters for querying weather records
type RecordFilter struct {
	StationID *string
	Date      *string // YYYY-MM-DD, exact match
	Limit     int
	Offset    int
}

// StatsFilter defines filters for querying annual statistics
type StatsFilter struct {
	StationID *string
	Year      *int
	Limit     int
	Offset    int
}

// BatchResult counts the outcome of one batch insert
type BatchResult struct {
	Inserted int
	Skipped  int // key already present
}

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const insertRecordQuery = `
	INSERT INTO weather_records (station_id, date, max_temp, min_temp, precipitation)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (station_id, date) DO NOTHING
`

// InsertRecordsBatch inserts records in a single transaction. Rows whose
// (station_id, date) already exists are left untouched and counted as skipped.
func (r *weatherRepository) InsertRecordsBatch(ctx context.Context, records []*models.WeatherRecord) (*BatchResult, error) {
	result := &BatchResult{}
	if len(records) == 0 {
		return result, nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(records)))
		r.metrics.DBQueryDuration.WithLabelValues("insert_records_batch").Observe(duration.Seconds())
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(records),
			"inserted":    result.Inserted,
			"skipped":     result.Skipped,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, tx.Rebind(insertRecordQuery))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		res, err := stmt.ExecContext(ctx,
			rec.StationID,
			rec.Date,
			rec.MaxTemp,
			rec.MinTemp,
			rec.Precipitation,
		)
		if err != nil {
			r.metrics.RecordDBError("insert_record_error")
			return nil, fmt.Errorf("failed to insert record %s/%s: %w", rec.StationID, rec.Date, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 1 {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("transaction_commit_error")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// GetRecords retrieves weather records with filtering and pagination.
// Count and page are read inside one transaction so they agree.
func (r *weatherRepository) GetRecords(ctx context.Context, filter RecordFilter) ([]*models.WeatherRecord, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.StationID != nil {
		where = append(where, "station_id = ?")
		args = append(args, *filter.StationID)
	}
	if filter.Date != nil {
		where = append(where, "date = ?")
		args = append(args, *filter.Date)
	}

	query := `
		SELECT station_id, date, max_temp, min_temp, precipitation
		FROM weather_records` + whereClause(where) + `
		ORDER BY station_id, date
		LIMIT ? OFFSET ?`

	records := []*models.WeatherRecord{}
	total, err := r.readPage(ctx, "get_records", "weather_records", where, args, query, filter.Limit, filter.Offset, &records)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get records: %w", err)
	}

	return records, total, nil
}

// CountRecords returns the number of stored weather records
func (r *weatherRepository) CountRecords(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, "count_records", &count, "SELECT COUNT(*) FROM weather_records"); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// precipitationExpr returns the total_precipitation aggregate for policy
func precipitationExpr(policy models.PrecipitationPolicy) string {
	if policy == models.PrecipitationIndependent {
		return "ROUND(SUM(precipitation / 100.0), 2)"
	}
	return `ROUND(SUM(CASE
			WHEN max_temp IS NOT NULL AND min_temp IS NOT NULL AND precipitation IS NOT NULL
			THEN precipitation / 100.0
		END), 2)`
}

// ComputeAnnualStats derives per station, per year statistics from the
// stored records in one grouped query. Missing measurements are NULL and
// ignored by AVG and SUM; a group with no present value yields NULL.
func (r *weatherRepository) ComputeAnnualStats(ctx context.Context, policy models.PrecipitationPolicy) ([]*models.AnnualStat, error) {
	query := `
		SELECT
			station_id,
			CAST(SUBSTR(date, 1, 4) AS INTEGER) AS year,
			ROUND(AVG(max_temp / 10.0), 2) AS avg_max_temp,
			ROUND(AVG(min_temp / 10.0), 2) AS avg_min_temp,
			` + precipitationExpr(policy) + ` AS total_precipitation
		FROM weather_records
		GROUP BY station_id, CAST(SUBSTR(date, 1, 4) AS INTEGER)
		ORDER BY station_id, year
	`

	stats := []*models.AnnualStat{}
	if err := r.db.SelectContext(ctx, "compute_annual_stats", &stats, query); err != nil {
		return nil, fmt.Errorf("failed to compute annual statistics: %w", err)
	}

	return stats, nil
}

const upsertAnnualStatQuery = `
	INSERT INTO annual_weather_stats (station_id, year, avg_max_temp, avg_min_temp, total_precipitation)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (station_id, year) DO UPDATE SET
		avg_max_temp = EXCLUDED.avg_max_temp,
		avg_min_temp = EXCLUDED.avg_min_temp,
		total_precipitation = EXCLUDED.total_precipitation
`

// UpsertAnnualStats replaces the statistics for every key in stats in a
// single transaction.
func (r *weatherRepository) UpsertAnnualStats(ctx context.Context, stats []*models.AnnualStat) error {
	if len(stats) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		r.metrics.DBQueryDuration.WithLabelValues("upsert_annual_stats").Observe(time.Since(timer).Seconds())
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, tx.Rebind(upsertAnnualStatQuery))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range stats {
		if _, err := stmt.ExecContext(ctx,
			s.StationID,
			s.Year,
			s.AvgMaxTemp,
			s.AvgMinTemp,
			s.TotalPrecipitation,
		); err != nil {
			r.metrics.RecordDBError("upsert_stats_error")
			return fmt.Errorf("failed to upsert statistics %s/%d: %w", s.StationID, s.Year, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("transaction_commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetAnnualStats retrieves annual statistics with filtering and pagination
func (r *weatherRepository) GetAnnualStats(ctx context.Context, filter StatsFilter) ([]*models.AnnualStat, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.StationID != nil {
		where = append(where, "station_id = ?")
		args = append(args, *filter.StationID)
	}
	if filter.Year != nil {
		where = append(where, "year = ?")
		args = append(args, *filter.Year)
	}

	query := `
		SELECT station_id, year, avg_max_temp, avg_min_temp, total_precipitation
		FROM annual_weather_stats` + whereClause(where) + `
		ORDER BY station_id, year
		LIMIT ? OFFSET ?`

	stats := []*models.AnnualStat{}
	total, err := r.readPage(ctx, "get_annual_stats", "annual_weather_stats", where, args, query, filter.Limit, filter.Offset, &stats)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get annual statistics: %w", err)
	}

	return stats, total, nil
}

// readPage counts the rows of table matching where and selects one page
// into dest, both inside a read transaction.
func (r *weatherRepository) readPage(
	ctx context.Context,
	queryType, table string,
	where []string,
	args []interface{},
	query string,
	limit, offset int,
	dest interface{},
) (int, error) {
	timer := time.Now()
	defer func() {
		r.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(timer).Seconds())
	}()

	tx, err := r.db.BeginTx(ctx, r.db.ReadTxOptions())
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int
	countQuery := "SELECT COUNT(*) FROM " + table + whereClause(where)
	if err := sqlx.GetContext(ctx, tx, &total, tx.Rebind(countQuery), args...); err != nil {
		r.metrics.RecordDBError("count_error")
		return 0, err
	}

	pageArgs := append(append([]interface{}{}, args...), limit, offset)
	if err := sqlx.SelectContext(ctx, tx, dest, tx.Rebind(query), pageArgs...); err != nil {
		r.metrics.RecordDBError("select_error")
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// HealthCheck reports whether the store is reachable. Failures wrap
// models.ErrStoreUnavailable.
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

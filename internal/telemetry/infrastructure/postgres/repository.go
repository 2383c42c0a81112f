package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

const defaultReadingsTable = "scored_readings"

// ReadingRepository is a Postgres implementation for scored readings. It
// serves both the pipeline's insert path and the history queries behind the
// API.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewReadingRepository constructs a repository with the default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const readingColumns = `machine_id, ts, vibration, temperature, humidity, score, status, heuristic`

// Insert upserts one scored reading keyed by machine and timestamp.
func (r *ReadingRepository) Insert(ctx context.Context, reading telemetry.ScoredReading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if reading.MachineID == "" || reading.Timestamp.IsZero() {
		return errors.New("reading repo: invalid reading")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (machine_id, ts)
DO UPDATE SET
	vibration = EXCLUDED.vibration,
	temperature = EXCLUDED.temperature,
	humidity = EXCLUDED.humidity,
	score = EXCLUDED.score,
	status = EXCLUDED.status,
	heuristic = EXCLUDED.heuristic`, r.table, readingColumns)

	humidity := sql.NullFloat64{}
	if reading.Humidity != nil {
		humidity = sql.NullFloat64{Float64: *reading.Humidity, Valid: true}
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		reading.MachineID,
		reading.Timestamp.UTC(),
		reading.Vibration,
		reading.Temperature,
		humidity,
		reading.Score,
		string(reading.Status),
		reading.Heuristic,
	)
	return err
}

// Latest returns the newest reading for a machine, nil when none exists.
func (r *ReadingRepository) Latest(ctx context.Context, machineID string) (*telemetry.ScoredReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if machineID == "" {
		return nil, errors.New("reading repo: empty machine id")
	}

	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE machine_id = $1
ORDER BY ts DESC
LIMIT 1`, readingColumns, r.table)

	reading, err := scanReading(r.db.QueryRowContext(ctx, query, machineID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return reading, nil
}

// LastN returns the n most recent readings for a machine in chronological
// order.
func (r *ReadingRepository) LastN(ctx context.Context, machineID string, n int) ([]telemetry.ScoredReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if machineID == "" {
		return nil, errors.New("reading repo: empty machine id")
	}
	if n <= 0 || n > 10000 {
		n = 30
	}

	query := fmt.Sprintf(`
SELECT %s FROM (
	SELECT %s FROM %s
	WHERE machine_id = $1
	ORDER BY ts DESC
	LIMIT $2
) recent
ORDER BY ts ASC`, readingColumns, readingColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, machineID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReadings(rows)
}

// Range returns readings within [from, to) in chronological order.
func (r *ReadingRepository) Range(ctx context.Context, machineID string, from, to time.Time) ([]telemetry.ScoredReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if machineID == "" {
		return nil, errors.New("reading repo: empty machine id")
	}

	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE machine_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts ASC`, readingColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, machineID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReadings(rows)
}

// Averages returns per-sensor means since a point in time, nil when the
// machine has no readings in the window.
func (r *ReadingRepository) Averages(ctx context.Context, machineID string, since time.Time) (*telemetry.SensorAverages, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if machineID == "" {
		return nil, errors.New("reading repo: empty machine id")
	}

	query := fmt.Sprintf(`
SELECT AVG(vibration), AVG(temperature), COUNT(*)
FROM %s
WHERE machine_id = $1 AND ts >= $2`, r.table)

	var vibration, temperature sql.NullFloat64
	var samples int
	if err := r.db.QueryRowContext(ctx, query, machineID, since.UTC()).Scan(&vibration, &temperature, &samples); err != nil {
		return nil, err
	}
	if samples == 0 {
		return nil, nil
	}
	return &telemetry.SensorAverages{
		Vibration:   vibration.Float64,
		Temperature: temperature.Float64,
		Samples:     samples,
	}, nil
}

// Stats aggregates a machine's readings since a point in time, nil when no
// rows fall inside the window.
func (r *ReadingRepository) Stats(ctx context.Context, machineID string, since time.Time) (*telemetry.DailyStats, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if machineID == "" {
		return nil, errors.New("reading repo: empty machine id")
	}

	query := fmt.Sprintf(`
SELECT
	AVG(vibration), MAX(vibration),
	AVG(temperature), MAX(temperature),
	AVG(score), MIN(score),
	COUNT(*),
	COUNT(*) FILTER (WHERE status = $3),
	COUNT(*) FILTER (WHERE status = $4)
FROM %s
WHERE machine_id = $1 AND ts >= $2`, r.table)

	var avgVib, maxVib, avgTemp, maxTemp, avgScore, minScore sql.NullFloat64
	var total, anomalies, warnings int
	err := r.db.QueryRowContext(
		ctx, query, machineID, since.UTC(),
		string(telemetry.StatusAnomaly), string(telemetry.StatusWarning),
	).Scan(&avgVib, &maxVib, &avgTemp, &maxTemp, &avgScore, &minScore, &total, &anomalies, &warnings)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	stats := &telemetry.DailyStats{
		MachineID:      machineID,
		AvgVibration:   avgVib.Float64,
		MaxVibration:   maxVib.Float64,
		AvgTemperature: avgTemp.Float64,
		MaxTemperature: maxTemp.Float64,
		AvgScore:       avgScore.Float64,
		MinScore:       minScore.Float64,
		TotalReadings:  total,
		Anomalies:      anomalies,
		Warnings:       warnings,
	}
	if total > 0 {
		stats.UptimePercent = float64(total-anomalies) / float64(total) * 100
	}
	return stats, nil
}

// MachineIDs lists machines with readings since a point in time.
func (r *ReadingRepository) MachineIDs(ctx context.Context, since time.Time) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT DISTINCT machine_id FROM %s
WHERE ts >= $1
ORDER BY machine_id`, r.table)

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*telemetry.ScoredReading, error) {
	var reading telemetry.ScoredReading
	var humidity sql.NullFloat64
	if err := row.Scan(
		&reading.MachineID,
		&reading.Timestamp,
		&reading.Vibration,
		&reading.Temperature,
		&humidity,
		&reading.Score,
		&reading.Status,
		&reading.Heuristic,
	); err != nil {
		return nil, err
	}
	if humidity.Valid {
		value := humidity.Float64
		reading.Humidity = &value
	}
	reading.Timestamp = reading.Timestamp.UTC()
	return &reading, nil
}

func collectReadings(rows *sql.Rows) ([]telemetry.ScoredReading, error) {
	var out []telemetry.ScoredReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reading)
	}
	return out, rows.Err()
}

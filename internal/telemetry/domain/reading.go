package telemetry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Status classifies a normalized health score.
type Status string

const (
	StatusNormal  Status = "NORMAL"
	StatusWarning Status = "WARNING"
	StatusAnomaly Status = "ANOMALY"
)

// Score thresholds shared by every consumer (alerting, API, Pareto tagging).
// Changing one must update all consumers atomically, which is why they live here.
const (
	AnomalyThreshold = 0.10
	WarningThreshold = 0.30
)

// ClassifyScore maps a normalized [0,1] health score to a status.
func ClassifyScore(score float64) Status {
	switch {
	case score < AnomalyThreshold:
		return StatusAnomaly
	case score < WarningThreshold:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// ErrInvalidReading marks readings that must be dropped without touching
// calibration state.
var ErrInvalidReading = errors.New("telemetry: invalid reading")

// ErrNoHistory is returned when a machine has no scored history yet.
var ErrNoHistory = errors.New("telemetry: no history")

// Reading is one raw sensor sample delivered by the ingest adapter.
type Reading struct {
	MachineID   string
	Timestamp   time.Time
	Vibration   float64
	Temperature float64
	Humidity    *float64
}

// Validate rejects malformed samples: missing identity, non-finite or
// negative sensor values.
func (r Reading) Validate() error {
	if r.MachineID == "" {
		return ErrInvalidReading
	}
	if r.Timestamp.IsZero() {
		return ErrInvalidReading
	}
	if !finiteNonNegative(r.Vibration) || !finiteNonNegative(r.Temperature) {
		return ErrInvalidReading
	}
	if r.Humidity != nil && !finiteNonNegative(*r.Humidity) {
		return ErrInvalidReading
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// ScoredReading is the immutable output of the anomaly scorer.
type ScoredReading struct {
	MachineID   string    `json:"machine_id"`
	Timestamp   time.Time `json:"timestamp"`
	Vibration   float64   `json:"vibration"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Score       float64   `json:"score"`
	Status      Status    `json:"status"`
	// Heuristic marks scores produced by the calibrated fallback rather than
	// a trained estimator, so downstream consumers can caveat the number.
	Heuristic bool `json:"heuristic"`
}

// SensorAverages summarizes raw sensor values over a window.
type SensorAverages struct {
	Vibration   float64
	Temperature float64
	Samples     int
}

// DailyStats aggregates one trailing window for the stats endpoint.
type DailyStats struct {
	MachineID      string  `json:"machine_id"`
	AvgVibration   float64 `json:"avg_vibration"`
	MaxVibration   float64 `json:"max_vibration"`
	AvgTemperature float64 `json:"avg_temperature"`
	MaxTemperature float64 `json:"max_temperature"`
	AvgScore       float64 `json:"avg_score"`
	MinScore       float64 `json:"min_score"`
	TotalReadings  int     `json:"total_readings"`
	Anomalies      int     `json:"anomalies"`
	Warnings       int     `json:"warnings"`
	UptimePercent  float64 `json:"uptime_percent"`
}

// ScoredReadingRepository persists scorer output.
type ScoredReadingRepository interface {
	Insert(ctx context.Context, reading ScoredReading) error
}

// HistoryQuery reads scored history for aggregation, RUL and Pareto.
type HistoryQuery interface {
	Latest(ctx context.Context, machineID string) (*ScoredReading, error)
	LastN(ctx context.Context, machineID string, limit int) ([]ScoredReading, error)
	Range(ctx context.Context, machineID string, from, to time.Time) ([]ScoredReading, error)
	Averages(ctx context.Context, machineID string, since time.Time) (*SensorAverages, error)
	Stats(ctx context.Context, machineID string, since time.Time) (*DailyStats, error)
	MachineIDs(ctx context.Context, since time.Time) ([]string, error)
}

package health

import (
	"errors"
	"math"
	"time"

	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// Level is a coarse health band derived from the 0-100 score.
type Level string

const (
	LevelExcellent Level = "EXCELLENT"
	LevelGood      Level = "GOOD"
	LevelFair      Level = "FAIR"
	LevelPoor      Level = "POOR"
	LevelCritical  Level = "CRITICAL"
)

// Urgency qualifies how soon maintenance should happen.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencySoon      Urgency = "soon"
	UrgencyScheduled Urgency = "scheduled"
)

// DefaultSampleCount is how many recent readings feed one snapshot.
const DefaultSampleCount = 30

// ErrNoHistory is returned when a machine has no scored readings yet.
var ErrNoHistory = errors.New("health: no scored readings")

// Snapshot is the aggregated health view of one machine.
type Snapshot struct {
	MachineID            string    `json:"machine_id"`
	Score                float64   `json:"health_score"`
	Level                Level     `json:"level"`
	DaysUntilMaintenance float64   `json:"days_until_maintenance"`
	Urgency              Urgency   `json:"urgency"`
	Samples              int       `json:"samples"`
	Anomalies            int       `json:"anomalies"`
	Warnings             int       `json:"warnings"`
	ComputedAt           time.Time `json:"computed_at"`
}

// LevelForScore maps a 0-100 health score onto its band.
func LevelForScore(score float64) Level {
	switch {
	case score >= 80:
		return LevelExcellent
	case score >= 60:
		return LevelGood
	case score >= 40:
		return LevelFair
	case score >= 20:
		return LevelPoor
	default:
		return LevelCritical
	}
}

// DaysUntilMaintenance projects a maintenance horizon from the score. The
// curve is piecewise linear, steeper at the low end so degrading machines
// surface quickly.
func DaysUntilMaintenance(score float64) float64 {
	switch {
	case score >= 80:
		return 14 + (score-80)*0.5
	case score >= 60:
		return 7 + (score-60)*0.35
	case score >= 40:
		return 3 + (score-40)*0.2
	case score >= 20:
		return 1 + (score-20)*0.1
	default:
		return 0
	}
}

// UrgencyForDays buckets the maintenance horizon.
func UrgencyForDays(days float64) Urgency {
	switch {
	case days < 1:
		return UrgencyImmediate
	case days < 3:
		return UrgencySoon
	default:
		return UrgencyScheduled
	}
}

// ComputeSnapshot aggregates recent scored readings into one snapshot. The
// health score is the mean anomaly score scaled to 0-100.
func ComputeSnapshot(machineID string, readings []telemetry.ScoredReading, at time.Time) (Snapshot, error) {
	if machineID == "" {
		return Snapshot{}, errors.New("health: machine id required")
	}
	if len(readings) == 0 {
		return Snapshot{}, ErrNoHistory
	}

	var sum float64
	anomalies, warnings := 0, 0
	for _, r := range readings {
		sum += r.Score
		switch r.Status {
		case telemetry.StatusAnomaly:
			anomalies++
		case telemetry.StatusWarning:
			warnings++
		}
	}
	score := math.Round(sum / float64(len(readings)) * 100)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	days := DaysUntilMaintenance(score)

	return Snapshot{
		MachineID:            machineID,
		Score:                score,
		Level:                LevelForScore(score),
		DaysUntilMaintenance: days,
		Urgency:              UrgencyForDays(days),
		Samples:              len(readings),
		Anomalies:            anomalies,
		Warnings:             warnings,
		ComputedAt:           at.UTC(),
	}, nil
}

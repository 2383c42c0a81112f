package events

import (
	"time"

	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// ReadingScored is published after the scorer classifies one reading.
type ReadingScored struct {
	Reading    telemetry.ScoredReading `json:"reading"`
	OccurredAt time.Time               `json:"occurred_at"`
}

package events

import (
	"time"

	rul "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/domain"
)

// EstimateUpdated is published after a machine's remaining-useful-life
// estimate is refitted.
type EstimateUpdated struct {
	Estimate   rul.Estimate `json:"estimate"`
	OccurredAt time.Time    `json:"occurred_at"`
}

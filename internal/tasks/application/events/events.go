package events

import (
	"time"

	tasks "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/domain"
)

// TaskCreated is published when a maintenance task is persisted.
type TaskCreated struct {
	Task       tasks.MaintenanceTask `json:"task"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// TaskStatusChanged is published on lifecycle transitions.
type TaskStatusChanged struct {
	Task       tasks.MaintenanceTask `json:"task"`
	Previous   tasks.Status          `json:"previous"`
	OccurredAt time.Time             `json:"occurred_at"`
}

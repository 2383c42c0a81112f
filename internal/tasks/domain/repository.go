package tasks

import (
	"context"
	"time"
)

// Repository persists maintenance tasks.
type Repository interface {
	Create(ctx context.Context, task *MaintenanceTask) error
	GetByID(ctx context.Context, id string) (*MaintenanceTask, error)
	List(ctx context.Context, machineID string, status Status, limit int) ([]MaintenanceTask, error)
	ListSince(ctx context.Context, since time.Time) ([]MaintenanceTask, error)
	LatestForMachineSource(ctx context.Context, machineID string, source Source) (*MaintenanceTask, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}

package auth

import (
	"context"
	"database/sql"
	"errors"

	masterdatarepo "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/masterdata/infrastructure/postgres"
)

// ErrUnknownMachine indicates the referenced machine is not registered.
var ErrUnknownMachine = errors.New("unknown machine")

// MachineChecker validates machine references on scoped requests.
type MachineChecker interface {
	EnsureMachine(ctx context.Context, machineID string) error
}

// RegisteredMachineChecker checks machine registration using masterdata.
type RegisteredMachineChecker struct {
	repo *masterdatarepo.MachineRepository
}

// NewRegisteredMachineChecker constructs a RegisteredMachineChecker.
func NewRegisteredMachineChecker(db *sql.DB) *RegisteredMachineChecker {
	if db == nil {
		return nil
	}
	return &RegisteredMachineChecker{repo: masterdatarepo.NewMachineRepository(db)}
}

// EnsureMachine verifies the machine is registered.
func (c *RegisteredMachineChecker) EnsureMachine(ctx context.Context, machineID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if machineID == "" {
		return nil
	}
	machine, err := c.repo.Get(ctx, machineID)
	if err != nil {
		return err
	}
	if machine == nil {
		return ErrUnknownMachine
	}
	return nil
}

package masterdata

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a machine does not exist.
var ErrNotFound = errors.New("masterdata: machine not found")

// Machine is one registered piece of equipment. Expected maxima, when set,
// pin the scorer's normalization envelope for that machine.
type Machine struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Location       string    `json:"location,omitempty"`
	MachineType    string    `json:"machine_type,omitempty"`
	MaxVibration   float64   `json:"max_vibration,omitempty"`
	MaxTemperature float64   `json:"max_temperature,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks required fields.
func (m Machine) Validate() error {
	if m.ID == "" {
		return errors.New("masterdata: machine id required")
	}
	if m.Name == "" {
		return errors.New("masterdata: machine name required")
	}
	if m.MaxVibration < 0 || m.MaxTemperature < 0 {
		return errors.New("masterdata: negative sensor maximum")
	}
	return nil
}

// MachineRepository persists the equipment registry.
type MachineRepository interface {
	Get(ctx context.Context, id string) (*Machine, error)
	List(ctx context.Context) ([]Machine, error)
	Save(ctx context.Context, machine *Machine) error
}

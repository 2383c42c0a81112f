package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/masterdata/domain"
)

const defaultMachinesTable = "machines"

// MachineRepository is a Postgres implementation for the equipment registry.
type MachineRepository struct {
	db    *sql.DB
	table string
}

// MachineOption configures the repository.
type MachineOption func(*MachineRepository)

// WithMachineTable overrides the default table name.
func WithMachineTable(table string) MachineOption {
	return func(repo *MachineRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewMachineRepository constructs a repository.
func NewMachineRepository(db *sql.DB, opts ...MachineOption) *MachineRepository {
	repo := &MachineRepository{db: db, table: defaultMachinesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads a machine by id. Returns nil when it does not exist.
func (r *MachineRepository) Get(ctx context.Context, id string) (*masterdata.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}
	if id == "" {
		return nil, errors.New("machine repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, name, location, machine_type, max_vibration, max_temperature, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var machine masterdata.Machine
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&machine.ID,
		&machine.Name,
		&machine.Location,
		&machine.MachineType,
		&machine.MaxVibration,
		&machine.MaxTemperature,
		&machine.CreatedAt,
		&machine.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	machine.CreatedAt = machine.CreatedAt.UTC()
	machine.UpdatedAt = machine.UpdatedAt.UTC()
	return &machine, nil
}

// List returns all machines ordered by id.
func (r *MachineRepository) List(ctx context.Context) ([]masterdata.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, location, machine_type, max_vibration, max_temperature, created_at, updated_at
FROM %s
ORDER BY id`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []masterdata.Machine
	for rows.Next() {
		var machine masterdata.Machine
		if err := rows.Scan(
			&machine.ID,
			&machine.Name,
			&machine.Location,
			&machine.MachineType,
			&machine.MaxVibration,
			&machine.MaxTemperature,
			&machine.CreatedAt,
			&machine.UpdatedAt,
		); err != nil {
			return nil, err
		}
		machine.CreatedAt = machine.CreatedAt.UTC()
		machine.UpdatedAt = machine.UpdatedAt.UTC()
		out = append(out, machine)
	}
	return out, rows.Err()
}

// Save upserts a machine.
func (r *MachineRepository) Save(ctx context.Context, machine *masterdata.Machine) error {
	if r == nil || r.db == nil {
		return errors.New("machine repo: nil db")
	}
	if machine == nil {
		return errors.New("machine repo: nil machine")
	}
	if err := machine.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	name,
	location,
	machine_type,
	max_vibration,
	max_temperature
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	location = EXCLUDED.location,
	machine_type = EXCLUDED.machine_type,
	max_vibration = EXCLUDED.max_vibration,
	max_temperature = EXCLUDED.max_temperature,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		machine.ID,
		machine.Name,
		machine.Location,
		machine.MachineType,
		machine.MaxVibration,
		machine.MaxTemperature,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if machine.CreatedAt.IsZero() {
		machine.CreatedAt = now
	}
	machine.UpdatedAt = now
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	tasks "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/domain"
)

const defaultTasksTable = "maintenance_tasks"

// TaskRepository is a Postgres implementation for maintenance tasks.
type TaskRepository struct {
	db    *sql.DB
	table string
}

// TaskOption configures the repository.
type TaskOption func(*TaskRepository)

// WithTaskTable overrides the default table name.
func WithTaskTable(table string) TaskOption {
	return func(repo *TaskRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewTaskRepository constructs a repository.
func NewTaskRepository(db *sql.DB, opts ...TaskOption) *TaskRepository {
	repo := &TaskRepository{db: db, table: defaultTasksTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const taskColumns = `
id, machine_id, title, description, category, priority, status, quadrant,
source, informational, due_at, cost_estimate, anomaly_id, ai_detected_cause,
trigger_vibration, trigger_temperature, created_at, updated_at`

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, task *tasks.MaintenanceTask) error {
	if r == nil || r.db == nil {
		return errors.New("task repo: nil db")
	}
	if task == nil {
		return errors.New("task repo: nil task")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
)`, r.table, taskColumns)

	_, err := r.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.MachineID,
		task.Title,
		task.Description,
		task.Category,
		string(task.Priority),
		string(task.Status),
		string(task.Quadrant),
		string(task.Source),
		task.Informational,
		nullableTime(task.DueAt),
		task.CostEstimate,
		task.AnomalyID,
		task.AIDetectedCause,
		task.TriggerVibration,
		task.TriggerTemp,
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	return err
}

// GetByID loads a task by id. Returns nil when the task does not exist.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*tasks.MaintenanceTask, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("task repo: nil db")
	}
	if id == "" {
		return nil, errors.New("task repo: empty id")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 LIMIT 1`, taskColumns, r.table)
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

// List returns tasks optionally filtered by machine and status, newest first.
func (r *TaskRepository) List(ctx context.Context, machineID string, status tasks.Status, limit int) ([]tasks.MaintenanceTask, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("task repo: nil db")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1 = '' OR machine_id = $1)
  AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3`, taskColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, machineID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tasks.MaintenanceTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// ListSince returns tasks created at or after the given time.
func (r *TaskRepository) ListSince(ctx context.Context, since time.Time) ([]tasks.MaintenanceTask, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("task repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE created_at >= $1
ORDER BY created_at DESC`, taskColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tasks.MaintenanceTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// LatestForMachineSource returns the newest task for a machine and source,
// used for auto-creation cooldowns. Returns nil when none exists.
func (r *TaskRepository) LatestForMachineSource(ctx context.Context, machineID string, source tasks.Source) (*tasks.MaintenanceTask, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("task repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE machine_id = $1 AND source = $2
ORDER BY created_at DESC
LIMIT 1`, taskColumns, r.table)

	task, err := scanTask(r.db.QueryRowContext(ctx, query, machineID, string(source)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

// UpdateStatus moves a task to a new status.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status tasks.Status, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("task repo: nil db")
	}

	query := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = $3 WHERE id = $1`, r.table)
	result, err := r.db.ExecContext(ctx, query, id, string(status), at.UTC())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*tasks.MaintenanceTask, error) {
	var task tasks.MaintenanceTask
	var dueAt sql.NullTime
	if err := row.Scan(
		&task.ID,
		&task.MachineID,
		&task.Title,
		&task.Description,
		&task.Category,
		&task.Priority,
		&task.Status,
		&task.Quadrant,
		&task.Source,
		&task.Informational,
		&dueAt,
		&task.CostEstimate,
		&task.AnomalyID,
		&task.AIDetectedCause,
		&task.TriggerVibration,
		&task.TriggerTemp,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if dueAt.Valid {
		task.DueAt = dueAt.Time.UTC()
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

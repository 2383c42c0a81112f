package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/eventing"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/observability/metrics"
	rulevents "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/application/events"
	rul "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/domain"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/application/events"
	tasks "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/domain"
	telemetryevents "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/application/events"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// DefaultCooldown spaces auto-created tasks per machine and source.
const DefaultCooldown = 30 * time.Minute

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Draft is the caller-supplied part of a manual task.
type Draft struct {
	MachineID     string         `json:"machine_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Category      string         `json:"category"`
	Priority      tasks.Priority `json:"priority"`
	Informational bool           `json:"informational"`
	DueAt         time.Time      `json:"due_at"`
	CostEstimate  float64        `json:"cost_estimate"`
}

// Service creates, classifies and transitions maintenance tasks. Anomalous
// readings and short-horizon failure predictions auto-create drafts, rate
// limited per machine by a cooldown.
type Service struct {
	repo     tasks.Repository
	bus      eventing.Bus
	logger   *log.Logger
	clock    Clock
	cooldown time.Duration
}

// ServiceOption customizes the task service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithCooldown overrides the auto-creation cooldown.
func WithCooldown(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// NewService constructs a task service.
func NewService(repo tasks.Repository, bus eventing.Bus, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("tasks: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		repo:     repo,
		bus:      bus,
		logger:   logger,
		clock:    systemClock{},
		cooldown: DefaultCooldown,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Register subscribes the service to the events that auto-create tasks.
func (s *Service) Register(bus eventing.Bus) {
	eventing.SubscribeTyped(bus, "tasks.anomaly", s.logger, s.HandleReadingScored)
	eventing.SubscribeTyped(bus, "tasks.rul", s.logger, s.HandleEstimateUpdated)
}

// CreateManual persists an operator-entered task.
func (s *Service) CreateManual(ctx context.Context, draft Draft) (*tasks.MaintenanceTask, error) {
	if s == nil {
		return nil, errors.New("tasks: nil service")
	}
	if draft.MachineID == "" {
		return nil, errors.New("tasks: machine id required")
	}
	if draft.Title == "" {
		return nil, errors.New("tasks: title required")
	}
	priority := draft.Priority
	switch priority {
	case tasks.PriorityHigh, tasks.PriorityMedium, tasks.PriorityLow:
	case "":
		priority = tasks.PriorityMedium
	default:
		return nil, fmt.Errorf("tasks: unknown priority %q", priority)
	}

	now := s.clock.Now()
	task := &tasks.MaintenanceTask{
		ID:            buildTaskID(draft.MachineID, draft.Title, now),
		MachineID:     draft.MachineID,
		Title:         draft.Title,
		Description:   draft.Description,
		Category:      draft.Category,
		Priority:      priority,
		Status:        tasks.StatusNotStarted,
		Source:        tasks.SourceManual,
		Informational: draft.Informational,
		DueAt:         draft.DueAt,
		CostEstimate:  draft.CostEstimate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	task.Classify(now)

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}
	s.created(ctx, *task)
	return task, nil
}

// HandleReadingScored auto-creates an investigation task for anomalous
// readings, at most one per machine per cooldown.
func (s *Service) HandleReadingScored(ctx context.Context, evt telemetryevents.ReadingScored) error {
	if s == nil {
		return errors.New("tasks: nil service")
	}
	reading := evt.Reading
	if reading.Status != telemetry.StatusAnomaly {
		return nil
	}
	now := s.clock.Now()
	cooled, err := s.inCooldown(ctx, reading.MachineID, tasks.SourceAnomaly, now)
	if err != nil {
		return err
	}
	if cooled {
		return nil
	}

	task := &tasks.MaintenanceTask{
		ID:        buildTaskID(reading.MachineID, "anomaly", now),
		MachineID: reading.MachineID,
		Title:     fmt.Sprintf("Investigate anomaly on %s", reading.MachineID),
		Description: fmt.Sprintf("Anomaly score %.2f at %s (vibration %.1f, temperature %.1f)",
			reading.Score, reading.Timestamp.Format(time.RFC3339), reading.Vibration, reading.Temperature),
		Category:         "anomaly investigation",
		Priority:         tasks.PriorityHigh,
		Status:           tasks.StatusNotStarted,
		Source:           tasks.SourceAnomaly,
		DueAt:            now.AddDate(0, 0, 1),
		AnomalyID:        buildAnomalyID(reading),
		AIDetectedCause:  detectCause(reading),
		TriggerVibration: reading.Vibration,
		TriggerTemp:      reading.Temperature,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	task.Classify(now)

	if err := s.repo.Create(ctx, task); err != nil {
		return err
	}
	s.created(ctx, *task)
	return nil
}

// HandleEstimateUpdated auto-creates a preventive task when the predicted
// failure horizon turns short.
func (s *Service) HandleEstimateUpdated(ctx context.Context, evt rulevents.EstimateUpdated) error {
	if s == nil {
		return errors.New("tasks: nil service")
	}
	est := evt.Estimate
	if est.Urgency != rul.UrgencyImmediate && est.Urgency != rul.UrgencyHigh {
		return nil
	}
	now := s.clock.Now()
	cooled, err := s.inCooldown(ctx, est.MachineID, tasks.SourceRUL, now)
	if err != nil {
		return err
	}
	if cooled {
		return nil
	}

	priority := tasks.PriorityMedium
	if est.Urgency == rul.UrgencyImmediate {
		priority = tasks.PriorityHigh
	}
	task := &tasks.MaintenanceTask{
		ID:        buildTaskID(est.MachineID, "rul", now),
		MachineID: est.MachineID,
		Title:     fmt.Sprintf("Preventive maintenance for %s", est.MachineID),
		Description: fmt.Sprintf("Predicted failure in %.1f days (health %.0f, losing %.1f points/day)",
			est.RemainingDays, est.Health, est.RatePerDay),
		Category:        "preventive maintenance",
		Priority:        priority,
		Status:          tasks.StatusNotStarted,
		Source:          tasks.SourceRUL,
		DueAt:           est.PredictedFailure,
		AIDetectedCause: "accelerated degradation",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	task.Classify(now)

	if err := s.repo.Create(ctx, task); err != nil {
		return err
	}
	s.created(ctx, *task)
	return nil
}

// UpdateStatus moves a task along its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id string, status tasks.Status) (*tasks.MaintenanceTask, error) {
	if s == nil {
		return nil, errors.New("tasks: nil service")
	}
	switch status {
	case tasks.StatusNotStarted, tasks.StatusInProgress, tasks.StatusDone:
	default:
		return nil, fmt.Errorf("tasks: unknown status %q", status)
	}

	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, tasks.ErrNotFound
	}
	if task.Status == status {
		return task, nil
	}
	if !tasks.CanTransition(task.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", tasks.ErrInvalidTransition, task.Status, status)
	}

	now := s.clock.Now()
	if err := s.repo.UpdateStatus(ctx, id, status, now); err != nil {
		return nil, err
	}
	previous := task.Status
	task.Status = status
	task.UpdatedAt = now

	if s.bus != nil {
		evt := events.TaskStatusChanged{Task: *task, Previous: previous, OccurredAt: now}
		if err := s.bus.Publish(ctx, evt); err != nil {
			s.logger.Printf("tasks: publish status change %s: %v", id, err)
		}
	}
	return task, nil
}

// Get loads one task.
func (s *Service) Get(ctx context.Context, id string) (*tasks.MaintenanceTask, error) {
	if id == "" {
		return nil, errors.New("tasks: id required")
	}
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, tasks.ErrNotFound
	}
	return task, nil
}

// List returns tasks in execution order.
func (s *Service) List(ctx context.Context, machineID string, status tasks.Status, limit int) ([]tasks.MaintenanceTask, error) {
	list, err := s.repo.List(ctx, machineID, status, limit)
	if err != nil {
		return nil, err
	}
	tasks.SortForExecution(list)
	return list, nil
}

func (s *Service) inCooldown(ctx context.Context, machineID string, source tasks.Source, now time.Time) (bool, error) {
	latest, err := s.repo.LatestForMachineSource(ctx, machineID, source)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return false, nil
	}
	return now.Sub(latest.CreatedAt) < s.cooldown, nil
}

func (s *Service) created(ctx context.Context, task tasks.MaintenanceTask) {
	metrics.IncTaskCreated(string(task.Source), string(task.Quadrant))
	if s.bus == nil {
		return
	}
	evt := events.TaskCreated{Task: task, OccurredAt: task.CreatedAt}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Printf("tasks: publish created %s: %v", task.ID, err)
	}
}

func detectCause(r telemetry.ScoredReading) string {
	if r.Temperature > r.Vibration {
		return "overheating"
	}
	return "excess vibration"
}

func buildTaskID(machineID, kind string, at time.Time) string {
	sum := sha1.Sum([]byte(machineID + "|" + kind + "|" + at.Format(time.RFC3339Nano)))
	return "task-" + hex.EncodeToString(sum[:8])
}

func buildAnomalyID(r telemetry.ScoredReading) string {
	sum := sha1.Sum([]byte(r.MachineID + "|" + r.Timestamp.Format(time.RFC3339Nano)))
	return "anomaly-" + hex.EncodeToString(sum[:8])
}

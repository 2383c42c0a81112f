package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	pareto "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/pareto/domain"
	tasks "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/domain"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// Analysis windows offered to callers, in days.
var AllowedWindows = []int{7, 30, 90}

// CauseExcessVibration and CauseOverheating label what drove an anomaly,
// judged by which sensor sat closer to its envelope.
const (
	CauseExcessVibration = "excess vibration"
	CauseOverheating     = "overheating"
)

// ErrInvalidWindow is returned for unsupported day windows.
var ErrInvalidWindow = errors.New("pareto: unsupported window")

// TaskSource lists maintenance tasks created since a point in time.
type TaskSource interface {
	ListSince(ctx context.Context, since time.Time) ([]tasks.MaintenanceTask, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service runs Pareto analyses over trailing windows of anomaly history and
// maintenance-task spend.
type Service struct {
	history telemetry.HistoryQuery
	tasks   TaskSource
	logger  *log.Logger
	clock   Clock
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs a Pareto service. The task source is optional; the
// maintenance analysis errors without one.
func NewService(history telemetry.HistoryQuery, taskSource TaskSource, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if history == nil {
		return nil, errors.New("pareto: nil history query")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		history: history,
		tasks:   taskSource,
		logger:  logger,
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Anomalies analyzes anomaly causes over the trailing window, optionally
// scoped to one machine.
func (s *Service) Anomalies(ctx context.Context, days int, machineID string) (pareto.Analysis, error) {
	if err := validateWindow(days); err != nil {
		return pareto.Analysis{}, err
	}
	now := s.clock.Now()
	since := now.AddDate(0, 0, -days)

	machineIDs := []string{machineID}
	if machineID == "" {
		ids, err := s.history.MachineIDs(ctx, since)
		if err != nil {
			return pareto.Analysis{}, err
		}
		machineIDs = ids
	}

	var events []pareto.Event
	for _, id := range machineIDs {
		readings, err := s.history.Range(ctx, id, since, now)
		if err != nil {
			return pareto.Analysis{}, err
		}
		for _, r := range readings {
			if r.Status != telemetry.StatusAnomaly {
				continue
			}
			events = append(events, pareto.Event{Factor: CauseForReading(r)})
		}
	}
	return pareto.Analyze(events), nil
}

// Maintenance analyzes task categories with summed cost over the trailing
// window.
func (s *Service) Maintenance(ctx context.Context, days int) (pareto.Analysis, error) {
	if err := validateWindow(days); err != nil {
		return pareto.Analysis{}, err
	}
	if s.tasks == nil {
		return pareto.Analysis{}, errors.New("pareto: no task source configured")
	}
	since := s.clock.Now().AddDate(0, 0, -days)
	list, err := s.tasks.ListSince(ctx, since)
	if err != nil {
		return pareto.Analysis{}, err
	}
	events := make([]pareto.Event, 0, len(list))
	for _, task := range list {
		events = append(events, pareto.Event{Factor: taskFactor(task), Cost: task.CostEstimate})
	}
	return pareto.Analyze(events), nil
}

// CauseForReading labels what pushed a reading into anomaly: the sensor
// sitting closer to its envelope wins, vibration on ties.
func CauseForReading(r telemetry.ScoredReading) string {
	if r.Temperature > r.Vibration {
		return CauseOverheating
	}
	return CauseExcessVibration
}

func taskFactor(task tasks.MaintenanceTask) string {
	if task.Category != "" {
		return task.Category
	}
	if task.AIDetectedCause != "" {
		return task.AIDetectedCause
	}
	return "uncategorized"
}

func validateWindow(days int) error {
	for _, allowed := range AllowedWindows {
		if days == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %d days", ErrInvalidWindow, days)
}

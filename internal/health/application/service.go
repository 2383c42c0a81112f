package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/eventing"
	health "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/health/domain"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/application/events"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service keeps a per-machine health snapshot current by recomputing it from
// recent history whenever a reading is scored.
type Service struct {
	history telemetry.HistoryQuery
	logger  *log.Logger
	clock   Clock
	samples int

	mu        sync.RWMutex
	snapshots map[string]health.Snapshot
}

// ServiceOption customizes the health service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithSampleCount overrides how many readings feed a snapshot.
func WithSampleCount(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.samples = n
		}
	}
}

// NewService constructs a health service.
func NewService(history telemetry.HistoryQuery, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if history == nil {
		return nil, errors.New("health: nil history query")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		history:   history,
		logger:    logger,
		clock:     systemClock{},
		samples:   health.DefaultSampleCount,
		snapshots: make(map[string]health.Snapshot),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Register subscribes the service to scored-reading events.
func (s *Service) Register(bus eventing.Bus) {
	eventing.SubscribeTyped(bus, "health.snapshot", s.logger, s.HandleReadingScored)
}

// HandleReadingScored recomputes the snapshot for the machine that produced
// the reading.
func (s *Service) HandleReadingScored(ctx context.Context, evt events.ReadingScored) error {
	if s == nil {
		return errors.New("health: nil service")
	}
	_, err := s.Recompute(ctx, evt.Reading.MachineID)
	return err
}

// Recompute rebuilds a machine's snapshot from its most recent readings and
// caches the result.
func (s *Service) Recompute(ctx context.Context, machineID string) (health.Snapshot, error) {
	readings, err := s.history.LastN(ctx, machineID, s.samples)
	if err != nil {
		return health.Snapshot{}, err
	}
	snap, err := health.ComputeSnapshot(machineID, readings, s.clock.Now())
	if err != nil {
		return health.Snapshot{}, err
	}
	s.mu.Lock()
	s.snapshots[machineID] = snap
	s.mu.Unlock()
	return snap, nil
}

// Snapshot returns the cached snapshot, recomputing when the cache is cold.
func (s *Service) Snapshot(ctx context.Context, machineID string) (health.Snapshot, error) {
	if machineID == "" {
		return health.Snapshot{}, errors.New("health: machine id required")
	}
	s.mu.RLock()
	snap, ok := s.snapshots[machineID]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}
	return s.Recompute(ctx, machineID)
}

// List returns all cached snapshots ordered by machine id.
func (s *Service) List() []health.Snapshot {
	s.mu.RLock()
	out := make([]health.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].MachineID < out[j].MachineID })
	return out
}

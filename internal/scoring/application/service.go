package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/eventing"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/observability/metrics"
	scoring "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/scoring/domain"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/application/events"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

const (
	pathTrained   = "trained"
	pathHeuristic = "heuristic"

	dropReasonInvalid    = "invalid"
	dropReasonOutOfOrder = "out_of_order"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// machineState is the live pipeline state for one machine, created on its
// first reading and evicted after idling past the configured horizon. mu
// serializes the machine's pipeline: the window is read during scoring, so
// append and score must not interleave.
type machineState struct {
	mu        sync.Mutex
	window    *scoring.CalibrationWindow
	heuristic *scoring.HeuristicScorer
	lastSeen  time.Time
}

// Service scores incoming readings, classifies them and fans the result out
// to storage and the event bus.
type Service struct {
	cfg     Config
	trained scoring.Scorer
	repo    telemetry.ScoredReadingRepository
	bus     eventing.Bus
	logger  *log.Logger
	clock   Clock

	mu       sync.Mutex // guards the machines map; each state carries its own lock
	machines map[string]*machineState
}

// ServiceOption customizes the scoring service.
type ServiceOption func(*Service)

// WithTrainedScorer assigns the primary trained-model path.
func WithTrainedScorer(scorer scoring.Scorer) ServiceOption {
	return func(s *Service) {
		s.trained = scorer
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs a scoring service.
func NewService(cfg Config, repo telemetry.ScoredReadingRepository, bus eventing.Bus, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("scoring: nil repository")
	}
	if bus == nil {
		return nil, errors.New("scoring: nil event bus")
	}
	if logger == nil {
		logger = log.Default()
	}
	for _, warning := range cfg.Sanitize() {
		logger.Printf("scoring config: %s", warning)
	}
	service := &Service{
		cfg:      cfg,
		repo:     repo,
		bus:      bus,
		logger:   logger,
		clock:    systemClock{},
		machines: make(map[string]*machineState),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// HandleReading runs one reading through the pipeline: validate, calibrate,
// score, classify, persist, publish. Malformed and out-of-order readings are
// dropped without failing the batch.
func (s *Service) HandleReading(ctx context.Context, r telemetry.Reading) (*telemetry.ScoredReading, error) {
	if s == nil {
		return nil, errors.New("scoring: nil service")
	}
	if err := r.Validate(); err != nil {
		metrics.IncDropped(dropReasonInvalid)
		s.logger.Printf("scoring: dropped invalid reading machine=%s: %v", r.MachineID, err)
		return nil, err
	}

	started := s.clock.Now()
	state := s.stateFor(r.MachineID)

	state.mu.Lock()
	err := state.window.Append(r)
	state.lastSeen = started
	if err != nil {
		state.mu.Unlock()
		if errors.Is(err, scoring.ErrOutOfOrder) {
			metrics.IncDropped(dropReasonOutOfOrder)
			s.logger.Printf("scoring: dropped out-of-order reading machine=%s ts=%s", r.MachineID, r.Timestamp.Format(time.RFC3339))
		} else {
			metrics.IncDropped(dropReasonInvalid)
			s.logger.Printf("scoring: dropped invalid reading machine=%s: %v", r.MachineID, err)
		}
		return nil, err
	}
	result, path := s.score(ctx, r, state)
	state.mu.Unlock()

	status := telemetry.ClassifyScore(result.Score)

	scored := telemetry.ScoredReading{
		MachineID:   r.MachineID,
		Timestamp:   r.Timestamp.UTC(),
		Vibration:   r.Vibration,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Score:       result.Score,
		Status:      status,
		Heuristic:   result.Heuristic,
	}
	if err := s.repo.Insert(ctx, scored); err != nil {
		return nil, err
	}

	evt := events.ReadingScored{Reading: scored, OccurredAt: s.clock.Now()}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Printf("scoring: publish failed machine=%s: %v", r.MachineID, err)
	}

	metrics.ObserveScored(string(status), path, s.clock.Now().Sub(started))
	return &scored, nil
}

// score runs the trained path when configured, falling back to the
// self-calibrating heuristic whenever the model cannot serve.
func (s *Service) score(ctx context.Context, r telemetry.Reading, state *machineState) (scoring.Result, string) {
	if s.trained != nil {
		result, err := s.trained.Score(ctx, r, state.window)
		if err == nil {
			return result, pathTrained
		}
		s.logger.Printf("scoring: trained path failed machine=%s, using heuristic: %v", r.MachineID, err)
	}
	result, _ := state.heuristic.Score(ctx, r, state.window)
	return result, pathHeuristic
}

func (s *Service) stateFor(machineID string) *machineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.machines[machineID]
	if !ok {
		state = &machineState{
			window:    scoring.NewCalibrationWindow(s.cfg.WindowHorizon),
			heuristic: scoring.NewHeuristicScorer(s.cfg.CeilingsForMachine(machineID)),
		}
		s.machines[machineID] = state
		metrics.SetMachinesActive(len(s.machines))
	}
	return state
}

// Sweep evicts machines idle past the configured horizon. Intended to run on
// a ticker.
func (s *Service) Sweep(now time.Time) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for machineID, state := range s.machines {
		state.mu.Lock()
		lastSeen := state.lastSeen
		state.mu.Unlock()
		if now.Sub(lastSeen) > s.cfg.IdleEviction {
			delete(s.machines, machineID)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.SetMachinesActive(len(s.machines))
	}
	return evicted
}

// ActiveMachines returns the machines with live calibration state.
func (s *Service) ActiveMachines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.machines))
	for machineID := range s.machines {
		ids = append(ids, machineID)
	}
	return ids
}

// Baselines exposes a machine's calibration means for downstream analysis.
func (s *Service) Baselines(machineID string) (vibration, temperature float64, ok bool) {
	s.mu.Lock()
	state, exists := s.machines[machineID]
	s.mu.Unlock()
	if !exists {
		return 0, 0, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.window.Baselines()
}

package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/eventing"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/observability/metrics"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/application/events"
	rul "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/domain"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// DefaultLookback bounds how far back the trend fit reaches.
const DefaultLookback = 14 * 24 * time.Hour

// DefaultInterval is the recomputation cadence.
const DefaultInterval = 30 * time.Second

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// BaselineSource exposes calibrated per-machine sensor baselines.
type BaselineSource interface {
	Baselines(machineID string) (vibration, temperature float64, ok bool)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service periodically refits remaining-useful-life estimates for every
// machine with recent history and caches the latest result.
type Service struct {
	history   telemetry.HistoryQuery
	bus       eventing.Bus
	logger    *log.Logger
	clock     Clock
	lookback  time.Duration
	baselines BaselineSource

	mu        sync.RWMutex
	estimates map[string]rul.Estimate
}

// ServiceOption customizes the RUL service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLookback overrides the trend window.
func WithLookback(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.lookback = d
		}
	}
}

// WithBus publishes estimate updates to an event bus.
func WithBus(bus eventing.Bus) ServiceOption {
	return func(s *Service) {
		s.bus = bus
	}
}

// WithBaselines ranks critical sensor factors against calibrated baselines.
func WithBaselines(source BaselineSource) ServiceOption {
	return func(s *Service) {
		s.baselines = source
	}
}

// NewService constructs a RUL service.
func NewService(history telemetry.HistoryQuery, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if history == nil {
		return nil, errors.New("rul: nil history query")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		history:   history,
		logger:    logger,
		clock:     systemClock{},
		lookback:  DefaultLookback,
		estimates: make(map[string]rul.Estimate),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Run recomputes estimates on a ticker until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RecomputeAll(ctx)
		}
	}
}

// RecomputeAll refits every machine seen within the lookback window.
func (s *Service) RecomputeAll(ctx context.Context) {
	started := s.clock.Now()
	machineIDs, err := s.history.MachineIDs(ctx, started.Add(-s.lookback))
	if err != nil {
		s.logger.Printf("rul: list machines: %v", err)
		metrics.ObserveRULRun(metrics.ResultError, s.clock.Now().Sub(started))
		return
	}
	for _, machineID := range machineIDs {
		if _, err := s.Recompute(ctx, machineID); err != nil {
			if !errors.Is(err, rul.ErrInsufficientHistory) {
				s.logger.Printf("rul: recompute %s: %v", machineID, err)
			}
		}
	}
	metrics.ObserveRULRun(metrics.ResultSuccess, s.clock.Now().Sub(started))
}

// Recompute refits one machine from its history and caches the estimate.
func (s *Service) Recompute(ctx context.Context, machineID string) (rul.Estimate, error) {
	if machineID == "" {
		return rul.Estimate{}, errors.New("rul: machine id required")
	}
	now := s.clock.Now()
	readings, err := s.history.Range(ctx, machineID, now.Add(-s.lookback), now)
	if err != nil {
		return rul.Estimate{}, err
	}
	points := hourlyHealth(readings)
	est, err := rul.Fit(machineID, points, now)
	if err != nil {
		return rul.Estimate{}, err
	}
	est.CriticalFactors = s.criticalFactors(ctx, machineID, now)
	s.mu.Lock()
	s.estimates[machineID] = est
	s.mu.Unlock()

	if s.bus != nil {
		evt := events.EstimateUpdated{Estimate: est, OccurredAt: now}
		if err := s.bus.Publish(ctx, evt); err != nil {
			s.logger.Printf("rul: publish estimate %s: %v", machineID, err)
		}
	}
	return est, nil
}

// Estimate returns the cached estimate for a machine.
func (s *Service) Estimate(machineID string) (rul.Estimate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	est, ok := s.estimates[machineID]
	return est, ok
}

// List returns all cached estimates ordered by remaining days ascending, so
// the machines closest to failure come first.
func (s *Service) List() []rul.Estimate {
	s.mu.RLock()
	out := make([]rul.Estimate, 0, len(s.estimates))
	for _, est := range s.estimates {
		out = append(out, est)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].RemainingDays != out[j].RemainingDays {
			return out[i].RemainingDays < out[j].RemainingDays
		}
		return out[i].MachineID < out[j].MachineID
	})
	return out
}

// criticalFactors ranks sensors by recent average against the calibrated
// baseline. Missing baselines or recent history yield no factors.
func (s *Service) criticalFactors(ctx context.Context, machineID string, now time.Time) []rul.CriticalFactor {
	if s.baselines == nil {
		return nil
	}
	baseVib, baseTemp, ok := s.baselines.Baselines(machineID)
	if !ok {
		return nil
	}
	recent, err := s.history.Averages(ctx, machineID, now.Add(-time.Hour))
	if err != nil {
		s.logger.Printf("rul: recent averages %s: %v", machineID, err)
		return nil
	}
	if recent == nil || recent.Samples == 0 {
		return nil
	}
	return rul.RankFactors(recent.Vibration, recent.Temperature, baseVib, baseTemp)
}

// hourlyHealth downsamples scored readings into hourly mean health points so
// the fit stays cheap regardless of ingest rate.
func hourlyHealth(readings []telemetry.ScoredReading) []rul.Point {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[time.Time]*bucket)
	for _, r := range readings {
		hour := r.Timestamp.UTC().Truncate(time.Hour)
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{}
			buckets[hour] = b
		}
		b.sum += r.Score * 100
		b.count++
	}
	points := make([]rul.Point, 0, len(buckets))
	for hour, b := range buckets {
		points = append(points, rul.Point{At: hour, Health: b.sum / float64(b.count)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })
	return points
}

package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/eventing"
	scoring "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/scoring/domain"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/application/events"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

type stubRepo struct {
	mu       sync.Mutex
	inserted []telemetry.ScoredReading
	err      error
}

func (r *stubRepo) Insert(_ context.Context, scored telemetry.ScoredReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.inserted = append(r.inserted, scored)
	return nil
}

func (r *stubRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inserted)
}

type stubScorer struct {
	result scoring.Result
	err    error
}

func (s stubScorer) Score(context.Context, telemetry.Reading, *scoring.CalibrationWindow) (scoring.Result, error) {
	return s.result, s.err
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func newTestService(t *testing.T, repo *stubRepo, bus eventing.Bus, opts ...ServiceOption) *Service {
	t.Helper()
	cfg := Config{
		Defaults:      CeilingsConfig{Vibration: 100, Temperature: 100},
		WindowHorizon: scoring.DefaultWindowHorizon,
		IdleEviction:  30 * time.Minute,
	}
	logger := log.New(io.Discard, "", 0)
	svc, err := NewService(cfg, repo, bus, logger, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestHandleReadingHeuristicPath(t *testing.T) {
	repo := &stubRepo{}
	bus := eventing.NewInMemoryBus()

	var published []events.ReadingScored
	eventing.SubscribeTyped(bus, "test", nil, func(_ context.Context, evt events.ReadingScored) error {
		published = append(published, evt)
		return nil
	})

	svc := newTestService(t, repo, bus)

	scored, err := svc.HandleReading(context.Background(), telemetry.Reading{
		MachineID:   "press-1",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Vibration:   90,
		Temperature: 50,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if scored.Score != 0.10 {
		t.Fatalf("score = %v, want 0.10", scored.Score)
	}
	if scored.Status != telemetry.StatusWarning {
		t.Fatalf("status = %s, want %s", scored.Status, telemetry.StatusWarning)
	}
	if !scored.Heuristic {
		t.Fatal("expected heuristic flag without trained scorer")
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 persisted reading, got %d", len(repo.inserted))
	}
	if len(published) != 1 || published[0].Reading.MachineID != "press-1" {
		t.Fatalf("expected 1 published event, got %+v", published)
	}
}

func TestHandleReadingFallsBackOnTrainedFailure(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, eventing.NewInMemoryBus(),
		WithTrainedScorer(stubScorer{err: errors.New("model offline")}))

	scored, err := svc.HandleReading(context.Background(), telemetry.Reading{
		MachineID:   "press-1",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Vibration:   20,
		Temperature: 40,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !scored.Heuristic {
		t.Fatal("expected heuristic fallback result")
	}
	if scored.Score != 0.60 {
		t.Fatalf("score = %v, want 0.60", scored.Score)
	}
}

func TestHandleReadingPrefersTrainedPath(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, eventing.NewInMemoryBus(),
		WithTrainedScorer(stubScorer{result: scoring.Result{Score: 0.42}}))

	scored, err := svc.HandleReading(context.Background(), telemetry.Reading{
		MachineID:   "press-1",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Vibration:   20,
		Temperature: 40,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if scored.Heuristic {
		t.Fatal("trained result flagged heuristic")
	}
	if scored.Score != 0.42 {
		t.Fatalf("score = %v, want 0.42", scored.Score)
	}
}

func TestHandleReadingDropsInvalidAndOutOfOrder(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, eventing.NewInMemoryBus())

	if _, err := svc.HandleReading(context.Background(), telemetry.Reading{}); err == nil {
		t.Fatal("expected validation error for empty reading")
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := svc.HandleReading(context.Background(), telemetry.Reading{
		MachineID: "press-1", Timestamp: base, Vibration: 10, Temperature: 40,
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	_, err := svc.HandleReading(context.Background(), telemetry.Reading{
		MachineID: "press-1", Timestamp: base.Add(-time.Second), Vibration: 10, Temperature: 40,
	})
	if !errors.Is(err, scoring.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("dropped reading must not be persisted, got %d inserts", len(repo.inserted))
	}
}

func TestHandleReadingConcurrentSameMachine(t *testing.T) {
	repo := &stubRepo{}
	// No configured ceilings, so the heuristic resolves them from the live
	// calibration window on every reading.
	cfg := Config{
		WindowHorizon: scoring.DefaultWindowHorizon,
		IdleEviction:  30 * time.Minute,
	}
	svc, err := NewService(cfg, repo, eventing.NewInMemoryBus(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	const workers = 8
	const perWorker = 200
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var seq, accepted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ts := base.Add(time.Duration(seq.Add(1)) * time.Millisecond)
				_, err := svc.HandleReading(context.Background(), telemetry.Reading{
					MachineID: "press-1", Timestamp: ts, Vibration: 10, Temperature: 40,
				})
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, scoring.ErrOutOfOrder):
					// interleaved timestamps may land late, which is a drop,
					// not a failure
				default:
					t.Errorf("handle: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if accepted.Load() == 0 {
		t.Fatal("no readings accepted")
	}
	if got := repo.count(); got != int(accepted.Load()) {
		t.Fatalf("persisted %d readings, accepted %d", got, accepted.Load())
	}
}

func TestHandleReadingLogsInvalidDrop(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Defaults:      CeilingsConfig{Vibration: 100, Temperature: 100},
		WindowHorizon: scoring.DefaultWindowHorizon,
		IdleEviction:  30 * time.Minute,
	}
	svc, err := NewService(cfg, &stubRepo{}, eventing.NewInMemoryBus(), log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.HandleReading(context.Background(), telemetry.Reading{}); err == nil {
		t.Fatal("expected validation error for empty reading")
	}
	if !strings.Contains(buf.String(), "dropped invalid reading") {
		t.Fatalf("invalid drop not logged, log output: %q", buf.String())
	}
}

func TestSweepEvictsIdleMachines(t *testing.T) {
	repo := &stubRepo{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, repo, eventing.NewInMemoryBus(), WithClock(fixedClock{at: base}))

	if _, err := svc.HandleReading(context.Background(), telemetry.Reading{
		MachineID: "press-1", Timestamp: base, Vibration: 10, Temperature: 40,
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := len(svc.ActiveMachines()); got != 1 {
		t.Fatalf("expected 1 active machine, got %d", got)
	}

	if evicted := svc.Sweep(base.Add(10 * time.Minute)); evicted != 0 {
		t.Fatalf("evicted fresh machine, count=%d", evicted)
	}
	if evicted := svc.Sweep(base.Add(31 * time.Minute)); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if got := len(svc.ActiveMachines()); got != 0 {
		t.Fatalf("expected no active machines, got %d", got)
	}
}

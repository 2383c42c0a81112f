package application

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	rul "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/domain"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

type stubHistory struct {
	byMachine map[string][]telemetry.ScoredReading
	averages  map[string]*telemetry.SensorAverages
}

func (h *stubHistory) Latest(_ context.Context, machineID string) (*telemetry.ScoredReading, error) {
	readings := h.byMachine[machineID]
	if len(readings) == 0 {
		return nil, nil
	}
	latest := readings[len(readings)-1]
	return &latest, nil
}

func (h *stubHistory) LastN(_ context.Context, machineID string, n int) ([]telemetry.ScoredReading, error) {
	readings := h.byMachine[machineID]
	if len(readings) > n {
		readings = readings[len(readings)-n:]
	}
	return readings, nil
}

func (h *stubHistory) Range(_ context.Context, machineID string, from, to time.Time) ([]telemetry.ScoredReading, error) {
	var out []telemetry.ScoredReading
	for _, r := range h.byMachine[machineID] {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *stubHistory) Averages(_ context.Context, machineID string, _ time.Time) (*telemetry.SensorAverages, error) {
	return h.averages[machineID], nil
}

func (h *stubHistory) Stats(context.Context, string, time.Time) (*telemetry.DailyStats, error) {
	return nil, nil
}

func (h *stubHistory) MachineIDs(context.Context, time.Time) ([]string, error) {
	ids := make([]string, 0, len(h.byMachine))
	for id := range h.byMachine {
		ids = append(ids, id)
	}
	return ids, nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

// degradingReadings emits one reading per hour losing rate health points per
// day, starting from a perfect score.
func degradingReadings(machineID string, start time.Time, days int, ratePerDay float64) []telemetry.ScoredReading {
	var out []telemetry.ScoredReading
	for h := 0; h <= days*24; h++ {
		elapsedDays := float64(h) / 24
		score := (100 - ratePerDay*elapsedDays) / 100
		out = append(out, telemetry.ScoredReading{
			MachineID: machineID,
			Timestamp: start.Add(time.Duration(h) * time.Hour),
			Score:     score,
			Status:    telemetry.ClassifyScore(score),
		})
	}
	return out
}

func TestRecomputeFitsDegradationTrend(t *testing.T) {
	start := time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 10)
	history := &stubHistory{byMachine: map[string][]telemetry.ScoredReading{
		"press-1": degradingReadings("press-1", start, 10, 3),
	}}

	svc, err := NewService(history, log.New(io.Discard, "", 0), WithClock(fixedClock{at: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	est, err := svc.Recompute(context.Background(), "press-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !est.Degrading {
		t.Fatal("expected degrading trend")
	}
	if math.Abs(est.RatePerDay-3) > 0.05 {
		t.Fatalf("rate = %v, want ~3", est.RatePerDay)
	}
	if math.Abs(est.RemainingDays-70.0/3.0) > 0.5 {
		t.Fatalf("remaining = %v, want ~23.3", est.RemainingDays)
	}
	if est.Confidence != rul.ConfidenceHigh {
		t.Fatalf("confidence = %s, want %s for a clean hourly trend", est.Confidence, rul.ConfidenceHigh)
	}

	cached, ok := svc.Estimate("press-1")
	if !ok || cached.MachineID != "press-1" {
		t.Fatalf("estimate not cached: %+v", cached)
	}
}

func TestRecomputeAllOrdersWorstFirst(t *testing.T) {
	start := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 4)
	history := &stubHistory{byMachine: map[string][]telemetry.ScoredReading{
		"slow": degradingReadings("slow", start, 4, 1),
		"fast": degradingReadings("fast", start, 4, 15),
	}}

	svc, err := NewService(history, log.New(io.Discard, "", 0), WithClock(fixedClock{at: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.RecomputeAll(context.Background())

	list := svc.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 estimates, got %d", len(list))
	}
	if list[0].MachineID != "fast" {
		t.Fatalf("worst machine must come first, got %s", list[0].MachineID)
	}
	if list[0].RemainingDays > list[1].RemainingDays {
		t.Fatalf("list not sorted by remaining days: %v > %v", list[0].RemainingDays, list[1].RemainingDays)
	}
}

type stubBaselines struct {
	vibration   float64
	temperature float64
	ok          bool
}

func (s stubBaselines) Baselines(string) (float64, float64, bool) {
	return s.vibration, s.temperature, s.ok
}

func TestRecomputeRanksCriticalFactors(t *testing.T) {
	start := time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 10)
	history := &stubHistory{
		byMachine: map[string][]telemetry.ScoredReading{
			"press-1": degradingReadings("press-1", start, 10, 3),
		},
		averages: map[string]*telemetry.SensorAverages{
			"press-1": {Vibration: 40, Temperature: 90, Samples: 60},
		},
	}

	svc, err := NewService(history, log.New(io.Discard, "", 0),
		WithClock(fixedClock{at: now}),
		WithBaselines(stubBaselines{vibration: 20, temperature: 45, ok: true}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	est, err := svc.Recompute(context.Background(), "press-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if len(est.CriticalFactors) != 2 {
		t.Fatalf("expected 2 critical factors, got %+v", est.CriticalFactors)
	}
	if est.CriticalFactors[0].Sensor != "vibration" && est.CriticalFactors[0].Sensor != "temperature" {
		t.Fatalf("unexpected factor: %+v", est.CriticalFactors[0])
	}
	if est.CriticalFactors[0].Ratio < est.CriticalFactors[1].Ratio {
		t.Fatalf("factors not ranked worst first: %+v", est.CriticalFactors)
	}

	// without a baseline source the estimate carries no factors
	plain, err := NewService(history, log.New(io.Discard, "", 0), WithClock(fixedClock{at: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	est, err = plain.Recompute(context.Background(), "press-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if len(est.CriticalFactors) != 0 {
		t.Fatalf("expected no factors without baselines, got %+v", est.CriticalFactors)
	}
}

func TestRecomputeInsufficientHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	history := &stubHistory{byMachine: map[string][]telemetry.ScoredReading{
		"press-1": {{
			MachineID: "press-1",
			Timestamp: now.Add(-time.Minute),
			Score:     0.9,
			Status:    telemetry.StatusNormal,
		}},
	}}
	svc, err := NewService(history, log.New(io.Discard, "", 0), WithClock(fixedClock{at: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Recompute(context.Background(), "press-1"); !errors.Is(err, rul.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
	if _, ok := svc.Estimate("press-1"); ok {
		t.Fatal("failed fit must not be cached")
	}
}

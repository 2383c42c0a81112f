package application

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	tasks "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/domain"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

type stubHistory struct {
	byMachine map[string][]telemetry.ScoredReading
}

func (h *stubHistory) Latest(context.Context, string) (*telemetry.ScoredReading, error) {
	return nil, nil
}

func (h *stubHistory) LastN(_ context.Context, machineID string, n int) ([]telemetry.ScoredReading, error) {
	return h.byMachine[machineID], nil
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

func (h *stubHistory) Averages(context.Context, string, time.Time) (*telemetry.SensorAverages, error) {
	return nil, nil
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

type stubTasks struct {
	list []tasks.MaintenanceTask
}

func (s *stubTasks) ListSince(context.Context, time.Time) ([]tasks.MaintenanceTask, error) {
	return s.list, nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func anomaly(machineID string, at time.Time, vib, temp float64) telemetry.ScoredReading {
	return telemetry.ScoredReading{
		MachineID:   machineID,
		Timestamp:   at,
		Vibration:   vib,
		Temperature: temp,
		Score:       0.05,
		Status:      telemetry.StatusAnomaly,
	}
}

func normal(machineID string, at time.Time) telemetry.ScoredReading {
	return telemetry.ScoredReading{
		MachineID: machineID,
		Timestamp: at,
		Score:     0.9,
		Status:    telemetry.StatusNormal,
	}
}

func TestAnomaliesGroupsByCause(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	history := &stubHistory{byMachine: map[string][]telemetry.ScoredReading{
		"press-1": {
			anomaly("press-1", recent, 95, 40),
			anomaly("press-1", recent.Add(time.Minute), 90, 45),
			anomaly("press-1", recent.Add(2*time.Minute), 30, 98),
			normal("press-1", recent.Add(3*time.Minute)),
		},
	}}

	svc, err := NewService(history, nil, log.New(io.Discard, "", 0), WithClock(fixedClock{at: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	analysis, err := svc.Anomalies(context.Background(), 7, "press-1")
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	if analysis.Total != 3 {
		t.Fatalf("total = %d, want 3 (normal readings excluded)", analysis.Total)
	}
	if analysis.Entries[0].Factor != CauseExcessVibration || analysis.Entries[0].Count != 2 {
		t.Fatalf("top entry = %+v, want excess vibration x2", analysis.Entries[0])
	}
	if analysis.Entries[1].Factor != CauseOverheating || analysis.Entries[1].Count != 1 {
		t.Fatalf("second entry = %+v, want overheating x1", analysis.Entries[1])
	}
}

func TestAnomaliesHonorsWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := &stubHistory{byMachine: map[string][]telemetry.ScoredReading{
		"press-1": {
			anomaly("press-1", now.AddDate(0, 0, -10), 95, 40),
			anomaly("press-1", now.AddDate(0, 0, -2), 95, 40),
		},
	}}
	svc, err := NewService(history, nil, log.New(io.Discard, "", 0), WithClock(fixedClock{at: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	week, err := svc.Anomalies(context.Background(), 7, "")
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	if week.Total != 1 {
		t.Fatalf("7-day total = %d, want 1", week.Total)
	}

	month, err := svc.Anomalies(context.Background(), 30, "")
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	if month.Total != 2 {
		t.Fatalf("30-day total = %d, want 2", month.Total)
	}
}

func TestAnomaliesRejectsUnsupportedWindow(t *testing.T) {
	svc, err := NewService(&stubHistory{}, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Anomalies(context.Background(), 13, ""); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestMaintenanceSumsCostPerCategory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	source := &stubTasks{list: []tasks.MaintenanceTask{
		{Category: "bearing replacement", CostEstimate: 500},
		{Category: "bearing replacement", CostEstimate: 300},
		{Category: "lubrication", CostEstimate: 50},
		{AIDetectedCause: "overheating"},
	}}
	svc, err := NewService(&stubHistory{}, source, log.New(io.Discard, "", 0), WithClock(fixedClock{at: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	analysis, err := svc.Maintenance(context.Background(), 30)
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if analysis.Entries[0].Factor != "bearing replacement" || analysis.Entries[0].CostEstimate != 800 {
		t.Fatalf("top entry = %+v, want bearing replacement cost 800", analysis.Entries[0])
	}
	if analysis.Total != 4 {
		t.Fatalf("total = %d, want 4", analysis.Total)
	}
}

func TestMaintenanceWithoutSource(t *testing.T) {
	svc, err := NewService(&stubHistory{}, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Maintenance(context.Background(), 7); err == nil {
		t.Fatal("expected error without a task source")
	}
}

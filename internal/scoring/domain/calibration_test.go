package scoring

import (
	"errors"
	"testing"
	"time"

	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

func reading(at time.Time, vib, temp float64) telemetry.Reading {
	return telemetry.Reading{
		MachineID:   "press-1",
		Timestamp:   at,
		Vibration:   vib,
		Temperature: temp,
	}
}

func TestCalibrationWindowRejectsOutOfOrder(t *testing.T) {
	w := NewCalibrationWindow(time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := w.Append(reading(base, 10, 40)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(reading(base.Add(time.Second), 11, 41)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(reading(base, 9, 39)); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for stale reading, got %v", err)
	}
	if err := w.Append(reading(base.Add(time.Second), 9, 39)); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for duplicate timestamp, got %v", err)
	}
	if w.Len() != 2 {
		t.Fatalf("rejected readings must not be retained, len=%d", w.Len())
	}
}

func TestCalibrationWindowEvictsPastHorizon(t *testing.T) {
	w := NewCalibrationWindow(time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		if err := w.Append(reading(base.Add(time.Duration(i)*time.Minute), 10, 40)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	// every earlier sample is more than an hour older than this one
	if err := w.Append(reading(base.Add(90*time.Minute), 12, 42)); err != nil {
		t.Fatalf("append late: %v", err)
	}
	if w.Len() != 1 {
		t.Fatalf("expected only the newest sample retained, got %d", w.Len())
	}
	if w.LastAt() != base.Add(90*time.Minute) {
		t.Fatalf("LastAt mismatch: %v", w.LastAt())
	}
}

func TestCalibrationWindowCeilingsNeedEnoughSamples(t *testing.T) {
	w := NewCalibrationWindow(DefaultWindowHorizon)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < minCalibrationSamples-1; i++ {
		if err := w.Append(reading(base.Add(time.Duration(i)*time.Second), 10, 40)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, ok := w.Ceilings(); ok {
		t.Fatal("ceilings available below minimum sample count")
	}

	if err := w.Append(reading(base.Add(time.Duration(minCalibrationSamples)*time.Second), 20, 80)); err != nil {
		t.Fatalf("append: %v", err)
	}
	c, ok := w.Ceilings()
	if !ok {
		t.Fatal("ceilings unavailable at minimum sample count")
	}
	if !c.Valid() {
		t.Fatalf("derived ceilings invalid: %+v", c)
	}
}

func TestCalibrationWindowCeilingsAreP95(t *testing.T) {
	w := NewCalibrationWindow(DefaultWindowHorizon)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// vibration 1..100, temperature 101..200
	for i := 1; i <= 100; i++ {
		if err := w.Append(reading(base.Add(time.Duration(i)*time.Second), float64(i), float64(100+i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	c, ok := w.Ceilings()
	if !ok {
		t.Fatal("ceilings unavailable")
	}
	if c.Vibration != 95 {
		t.Fatalf("vibration P95 = %v, want 95", c.Vibration)
	}
	if c.Temperature != 195 {
		t.Fatalf("temperature P95 = %v, want 195", c.Temperature)
	}
}

func TestCalibrationWindowBaselines(t *testing.T) {
	w := NewCalibrationWindow(DefaultWindowHorizon)
	if _, _, ok := w.Baselines(); ok {
		t.Fatal("baselines from empty window")
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := w.Append(reading(base, 10, 40)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(reading(base.Add(time.Second), 20, 60)); err != nil {
		t.Fatalf("append: %v", err)
	}
	vib, temp, ok := w.Baselines()
	if !ok {
		t.Fatal("baselines unavailable")
	}
	if vib != 15 || temp != 50 {
		t.Fatalf("baselines = (%v, %v), want (15, 50)", vib, temp)
	}
}

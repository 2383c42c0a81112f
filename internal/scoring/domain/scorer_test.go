package scoring

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

type stubEstimator struct {
	raw float64
	err error
}

func (s stubEstimator) DecisionValue(context.Context, []float64) (float64, error) {
	return s.raw, s.err
}

func TestHeuristicScorerWithDefaultCeilings(t *testing.T) {
	scorer := NewHeuristicScorer(Ceilings{})

	tests := []struct {
		name       string
		vib, temp  float64
		wantScore  float64
		wantStatus telemetry.Status
	}{
		{"healthy", 10, 30, 0.90, telemetry.StatusNormal},
		{"near ceiling vibration", 90, 50, 0.10, telemetry.StatusWarning},
		{"at ceiling", 100, 100, 0, telemetry.StatusAnomaly},
		{"above ceiling clamps", 150, 40, 0, telemetry.StatusAnomaly},
		{"temperature dominates", 20, 95, 0.05, telemetry.StatusAnomaly},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := scorer.Score(context.Background(), telemetry.Reading{
				MachineID:   "press-1",
				Timestamp:   time.Now(),
				Vibration:   tc.vib,
				Temperature: tc.temp,
			}, nil)
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			if !res.Heuristic {
				t.Fatal("heuristic result must be flagged")
			}
			if math.Abs(res.Score-tc.wantScore) > 1e-9 {
				t.Fatalf("score = %v, want %v", res.Score, tc.wantScore)
			}
			if got := telemetry.ClassifyScore(res.Score); got != tc.wantStatus {
				t.Fatalf("status = %s, want %s", got, tc.wantStatus)
			}
		})
	}
}

func TestHeuristicScorerCeilingPrecedence(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := NewCalibrationWindow(DefaultWindowHorizon)
	for i := 0; i < minCalibrationSamples+10; i++ {
		err := window.Append(telemetry.Reading{
			MachineID:   "press-1",
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Vibration:   50,
			Temperature: 80,
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	configured := NewHeuristicScorer(Ceilings{Vibration: 200, Temperature: 120})
	if c := configured.EffectiveCeilings(window); c.Vibration != 200 || c.Temperature != 120 {
		t.Fatalf("configured ceilings must win, got %+v", c)
	}

	adaptive := NewHeuristicScorer(Ceilings{})
	if c := adaptive.EffectiveCeilings(window); c.Vibration != 50 || c.Temperature != 80 {
		t.Fatalf("window ceilings expected, got %+v", c)
	}

	thin := NewCalibrationWindow(DefaultWindowHorizon)
	if c := adaptive.EffectiveCeilings(thin); c.Vibration != FallbackMaxVibration || c.Temperature != FallbackMaxTemperature {
		t.Fatalf("fallback ceilings expected for thin window, got %+v", c)
	}
}

func TestTrainedScorerNormalization(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want float64
	}{
		{"strong outlier clamps to zero", -0.8, 0},
		{"boundary outlier", -0.5, 0},
		{"mid decision value", -0.25, 0.5},
		{"neutral", 0, 1},
		{"strong inlier clamps to one", 0.4, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scorer, err := NewTrainedScorer(stubEstimator{raw: tc.raw})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			res, err := scorer.Score(context.Background(), telemetry.Reading{
				MachineID:   "press-1",
				Timestamp:   time.Now(),
				Vibration:   10,
				Temperature: 40,
			}, nil)
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			if res.Heuristic {
				t.Fatal("trained result must not be flagged heuristic")
			}
			if math.Abs(res.Score-tc.want) > 1e-9 {
				t.Fatalf("score = %v, want %v", res.Score, tc.want)
			}
		})
	}
}

func TestTrainedScorerPropagatesEstimatorError(t *testing.T) {
	wantErr := errors.New("model offline")
	scorer, err := NewTrainedScorer(stubEstimator{err: wantErr})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = scorer.Score(context.Background(), telemetry.Reading{
		MachineID: "press-1", Timestamp: time.Now(), Vibration: 1, Temperature: 1,
	}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected estimator error, got %v", err)
	}
}

func TestNewTrainedScorerRequiresEstimator(t *testing.T) {
	if _, err := NewTrainedScorer(nil); err == nil {
		t.Fatal("expected error for nil estimator")
	}
}

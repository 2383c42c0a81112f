package scoring

import (
	"context"
	"errors"

	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// Hardcoded safe ceilings used when neither configuration nor calibration can
// provide a usable envelope.
const (
	FallbackMaxVibration   = 100.0
	FallbackMaxTemperature = 100.0
)

// ErrEstimatorUnavailable signals that the trained model path cannot serve and
// the caller should fall back to the heuristic.
var ErrEstimatorUnavailable = errors.New("scoring: estimator unavailable")

// Result is one normalized score plus the path that produced it.
type Result struct {
	Score     float64
	Heuristic bool
}

// Scorer turns a raw reading into a normalized [0,1] health score. The window
// is the machine's calibration state; implementations must not mutate it.
type Scorer interface {
	Score(ctx context.Context, r telemetry.Reading, window *CalibrationWindow) (Result, error)
}

// Estimator is a trained outlier-detection model. DecisionValue returns the
// raw decision function output where lower means more anomalous.
type Estimator interface {
	DecisionValue(ctx context.Context, features []float64) (float64, error)
}

// TrainedScorer scores with a trained estimator, normalizing the raw decision
// value through a fixed affine map: strong outliers go toward 0, inliers
// toward 1.
type TrainedScorer struct {
	estimator Estimator
}

// NewTrainedScorer constructs a scorer over an estimator.
func NewTrainedScorer(estimator Estimator) (*TrainedScorer, error) {
	if estimator == nil {
		return nil, errors.New("scoring: nil estimator")
	}
	return &TrainedScorer{estimator: estimator}, nil
}

// Score feeds the {vibration, temperature} feature vector to the estimator.
func (s *TrainedScorer) Score(ctx context.Context, r telemetry.Reading, _ *CalibrationWindow) (Result, error) {
	raw, err := s.estimator.DecisionValue(ctx, []float64{r.Vibration, r.Temperature})
	if err != nil {
		return Result{}, err
	}
	// Isolation-forest style decision values sit roughly in [-0.5, 0.5].
	return Result{Score: clamp01((raw + 0.5) * 2)}, nil
}

// HeuristicScorer is the self-calibrating fallback:
// score = 1 - max(vibration/maxVibration, temperature/maxTemperature).
// Ceilings come from operator configuration when set, otherwise from the
// calibration window's observed envelope, otherwise from hardcoded defaults.
type HeuristicScorer struct {
	configured Ceilings
	defaults   Ceilings
}

// NewHeuristicScorer constructs the fallback scorer. Zero or negative
// configured ceilings are treated as unset.
func NewHeuristicScorer(configured Ceilings) *HeuristicScorer {
	return &HeuristicScorer{
		configured: configured,
		defaults:   Ceilings{Vibration: FallbackMaxVibration, Temperature: FallbackMaxTemperature},
	}
}

// Score computes the calibrated fallback score.
func (s *HeuristicScorer) Score(_ context.Context, r telemetry.Reading, window *CalibrationWindow) (Result, error) {
	ceilings := s.EffectiveCeilings(window)
	ratio := r.Vibration / ceilings.Vibration
	if t := r.Temperature / ceilings.Temperature; t > ratio {
		ratio = t
	}
	return Result{Score: clamp01(1 - ratio), Heuristic: true}, nil
}

// EffectiveCeilings resolves the normalization envelope in priority order:
// operator configuration, calibration window, hardcoded defaults.
func (s *HeuristicScorer) EffectiveCeilings(window *CalibrationWindow) Ceilings {
	if s.configured.Valid() {
		return s.configured
	}
	if window != nil {
		if observed, ok := window.Ceilings(); ok && observed.Valid() {
			return observed
		}
	}
	return s.defaults
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package scoring

import (
	"errors"
	"sort"
	"time"

	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// DefaultWindowHorizon is the age span kept per machine for self-calibration.
const DefaultWindowHorizon = 2 * time.Hour

// minCalibrationSamples gates the adaptive ceilings: below this the window is
// too thin to trust and configured defaults apply.
const minCalibrationSamples = 30

// ErrOutOfOrder is returned for readings older than the newest window entry.
var ErrOutOfOrder = errors.New("scoring: out-of-order reading")

// Ceilings are the normalization maxima for the heuristic scorer.
type Ceilings struct {
	Vibration   float64
	Temperature float64
}

// Valid reports whether both ceilings are usable divisors.
func (c Ceilings) Valid() bool {
	return c.Vibration > 0 && c.Temperature > 0
}

type sample struct {
	at          time.Time
	vibration   float64
	temperature float64
}

// CalibrationWindow is a per-machine rolling buffer of recent readings used to
// derive adaptive normalization ceilings. Entries are strictly ordered by
// timestamp and evicted once older than the horizon. The window is owned by a
// single machine pipeline and is not safe for concurrent use.
type CalibrationWindow struct {
	horizon time.Duration
	samples []sample
}

// NewCalibrationWindow constructs a window with the given horizon.
func NewCalibrationWindow(horizon time.Duration) *CalibrationWindow {
	if horizon <= 0 {
		horizon = DefaultWindowHorizon
	}
	return &CalibrationWindow{horizon: horizon}
}

// Append records a reading and evicts entries past the horizon. Readings not
// newer than the latest entry are rejected to keep the buffer ordered.
func (w *CalibrationWindow) Append(r telemetry.Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if n := len(w.samples); n > 0 && !r.Timestamp.After(w.samples[n-1].at) {
		return ErrOutOfOrder
	}
	w.samples = append(w.samples, sample{
		at:          r.Timestamp,
		vibration:   r.Vibration,
		temperature: r.Temperature,
	})
	w.evictBefore(r.Timestamp.Add(-w.horizon))
	return nil
}

func (w *CalibrationWindow) evictBefore(cutoff time.Time) {
	idx := sort.Search(len(w.samples), func(i int) bool {
		return !w.samples[i].at.Before(cutoff)
	})
	if idx > 0 {
		w.samples = append(w.samples[:0], w.samples[idx:]...)
	}
}

// Len returns the number of retained samples.
func (w *CalibrationWindow) Len() int {
	return len(w.samples)
}

// LastAt returns the newest retained timestamp.
func (w *CalibrationWindow) LastAt() time.Time {
	if len(w.samples) == 0 {
		return time.Time{}
	}
	return w.samples[len(w.samples)-1].at
}

// Ceilings derives the observed operating envelope as the 95th percentile of
// each sensor over the window. Returns ok=false when the window holds too few
// samples to calibrate from.
func (w *CalibrationWindow) Ceilings() (Ceilings, bool) {
	if len(w.samples) < minCalibrationSamples {
		return Ceilings{}, false
	}
	return Ceilings{
		Vibration:   w.percentile(func(s sample) float64 { return s.vibration }, 0.95),
		Temperature: w.percentile(func(s sample) float64 { return s.temperature }, 0.95),
	}, true
}

// Baselines returns the window means per sensor, used to rank critical
// factors in RUL estimates. ok=false mirrors Ceilings.
func (w *CalibrationWindow) Baselines() (vibration, temperature float64, ok bool) {
	if len(w.samples) == 0 {
		return 0, 0, false
	}
	for _, s := range w.samples {
		vibration += s.vibration
		temperature += s.temperature
	}
	n := float64(len(w.samples))
	return vibration / n, temperature / n, true
}

func (w *CalibrationWindow) percentile(pick func(sample) float64, p float64) float64 {
	values := make([]float64, len(w.samples))
	for i, s := range w.samples {
		values[i] = pick(s)
	}
	sort.Float64s(values)
	if len(values) == 0 {
		return 0
	}
	rank := int(p * float64(len(values)-1))
	return values[rank]
}

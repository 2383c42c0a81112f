package rul

import (
	"errors"
	"math"
	"sort"
	"time"
)

// Urgency ranks how soon a predicted failure needs attention.
type Urgency string

const (
	UrgencyImmediate Urgency = "IMMEDIATE"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyLow       Urgency = "LOW"
)

// Confidence qualifies how much the trend fit can be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

const (
	// MinTrendSamples is the floor below which no estimate is produced.
	MinTrendSamples = 2

	// lowConfidenceSamples gates confidence regardless of fit quality.
	lowConfidenceSamples = 20

	// MaxHorizonDays caps the projection; beyond this the trend is noise.
	MaxHorizonDays = 365.0

	// MinHorizonDays floors the projection for machines still above zero.
	MinHorizonDays = 1.0

	// minRatePerDay is the degradation slope below which the trend counts
	// as flat.
	minRatePerDay = 1e-3
)

// ErrInsufficientHistory is returned when too few points exist to fit.
var ErrInsufficientHistory = errors.New("rul: insufficient history")

// Point is one health observation on the degradation timeline.
type Point struct {
	At     time.Time
	Health float64
}

// CriticalFactor names a sensor dimension and how far its recent average sits
// from the calibrated baseline.
type CriticalFactor struct {
	Sensor string  `json:"sensor"`
	Ratio  float64 `json:"ratio"`
}

// Estimate is the remaining-useful-life projection for one machine.
type Estimate struct {
	MachineID        string           `json:"machine_id"`
	Health           float64          `json:"health_score"`
	RatePerDay       float64          `json:"degradation_rate_per_day"`
	Degrading        bool             `json:"degrading"`
	RemainingDays    float64          `json:"remaining_days"`
	PredictedFailure time.Time        `json:"predicted_failure"`
	Urgency          Urgency          `json:"urgency"`
	Confidence       Confidence       `json:"confidence"`
	CriticalFactors  []CriticalFactor `json:"critical_factors,omitempty"`
	Samples          int              `json:"samples"`
	FitQuality       float64          `json:"fit_quality"`
	ComputedAt       time.Time        `json:"computed_at"`
}

// RankFactors orders sensor dimensions by recent-average over baseline,
// worst first. Dimensions without a positive baseline are skipped.
func RankFactors(recentVibration, recentTemperature, baseVibration, baseTemperature float64) []CriticalFactor {
	var factors []CriticalFactor
	if baseVibration > 0 {
		factors = append(factors, CriticalFactor{Sensor: "vibration", Ratio: recentVibration / baseVibration})
	}
	if baseTemperature > 0 {
		factors = append(factors, CriticalFactor{Sensor: "temperature", Ratio: recentTemperature / baseTemperature})
	}
	sort.Slice(factors, func(i, j int) bool {
		if factors[i].Ratio != factors[j].Ratio {
			return factors[i].Ratio > factors[j].Ratio
		}
		return factors[i].Sensor < factors[j].Sensor
	})
	return factors
}

// UrgencyForDays buckets the remaining horizon.
func UrgencyForDays(days float64) Urgency {
	switch {
	case days <= 3:
		return UrgencyImmediate
	case days <= 7:
		return UrgencyHigh
	case days <= 14:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Fit projects remaining useful life from a health timeline using a least
// squares trend. Flat or improving machines report the full horizon at LOW
// urgency; degrading machines get health divided by the daily loss rate,
// clamped to [MinHorizonDays, MaxHorizonDays].
func Fit(machineID string, points []Point, at time.Time) (Estimate, error) {
	if machineID == "" {
		return Estimate{}, errors.New("rul: machine id required")
	}
	if len(points) < MinTrendSamples {
		return Estimate{}, ErrInsufficientHistory
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })
	if !sorted[len(sorted)-1].At.After(sorted[0].At) {
		return Estimate{}, ErrInsufficientHistory
	}

	slope, intercept, r2 := linearFit(sorted)
	latest := sorted[len(sorted)-1]
	elapsed := latest.At.Sub(sorted[0].At).Hours() / 24
	current := intercept + slope*elapsed
	if current < 0 {
		current = 0
	}
	if current > 100 {
		current = 100
	}

	est := Estimate{
		MachineID:  machineID,
		Health:     current,
		RatePerDay: -slope,
		Samples:    len(sorted),
		FitQuality: r2,
		ComputedAt: at.UTC(),
	}

	if slope >= -minRatePerDay {
		// flat or improving trend: nothing to project
		est.Degrading = false
		est.RatePerDay = 0
		est.RemainingDays = MaxHorizonDays
		est.Urgency = UrgencyLow
		est.Confidence = confidenceFor(len(sorted), r2)
		est.PredictedFailure = at.UTC().Add(time.Duration(MaxHorizonDays * 24 * float64(time.Hour)))
		return est, nil
	}

	remaining := current / (-slope)
	if remaining < MinHorizonDays {
		remaining = MinHorizonDays
	}
	if remaining > MaxHorizonDays {
		remaining = MaxHorizonDays
	}

	est.Degrading = true
	est.RemainingDays = remaining
	est.Urgency = UrgencyForDays(remaining)
	est.Confidence = confidenceFor(len(sorted), r2)
	est.PredictedFailure = at.UTC().Add(time.Duration(remaining * 24 * float64(time.Hour)))
	return est, nil
}

// linearFit returns slope (health per day), intercept at the first point and
// the coefficient of determination.
func linearFit(points []Point) (slope, intercept, r2 float64) {
	origin := points[0].At
	n := float64(len(points))

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := p.At.Sub(origin).Hours() / 24
		sumX += x
		sumY += p.Health
		sumXY += x * p.Health
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for _, p := range points {
		x := p.At.Sub(origin).Hours() / 24
		predicted := intercept + slope*x
		ssRes += (p.Health - predicted) * (p.Health - predicted)
		ssTot += (p.Health - meanY) * (p.Health - meanY)
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	r2 = 1 - ssRes/ssTot
	if math.IsNaN(r2) || r2 < 0 {
		r2 = 0
	}
	return slope, intercept, r2
}

func confidenceFor(samples int, r2 float64) Confidence {
	if samples < lowConfidenceSamples || r2 < 0.5 {
		return ConfidenceLow
	}
	if r2 < 0.8 {
		return ConfidenceMedium
	}
	return ConfidenceHigh
}

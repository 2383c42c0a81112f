package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestClassifyScorePartitionsUnitInterval(t *testing.T) {
	tests := []struct {
		score float64
		want  Status
	}{
		{0, StatusAnomaly},
		{0.05, StatusAnomaly},
		{0.0999, StatusAnomaly},
		{0.10, StatusWarning},
		{0.2, StatusWarning},
		{0.2999, StatusWarning},
		{0.30, StatusNormal},
		{0.9, StatusNormal},
		{1, StatusNormal},
	}
	for _, tt := range tests {
		if got := ClassifyScore(tt.score); got != tt.want {
			t.Errorf("ClassifyScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestReadingValidate(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	hum := 55.0
	badHum := math.NaN()

	valid := Reading{MachineID: "press-001", Timestamp: now, Vibration: 40, Temperature: 60, Humidity: &hum}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid reading rejected: %v", err)
	}

	tests := []struct {
		name    string
		reading Reading
	}{
		{"missing machine id", Reading{Timestamp: now, Vibration: 40, Temperature: 60}},
		{"zero timestamp", Reading{MachineID: "press-001", Vibration: 40, Temperature: 60}},
		{"nan vibration", Reading{MachineID: "press-001", Timestamp: now, Vibration: math.NaN(), Temperature: 60}},
		{"negative temperature", Reading{MachineID: "press-001", Timestamp: now, Vibration: 40, Temperature: -1}},
		{"inf vibration", Reading{MachineID: "press-001", Timestamp: now, Vibration: math.Inf(1), Temperature: 60}},
		{"nan humidity", Reading{MachineID: "press-001", Timestamp: now, Vibration: 40, Temperature: 60, Humidity: &badHum}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.reading.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

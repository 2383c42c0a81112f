package application

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	scoring "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/scoring/domain"
)

// CeilingsConfig defines normalization maxima for the fallback scorer.
type CeilingsConfig struct {
	Vibration   float64 `yaml:"vibration"`
	Temperature float64 `yaml:"temperature"`
}

// Config defines scoring pipeline configuration.
type Config struct {
	Defaults      CeilingsConfig            `yaml:"defaults"`
	Machines      map[string]CeilingsConfig `yaml:"machines"`
	WindowHorizon time.Duration             `yaml:"window_horizon"`
	IdleEviction  time.Duration             `yaml:"idle_eviction"`
	ModelURL      string                    `yaml:"model_url"`
	ModelTimeout  time.Duration             `yaml:"model_timeout"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: CeilingsConfig{
			Vibration:   getenvFloatDefault("PDM_MAX_VIBRATION", 0),
			Temperature: getenvFloatDefault("PDM_MAX_TEMPERATURE", 0),
		},
		WindowHorizon: getenvDuration("PDM_WINDOW_HORIZON", scoring.DefaultWindowHorizon),
		IdleEviction:  getenvDuration("PDM_IDLE_EVICTION", 30*time.Minute),
		ModelURL:      os.Getenv("PDM_MODEL_URL"),
		ModelTimeout:  getenvDuration("PDM_MODEL_TIMEOUT", 2*time.Second),
	}

	if path := os.Getenv("PDM_SCORING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.WindowHorizon <= 0 {
		cfg.WindowHorizon = scoring.DefaultWindowHorizon
	}
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = 30 * time.Minute
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 2 * time.Second
	}
	return cfg, nil
}

// Sanitize drops non-positive ceiling overrides and reports each one.
// A zero ceiling means "unset"; negative values are operator mistakes.
func (c *Config) Sanitize() []string {
	var warnings []string
	if c.Defaults.Vibration < 0 || c.Defaults.Temperature < 0 {
		warnings = append(warnings, fmt.Sprintf("default ceilings %v/%v not positive, ignoring", c.Defaults.Vibration, c.Defaults.Temperature))
		c.Defaults = CeilingsConfig{}
	}
	for machineID, override := range c.Machines {
		if override.Vibration < 0 || override.Temperature < 0 {
			warnings = append(warnings, fmt.Sprintf("machine %s ceilings %v/%v not positive, ignoring", machineID, override.Vibration, override.Temperature))
			delete(c.Machines, machineID)
		}
	}
	return warnings
}

// CeilingsForMachine resolves configured ceilings for a machine, preferring
// the per-machine override field by field.
func (c Config) CeilingsForMachine(machineID string) scoring.Ceilings {
	resolved := c.Defaults
	if c.Machines != nil {
		if override, ok := c.Machines[machineID]; ok {
			if override.Vibration > 0 {
				resolved.Vibration = override.Vibration
			}
			if override.Temperature > 0 {
				resolved.Temperature = override.Temperature
			}
		}
	}
	return scoring.Ceilings{Vibration: resolved.Vibration, Temperature: resolved.Temperature}
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/auth"
)

type config struct {
	baseURL      string
	secret       string
	machineCount int
	interval     time.Duration
	duration     time.Duration
	driftPerHour float64
	seed         int64
}

type machineState struct {
	id          string
	vibration   float64
	temperature float64
}

type readingPayload struct {
	MachineID   string  `json:"machine_id"`
	Timestamp   string  `json:"timestamp"`
	Vibration   float64 `json:"vibration"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

func main() {
	cfg := parseConfig()
	if cfg.machineCount <= 0 {
		log.Fatal("machines must be > 0")
	}

	rng := rand.New(rand.NewSource(cfg.seed))
	machines := make([]*machineState, 0, cfg.machineCount)
	for i := 0; i < cfg.machineCount; i++ {
		machines = append(machines, &machineState{
			id:          fmt.Sprintf("sim-machine-%03d", i+1),
			vibration:   15 + rng.Float64()*10,
			temperature: 35 + rng.Float64()*10,
		})
	}

	client := &http.Client{Timeout: 5 * time.Second}
	driftPerTick := cfg.driftPerHour * cfg.interval.Hours()
	deadline := time.Now().Add(cfg.duration)

	log.Printf("simulating %d machines at %s intervals against %s", cfg.machineCount, cfg.interval, cfg.baseURL)
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	for tick := range ticker.C {
		if cfg.duration > 0 && tick.After(deadline) {
			return
		}
		batch := make([]readingPayload, 0, len(machines))
		for _, m := range machines {
			// wear accumulates; noise keeps individual samples jittery
			m.vibration += driftPerTick + rng.NormFloat64()*0.05
			m.temperature += driftPerTick*0.6 + rng.NormFloat64()*0.05
			batch = append(batch, readingPayload{
				MachineID:   m.id,
				Timestamp:   tick.UTC().Format(time.RFC3339),
				Vibration:   clampPositive(m.vibration + rng.NormFloat64()*1.5),
				Temperature: clampPositive(m.temperature + rng.NormFloat64()*0.8),
				Humidity:    clampPositive(45 + rng.NormFloat64()*5),
			})
		}
		if err := postBatch(client, cfg, batch); err != nil {
			log.Printf("post batch: %v", err)
		}
	}
}

func postBatch(client *http.Client, cfg config, batch []readingPayload) error {
	body, err := json.Marshal(map[string]any{"readings": batch})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, cfg.baseURL+"/ingest/readings", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.secret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("X-Ingest-Timestamp", ts)
		req.Header.Set("X-Ingest-Signature", auth.ComputeIngestSignature([]byte(cfg.secret), ts, body))
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ingest returned %d", resp.StatusCode)
	}
	return nil
}

func clampPositive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.baseURL, "base-url", getenvDefault("PDM_BASE_URL", "http://localhost:8080"), "service base URL")
	flag.StringVar(&cfg.secret, "ingest-secret", os.Getenv("INGEST_HMAC_SECRET"), "shared ingest HMAC secret")
	flag.IntVar(&cfg.machineCount, "machines", 3, "number of simulated machines")
	flag.DurationVar(&cfg.interval, "interval", time.Second, "time between batches")
	flag.DurationVar(&cfg.duration, "duration", 0, "stop after this long (0 runs forever)")
	flag.Float64Var(&cfg.driftPerHour, "drift-per-hour", 0.5, "sensor wear drift per hour")
	flag.Int64Var(&cfg.seed, "seed", time.Now().UnixNano(), "random seed")
	flag.Parse()
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

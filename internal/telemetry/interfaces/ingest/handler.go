package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/observability/metrics"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// Pipeline scores and persists one validated reading.
type Pipeline interface {
	HandleReading(ctx context.Context, r telemetry.Reading) (*telemetry.ScoredReading, error)
}

// Handler ingests sensor readings, single or batched.
type Handler struct {
	pipeline Pipeline
	logger   *log.Logger
}

// NewHandler constructs an ingest handler.
func NewHandler(pipeline Pipeline, logger *log.Logger) (*Handler, error) {
	if pipeline == nil {
		return nil, errors.New("ingest: nil pipeline")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{pipeline: pipeline, logger: logger}, nil
}

type readingPayload struct {
	MachineID   string   `json:"machine_id"`
	Timestamp   string   `json:"timestamp"`
	Vibration   float64  `json:"vibration"`
	Temperature float64  `json:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty"`
}

type batchPayload struct {
	Readings []readingPayload `json:"readings"`
}

type ingestResponse struct {
	Accepted int                       `json:"accepted"`
	Dropped  int                       `json:"dropped"`
	Results  []telemetry.ScoredReading `json:"results,omitempty"`
}

// ServeHTTP ingests one reading or a batch. Malformed and out-of-order
// readings are counted as dropped without failing the request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	if r.Method != http.MethodPost {
		result = metrics.ResultError
		metrics.IncIngestError("method_not_allowed")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("ingest: read body: %v", err)
		result = metrics.ResultError
		metrics.IncIngestError("read_body")
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	payloads, err := parsePayload(body)
	if err != nil {
		h.logger.Printf("ingest: decode: %v", err)
		result = metrics.ResultError
		metrics.IncIngestError("invalid_json")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(payloads) == 0 {
		result = metrics.ResultError
		metrics.IncIngestError("empty_batch")
		http.Error(w, "empty batch", http.StatusBadRequest)
		return
	}

	resp := ingestResponse{}
	for _, payload := range payloads {
		reading, err := payload.toReading()
		if err != nil {
			resp.Dropped++
			metrics.IncDropped("invalid")
			h.logger.Printf("ingest: dropped invalid reading machine=%s: %v", payload.MachineID, err)
			continue
		}
		scored, err := h.pipeline.HandleReading(r.Context(), reading)
		if err != nil {
			resp.Dropped++
			continue
		}
		resp.Accepted++
		resp.Results = append(resp.Results, *scored)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Printf("ingest: encode response: %v", err)
	}
}

// parsePayload accepts a single reading object or a {"readings": [...]}
// batch.
func parsePayload(body []byte) ([]readingPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("ingest: empty body")
	}

	var batch batchPayload
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, err
	}
	if batch.Readings != nil {
		return batch.Readings, nil
	}

	var single readingPayload
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []readingPayload{single}, nil
}

func (p readingPayload) toReading() (telemetry.Reading, error) {
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return telemetry.Reading{}, err
	}
	reading := telemetry.Reading{
		MachineID:   p.MachineID,
		Timestamp:   ts.UTC(),
		Vibration:   p.Vibration,
		Temperature: p.Temperature,
		Humidity:    p.Humidity,
	}
	if err := reading.Validate(); err != nil {
		return telemetry.Reading{}, err
	}
	return reading, nil
}

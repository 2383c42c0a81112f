package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/eventing"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/observability/metrics"
	rulevents "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/application/events"
	rul "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/domain"
	taskevents "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/application/events"
	telemetryevents "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/application/events"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// Alert event types pushed over the stream.
const (
	EventAnomaly    = "anomaly"
	EventWarning    = "warning"
	EventTask       = "task_created"
	EventTaskStatus = "task_status"
	EventPrediction = "prediction"
)

// AlertEvent is one item on the stream.
type AlertEvent struct {
	Type       string    `json:"type"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SSEBroker fans out alert events to connected clients.
type SSEBroker struct {
	logger  *log.Logger
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker(logger *log.Logger) *SSEBroker {
	if logger == nil {
		logger = log.Default()
	}
	return &SSEBroker{logger: logger, clients: make(map[chan []byte]struct{})}
}

// Register subscribes the broker to the pipeline events worth streaming:
// non-normal readings, task lifecycle and short-horizon predictions.
func (b *SSEBroker) Register(bus eventing.Bus) {
	eventing.SubscribeTyped(bus, "alerts.readings", b.logger, func(_ context.Context, evt telemetryevents.ReadingScored) error {
		switch evt.Reading.Status {
		case telemetry.StatusAnomaly:
			b.Notify(AlertEvent{Type: EventAnomaly, Payload: evt.Reading, OccurredAt: evt.OccurredAt})
		case telemetry.StatusWarning:
			b.Notify(AlertEvent{Type: EventWarning, Payload: evt.Reading, OccurredAt: evt.OccurredAt})
		}
		return nil
	})
	eventing.SubscribeTyped(bus, "alerts.tasks", b.logger, func(_ context.Context, evt taskevents.TaskCreated) error {
		b.Notify(AlertEvent{Type: EventTask, Payload: evt.Task, OccurredAt: evt.OccurredAt})
		return nil
	})
	eventing.SubscribeTyped(bus, "alerts.taskstatus", b.logger, func(_ context.Context, evt taskevents.TaskStatusChanged) error {
		b.Notify(AlertEvent{Type: EventTaskStatus, Payload: evt.Task, OccurredAt: evt.OccurredAt})
		return nil
	})
	eventing.SubscribeTyped(bus, "alerts.rul", b.logger, func(_ context.Context, evt rulevents.EstimateUpdated) error {
		if evt.Estimate.Urgency == rul.UrgencyImmediate || evt.Estimate.Urgency == rul.UrgencyHigh {
			b.Notify(AlertEvent{Type: EventPrediction, Payload: evt.Estimate, OccurredAt: evt.OccurredAt})
		}
		return nil
	})
}

// Notify broadcasts one event to all clients. Slow clients are skipped.
func (b *SSEBroker) Notify(event AlertEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Printf("alerts: marshal event: %v", err)
		return
	}
	metrics.IncAlertEvent(event.Type)
	b.broadcast(payload)
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	metrics.AddStreamClient(1)
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.clients[ch]
	delete(b.clients, ch)
	b.mu.Unlock()
	if ok {
		metrics.AddStreamClient(-1)
		close(ch)
	}
}

func (b *SSEBroker) broadcast(payload []byte) {
	b.mu.Lock()
	clients := make([]chan []byte, 0, len(b.clients))
	for ch := range b.clients {
		clients = append(clients, ch)
	}
	b.mu.Unlock()
	for _, ch := range clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// StreamHandler serves the SSE alert stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/alerts/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: alert\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	alertshttp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/alerts/http"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

type captureChannel struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *captureChannel) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, append([]byte(nil), payload...))
	return nil
}

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

type tickingClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *tickingClock) advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func anomalyAlert(machineID string, at time.Time) alertshttp.AlertEvent {
	return alertshttp.AlertEvent{
		Type: alertshttp.EventAnomaly,
		Payload: telemetry.ScoredReading{
			MachineID: machineID,
			Timestamp: at,
			Score:     0.04,
			Status:    telemetry.StatusAnomaly,
		},
		OccurredAt: at,
	}
}

func TestWebhookChannelPostsJSON(t *testing.T) {
	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL, time.Second)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	notifier, err := NewNotifier(channel)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := notifier.Notify(context.Background(), anomalyAlert("press-1", at)); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case body := <-received:
		var event struct {
			Type    string `json:"type"`
			Payload struct {
				MachineID string `json:"machine_id"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(body, &event); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if event.Type != alertshttp.EventAnomaly || event.Payload.MachineID != "press-1" {
			t.Fatalf("unexpected webhook body: %s", body)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook not called")
	}
}

func TestWebhookChannelErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL, time.Second)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if err := channel.Send(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestNotifierCooldownPerSubject(t *testing.T) {
	channel := &captureChannel{}
	clock := &tickingClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier, err := NewNotifier(channel, WithClock(clock), WithCooldown(time.Minute))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	if err := notifier.Notify(context.Background(), anomalyAlert("press-1", clock.Now())); err != nil {
		t.Fatalf("notify: %v", err)
	}
	// same machine inside cooldown is suppressed
	clock.advance(10 * time.Second)
	if err := notifier.Notify(context.Background(), anomalyAlert("press-1", clock.Now())); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.count() != 1 {
		t.Fatalf("cooldown violated, %d sends", channel.count())
	}

	// other machines are unaffected
	if err := notifier.Notify(context.Background(), anomalyAlert("press-2", clock.Now())); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.count() != 2 {
		t.Fatalf("expected independent cooldown per machine, %d sends", channel.count())
	}

	// past the cooldown the machine can alert again
	clock.advance(2 * time.Minute)
	if err := notifier.Notify(context.Background(), anomalyAlert("press-1", clock.Now())); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.count() != 3 {
		t.Fatalf("expected send after cooldown, %d sends", channel.count())
	}
}

func TestMultiChannelFansOut(t *testing.T) {
	first := &captureChannel{}
	second := &captureChannel{}
	multi := Multi{first, second, nil}

	if err := multi.Send(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("fan-out incomplete: %d/%d", first.count(), second.count())
	}
}

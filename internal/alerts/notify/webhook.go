package notify

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	alertshttp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/alerts/http"
	rul "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/domain"
	tasks "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/domain"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// Channel delivers one serialized alert.
type Channel interface {
	Send(ctx context.Context, payload []byte) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// WebhookChannel posts alerts as JSON to a configured URL.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, timeout time.Duration) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("notify: empty webhook url")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{url: url, client: &http.Client{Timeout: timeout}}, nil
}

// Send posts the payload.
func (c *WebhookChannel) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook http %d", resp.StatusCode)
	}
	return nil
}

// Multi fans an alert out to several channels, returning the first error.
type Multi []Channel

// Send delivers to every channel.
func (m Multi) Send(ctx context.Context, payload []byte) error {
	var first error
	for _, ch := range m {
		if ch == nil {
			continue
		}
		if err := ch.Send(ctx, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier sends alert events through a channel with per-subject cooldown
// and content dedupe.
type Notifier struct {
	channel      Channel
	clock        Clock
	cooldown     time.Duration
	dedupeWindow time.Duration

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between alerts for the same subject
// and event type.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical payloads within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(channel Channel, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("notify: nil channel")
	}
	n := &Notifier{
		channel: channel,
		clock:   systemClock{},
		sent:    make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify delivers one alert event, subject to cooldown and dedupe.
func (n *Notifier) Notify(ctx context.Context, event alertshttp.AlertEvent) error {
	if n == nil || n.channel == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := event.Type + "|" + subjectOf(event)
	if !n.shouldSend(key, payload) {
		return nil
	}
	if err := n.channel.Send(ctx, payload); err != nil {
		return err
	}
	n.markSent(key, payload)
	return nil
}

func (n *Notifier) shouldSend(key string, payload []byte) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	hash := hashPayload(payload)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(key string, payload []byte) {
	n.mu.Lock()
	n.sent[key] = sendRecord{at: n.clock.Now().UTC(), hash: hashPayload(payload)}
	n.mu.Unlock()
}

// subjectOf extracts the entity behind an alert so cooldowns apply per
// machine or task rather than globally.
func subjectOf(event alertshttp.AlertEvent) string {
	switch payload := event.Payload.(type) {
	case telemetry.ScoredReading:
		return payload.MachineID
	case tasks.MaintenanceTask:
		return payload.ID
	case rul.Estimate:
		return payload.MachineID
	default:
		return ""
	}
}

func hashPayload(payload []byte) string {
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:8])
}

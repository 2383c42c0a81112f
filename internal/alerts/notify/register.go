package notify

import (
	"context"
	"log"

	alertshttp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/alerts/http"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/eventing"
	rulevents "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/application/events"
	rul "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/domain"
	taskevents "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/application/events"
	telemetryevents "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/application/events"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

// Register subscribes the notifier to the events that warrant an outbound
// alert: anomalies, auto-created tasks and short-horizon predictions.
func (n *Notifier) Register(bus eventing.Bus, logger *log.Logger) {
	eventing.SubscribeTyped(bus, "notify.anomalies", logger, func(ctx context.Context, evt telemetryevents.ReadingScored) error {
		if evt.Reading.Status != telemetry.StatusAnomaly {
			return nil
		}
		return n.Notify(ctx, alertshttp.AlertEvent{
			Type:       alertshttp.EventAnomaly,
			Payload:    evt.Reading,
			OccurredAt: evt.OccurredAt,
		})
	})
	eventing.SubscribeTyped(bus, "notify.tasks", logger, func(ctx context.Context, evt taskevents.TaskCreated) error {
		return n.Notify(ctx, alertshttp.AlertEvent{
			Type:       alertshttp.EventTask,
			Payload:    evt.Task,
			OccurredAt: evt.OccurredAt,
		})
	})
	eventing.SubscribeTyped(bus, "notify.rul", logger, func(ctx context.Context, evt rulevents.EstimateUpdated) error {
		if evt.Estimate.Urgency != rul.UrgencyImmediate {
			return nil
		}
		return n.Notify(ctx, alertshttp.AlertEvent{
			Type:       alertshttp.EventPrediction,
			Payload:    evt.Estimate,
			OccurredAt: evt.OccurredAt,
		})
	})
}

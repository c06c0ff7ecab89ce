package services

import (
	"context"
	"time"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/providers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
)

const defaultNotifyTimeout = 2 * time.Second

// Notifier is the best-effort notify(event) side channel.
// It is only ever called after queue locks are released; failures are logged and counted, never returned.
type Notifier struct {
	bus     providers.EventBus
	timeout time.Duration
	metrics *observability.Metrics
}

// NewNotifier creates a notifier. A nil bus turns every notification into a debug log line.
func NewNotifier(bus providers.EventBus, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &Notifier{bus: bus, timeout: timeout}
}

// SetMetrics sets the metrics used to count publish failures
func (n *Notifier) SetMetrics(metrics *observability.Metrics) {
	n.metrics = metrics
}

// Notify publishes each event on its provider channel and on the given shared channel
func (n *Notifier) Notify(ctx context.Context, sharedChannel string, events ...*entities.QueueEvent) {
	if n == nil {
		return
	}
	logger := observability.LoggerFromContext(ctx)

	if n.bus == nil {
		for _, event := range events {
			logger.Debug().
				Str("event_type", string(event.EventType)).
				Str("provider_id", event.ProviderID).
				Msg("event bus disabled, dropping queue event")
		}
		return
	}

	// The request may already be finishing; publishing must not inherit its cancellation.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	for _, event := range events {
		for _, channel := range []string{providers.GetQueueChannel(event.ProviderID), sharedChannel} {
			if err := n.bus.Publish(pubCtx, channel, event); err != nil {
				logger.Warn().
					Err(err).
					Str("channel", channel).
					Str("event_id", event.ID).
					Str("event_type", string(event.EventType)).
					Msg("failed to publish queue event")
				observability.RecordNotificationFailure(pubCtx, n.metrics, string(event.EventType))
			}
		}
	}
}

package providers

import (
	"context"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to queue events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.QueueEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelQueueUpdates is the channel for all queue updates
	EventChannelQueueUpdates = "queue:updates"

	// EventChannelQueuePrefix is the prefix for provider-specific queue channels.
	// It must never yield EventChannelQueueUpdates for any provider ID.
	EventChannelQueuePrefix = "queue:provider:"

	// EventChannelProviderUpdates is the channel for ranking attribute changes
	EventChannelProviderUpdates = "provider:updates"
)

// GetQueueChannel returns the channel name for a specific provider's queue
func GetQueueChannel(providerID string) string {
	return EventChannelQueuePrefix + providerID
}

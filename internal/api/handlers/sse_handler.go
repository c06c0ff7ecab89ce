package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/providers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
)

const defaultHeartbeatInterval = 30 * time.Second

// QueueSnapshotter returns the current ordered queue of a provider
type QueueSnapshotter interface {
	GetQueue(ctx context.Context, providerID string) ([]*entities.QueueEntry, error)
}

// SSEHandler handles Server-Sent Events for real-time queue updates
type SSEHandler struct {
	eventBus  providers.EventBus
	queues    QueueSnapshotter
	heartbeat time.Duration
	clients   map[string]map[chan *entities.QueueEvent]bool // channel -> clients
	mu        sync.RWMutex
}

// NewSSEHandler creates a new SSE handler. queues may be nil, in which case no snapshot is sent on connect.
func NewSSEHandler(eventBus providers.EventBus, queues QueueSnapshotter) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		queues:    queues,
		heartbeat: defaultHeartbeatInterval,
		clients:   make(map[string]map[chan *entities.QueueEvent]bool),
	}
}

// SetHeartbeatInterval overrides the keep-alive interval
func (h *SSEHandler) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// StreamProviderQueue handles SSE connections for one provider's queue
// GET /api/providers/{id}/queue/stream
func (h *SSEHandler) StreamProviderQueue(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")
	if providerID == "" {
		respondWithError(w, http.StatusBadRequest, "provider ID is required")
		return
	}

	var snapshot interface{}
	if h.queues != nil {
		entries, err := h.queues.GetQueue(r.Context(), providerID)
		if err != nil {
			respondWithAppError(w, r, err)
			return
		}
		snapshot = newQueueResponse(providerID, entries)
	}

	h.stream(w, r, providers.GetQueueChannel(providerID), map[string]interface{}{
		"provider_id": providerID,
		"timestamp":   time.Now(),
	}, snapshot)
}

// StreamQueueUpdates handles SSE connections for every queue mutation
// GET /api/stream/queue-updates
func (h *SSEHandler) StreamQueueUpdates(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, providers.EventChannelQueueUpdates, map[string]interface{}{
		"timestamp": time.Now(),
	}, nil)
}

// StreamProviderUpdates handles SSE connections for ranking attribute changes
// GET /api/stream/providers
func (h *SSEHandler) StreamProviderUpdates(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, providers.EventChannelProviderUpdates, map[string]interface{}{
		"timestamp": time.Now(),
	}, nil)
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, channel string, hello map[string]interface{}, snapshot interface{}) {
	logger := observability.LoggerFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	eventChan, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("failed to subscribe to channel")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	// streams outlive the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan *entities.QueueEvent, 10)
	h.registerClient(channel, clientChan)
	defer h.unregisterClient(channel, clientChan)

	h.sendEvent(w, "connected", hello)
	if snapshot != nil {
		h.sendEvent(w, "snapshot", snapshot)
	}
	flusher.Flush()

	go h.forwardEvents(ctx, eventChan, clientChan)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("channel", channel).Msg("client disconnected from stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event := <-clientChan:
			if event == nil {
				continue
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
		}
	}
}

// forwardEvents forwards events from the event bus to a client channel
func (h *SSEHandler) forwardEvents(ctx context.Context, eventChan <-chan *entities.QueueEvent, clientChan chan<- *entities.QueueEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			select {
			case clientChan <- event:
			default:
				// slow client, drop
			}
		}
	}
}

func (h *SSEHandler) registerClient(channel string, clientChan chan *entities.QueueEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[channel] == nil {
		h.clients[channel] = make(map[chan *entities.QueueEvent]bool)
	}
	h.clients[channel][clientChan] = true
}

func (h *SSEHandler) unregisterClient(channel string, clientChan chan *entities.QueueEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.clients[channel]; exists {
		delete(clients, clientChan)
		if len(clients) == 0 {
			delete(h.clients, channel)
		}
	}
}

// sendEvent writes one SSE frame
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}

package routes

import (
	"net/http"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/api/handlers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/api/middleware"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	queueHandler    *handlers.QueueHandler
	referralHandler *handlers.ReferralHandler
	providerHandler *handlers.ProviderHandler
	sseHandler      *handlers.SSEHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. sseHandler may be nil to disable streaming endpoints.
func NewRouter(
	queueHandler *handlers.QueueHandler,
	referralHandler *handlers.ReferralHandler,
	providerHandler *handlers.ProviderHandler,
	sseHandler *handlers.SSEHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		queueHandler:    queueHandler,
		referralHandler: referralHandler,
		providerHandler: providerHandler,
		sseHandler:      sseHandler,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Queue endpoints
	r.mux.HandleFunc("POST /api/providers/{id}/queue", r.queueHandler.Enqueue)
	r.mux.HandleFunc("GET /api/providers/{id}/queue", r.queueHandler.GetQueue)
	r.mux.HandleFunc("POST /api/providers/{id}/queue/reprioritize", r.queueHandler.Reprioritize)
	r.mux.HandleFunc("GET /api/queue-entries/{id}", r.queueHandler.GetEntry)
	r.mux.HandleFunc("DELETE /api/queue-entries/{id}", r.queueHandler.Remove)
	r.mux.HandleFunc("POST /api/queue-entries/{id}/start", r.queueHandler.StartConsultation)
	r.mux.HandleFunc("POST /api/queue-entries/{id}/complete", r.queueHandler.CompleteConsultation)
	r.mux.HandleFunc("GET /api/patients/{id}/queue-entry", r.queueHandler.GetPatientEntry)

	// Referral endpoints
	r.mux.HandleFunc("POST /api/queue-entries/{id}/referral", r.referralHandler.Refer)

	// Provider discovery and admin endpoints
	r.mux.HandleFunc("GET /api/providers", r.providerHandler.ListProviders)
	r.mux.HandleFunc("GET /api/providers/{id}", r.providerHandler.GetProvider)
	r.mux.HandleFunc("PUT /api/providers/{id}", r.providerHandler.RegisterProvider)
	r.mux.HandleFunc("POST /api/providers/{id}/boost", r.providerHandler.SetBoost)
	r.mux.HandleFunc("POST /api/providers/{id}/pin", r.providerHandler.SetManualPin)
	r.mux.HandleFunc("POST /api/providers/{id}/featured", r.providerHandler.SetFeatured)

	// Streaming endpoints
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/providers/{id}/queue/stream", r.sseHandler.StreamProviderQueue)
		r.mux.HandleFunc("GET /api/stream/queue-updates", r.sseHandler.StreamQueueUpdates)
		r.mux.HandleFunc("GET /api/stream/providers", r.sseHandler.StreamProviderUpdates)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}

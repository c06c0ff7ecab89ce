package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/application/services"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
)

// QueueService defines the interface for queue operations
type QueueService interface {
	Enqueue(ctx context.Context, req services.EnqueueRequest) (*entities.QueueEntry, error)
	StartConsultation(ctx context.Context, entryID string) (*entities.QueueEntry, error)
	CompleteConsultation(ctx context.Context, entryID string) (*entities.QueueEntry, []*entities.QueueEntry, error)
	Remove(ctx context.Context, entryID string) ([]*entities.QueueEntry, error)
	Reprioritize(ctx context.Context, providerID string) ([]*entities.QueueEntry, error)
	GetQueue(ctx context.Context, providerID string) ([]*entities.QueueEntry, error)
	GetEntry(ctx context.Context, entryID string) (*entities.QueueEntry, error)
	ActiveEntryForPatient(ctx context.Context, patientID string) (*entities.QueueEntry, error)
}

// QueueHandler handles queue requests
type QueueHandler struct {
	service QueueService
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(service QueueService) *QueueHandler {
	return &QueueHandler{service: service}
}

// EnqueueRequest is the payload for POST /api/providers/{id}/queue
type EnqueueRequest struct {
	PatientID string `json:"patient_id"`
	Priority  string `json:"priority,omitempty"`
}

// QueueResponse is the ordered active queue of a provider
type QueueResponse struct {
	ProviderID string                 `json:"provider_id"`
	Entries    []*entities.QueueEntry `json:"entries"`
	Length     int                    `json:"length"`
}

func newQueueResponse(providerID string, entries []*entities.QueueEntry) QueueResponse {
	if entries == nil {
		entries = []*entities.QueueEntry{}
	}
	return QueueResponse{ProviderID: providerID, Entries: entries, Length: len(entries)}
}

// Enqueue handles POST /api/providers/{id}/queue
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.Enqueue(r.Context(), services.EnqueueRequest{
		ProviderID: r.PathValue("id"),
		PatientID:  req.PatientID,
		Priority:   entities.QueuePriority(req.Priority),
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, entry)
}

// GetQueue handles GET /api/providers/{id}/queue
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")

	entries, err := h.service.GetQueue(r.Context(), providerID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newQueueResponse(providerID, entries))
}

// Reprioritize handles POST /api/providers/{id}/queue/reprioritize
func (h *QueueHandler) Reprioritize(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")

	entries, err := h.service.Reprioritize(r.Context(), providerID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newQueueResponse(providerID, entries))
}

// GetEntry handles GET /api/queue-entries/{id}
func (h *QueueHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

// StartConsultation handles POST /api/queue-entries/{id}/start
func (h *QueueHandler) StartConsultation(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.StartConsultation(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

// CompleteConsultation handles POST /api/queue-entries/{id}/complete
func (h *QueueHandler) CompleteConsultation(w http.ResponseWriter, r *http.Request) {
	entry, queue, err := h.service.CompleteConsultation(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entry": entry,
		"queue": newQueueResponse(entry.ProviderID, queue),
	})
}

// Remove handles DELETE /api/queue-entries/{id}
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")
	entry, err := h.service.GetEntry(r.Context(), entryID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	queue, err := h.service.Remove(r.Context(), entryID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newQueueResponse(entry.ProviderID, queue))
}

// GetPatientEntry handles GET /api/patients/{id}/queue-entry
func (h *QueueHandler) GetPatientEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.ActiveEntryForPatient(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

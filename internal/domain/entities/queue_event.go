package entities

import (
	"time"

	"github.com/google/uuid"
)

// QueueEventType represents the type of queue event
type QueueEventType string

const (
	QueueEventTypePatientEnqueued       QueueEventType = "patient_enqueued"
	QueueEventTypeConsultationStarted   QueueEventType = "consultation_started"
	QueueEventTypeConsultationCompleted QueueEventType = "consultation_completed"
	QueueEventTypePatientRemoved        QueueEventType = "patient_removed"
	QueueEventTypePatientReferredOut    QueueEventType = "patient_referred_out"
	QueueEventTypeReferralCompleted     QueueEventType = "referral_completed"
	QueueEventTypeQueueReprioritized    QueueEventType = "queue_reprioritized"
	QueueEventTypeProviderBoosted       QueueEventType = "provider_boosted"
	QueueEventTypeProviderFlagsChanged  QueueEventType = "provider_flags_changed"
)

// QueueEvent is the notification emitted after a queue or provider mutation commits
type QueueEvent struct {
	ID         string                 `json:"id"`
	ProviderID string                 `json:"provider_id"`
	EventType  QueueEventType         `json:"event_type"`
	EntryID    string                 `json:"entry_id,omitempty"`
	PatientID  string                 `json:"patient_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// NewQueueEvent creates a new queue event
func NewQueueEvent(providerID string, eventType QueueEventType, entry *QueueEntry, data map[string]interface{}) *QueueEvent {
	event := &QueueEvent{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		EventType:  eventType,
		Timestamp:  time.Now(),
		Data:       data,
	}
	if entry != nil {
		event.EntryID = entry.ID
		event.PatientID = entry.PatientID
	}
	return event
}

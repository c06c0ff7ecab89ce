package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/providers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

// EnqueueRequest is the input of QueueManager.Enqueue
type EnqueueRequest struct {
	ProviderID string
	PatientID  string
	Priority   entities.QueuePriority
}

// QueueManager orchestrates entry status transitions on top of the queue store.
// Mutations of one provider's queue are serialized; different providers never block each other.
type QueueManager struct {
	store    *QueueStore
	locks    *ProviderLocks
	notifier *Notifier
	metrics  *observability.Metrics
}

// NewQueueManager creates a new queue manager
func NewQueueManager(store *QueueStore, locks *ProviderLocks, notifier *Notifier) *QueueManager {
	if locks == nil {
		locks = NewProviderLocks()
	}
	return &QueueManager{
		store:    store,
		locks:    locks,
		notifier: notifier,
	}
}

// SetMetrics sets the metrics for the queue manager
func (m *QueueManager) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// Enqueue appends a patient to the end of a provider's queue.
// It fails with DUPLICATE_ACTIVE_PATIENT while the patient holds an active entry anywhere.
func (m *QueueManager) Enqueue(ctx context.Context, req EnqueueRequest) (*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueManager.Enqueue",
		attribute.String("provider_id", req.ProviderID),
		attribute.String("patient_id", req.PatientID),
	)
	defer span.End()

	providerID := strings.TrimSpace(req.ProviderID)
	patientID := strings.TrimSpace(req.PatientID)
	if providerID == "" {
		return nil, apperrors.NewValidationError("provider id is required", "")
	}
	if patientID == "" {
		return nil, apperrors.NewValidationError("patient id is required", providerID)
	}
	priority, err := entities.ParseQueuePriority(string(req.Priority))
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), patientID)
	}

	entry, err := func() (*entities.QueueEntry, error) {
		unlock := m.locks.Lock(patientKey(patientID), providerKey(providerID))
		defer unlock()

		active, err := m.store.ActiveForPatient(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, apperrors.NewDuplicateActivePatientError(patientID, active.ID)
		}

		entry := &entities.QueueEntry{
			ID:        uuid.NewString(),
			PatientID: patientID,
			Priority:  priority,
		}
		if _, err := m.store.Enqueue(ctx, providerID, entry); err != nil {
			return nil, err
		}
		return entry, nil
	}()
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info().
		Str("provider_id", providerID).
		Str("patient_id", patientID).
		Str("entry_id", entry.ID).
		Int("position", entry.Position).
		Msg("patient enqueued")
	m.after(ctx, "enqueue", entities.NewQueueEvent(providerID, entities.QueueEventTypePatientEnqueued, entry,
		map[string]interface{}{"position": entry.Position, "priority": string(entry.Priority)}))
	return entry, nil
}

// StartConsultation moves a waiting entry into consultation
func (m *QueueManager) StartConsultation(ctx context.Context, entryID string) (*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueManager.StartConsultation", attribute.String("entry_id", entryID))
	defer span.End()

	var entry *entities.QueueEntry
	err := m.withEntryLock(ctx, entryID, func(current *entities.QueueEntry) error {
		next, ok := entities.NextStatus(entities.QueueActionStart, current.Status)
		if !ok {
			return apperrors.NewInvalidTransitionError(
				fmt.Sprintf("cannot start consultation for %s entry", current.Status), entryID)
		}
		updated, _, err := m.store.UpdateStatus(ctx, current.ID, next)
		entry = updated
		return err
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	m.after(ctx, "start", entities.NewQueueEvent(entry.ProviderID, entities.QueueEventTypeConsultationStarted, entry, nil))
	return entry, nil
}

// CompleteConsultation closes an in-consultation entry and returns it with the compacted queue
func (m *QueueManager) CompleteConsultation(ctx context.Context, entryID string) (*entities.QueueEntry, []*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueManager.CompleteConsultation", attribute.String("entry_id", entryID))
	defer span.End()

	var (
		entry *entities.QueueEntry
		queue []*entities.QueueEntry
	)
	err := m.withEntryLock(ctx, entryID, func(current *entities.QueueEntry) error {
		next, ok := entities.NextStatus(entities.QueueActionComplete, current.Status)
		if !ok {
			return apperrors.NewInvalidTransitionError(
				fmt.Sprintf("cannot complete consultation for %s entry", current.Status), entryID)
		}
		var err error
		entry, queue, err = m.store.UpdateStatus(ctx, current.ID, next)
		return err
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, nil, err
	}

	m.after(ctx, "complete", entities.NewQueueEvent(entry.ProviderID, entities.QueueEventTypeConsultationCompleted, entry,
		map[string]interface{}{"queue_length": len(queue)}))
	return entry, queue, nil
}

// Remove takes a waiting patient out of the queue and returns the compacted queue
func (m *QueueManager) Remove(ctx context.Context, entryID string) ([]*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueManager.Remove", attribute.String("entry_id", entryID))
	defer span.End()

	var (
		removed *entities.QueueEntry
		queue   []*entities.QueueEntry
	)
	err := m.withEntryLock(ctx, entryID, func(current *entities.QueueEntry) error {
		removed = current
		var err error
		queue, err = m.store.Remove(ctx, entryID)
		return err
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	m.after(ctx, "remove", entities.NewQueueEvent(removed.ProviderID, entities.QueueEventTypePatientRemoved, removed, nil))
	return queue, nil
}

// Reprioritize stably re-sorts the waiting entries of a provider by priority.
// An in-consultation entry keeps the head of the queue.
func (m *QueueManager) Reprioritize(ctx context.Context, providerID string) ([]*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueManager.Reprioritize", attribute.String("provider_id", providerID))
	defer span.End()

	queue, err := func() ([]*entities.QueueEntry, error) {
		unlock := m.locks.Lock(providerKey(providerID))
		defer unlock()

		active, err := m.store.Get(ctx, providerID)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(active, func(i, j int) bool {
			a, b := active[i], active[j]
			aConsulting := a.Status == entities.QueueStatusInConsultation
			bConsulting := b.Status == entities.QueueStatusInConsultation
			if aConsulting != bConsulting {
				return aConsulting
			}
			return a.Priority.Ordinal() < b.Priority.Ordinal()
		})
		return m.store.Reorder(ctx, active)
	}()
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	m.after(ctx, "reprioritize", entities.NewQueueEvent(providerID, entities.QueueEventTypeQueueReprioritized, nil,
		map[string]interface{}{"queue_length": len(queue)}))
	return queue, nil
}

// GetQueue returns the provider's active entries in order with wait estimates
func (m *QueueManager) GetQueue(ctx context.Context, providerID string) ([]*entities.QueueEntry, error) {
	unlock := m.locks.RLock(providerKey(providerID))
	defer unlock()

	return m.store.Get(ctx, providerID)
}

// GetEntry returns a single entry by ID
func (m *QueueManager) GetEntry(ctx context.Context, entryID string) (*entities.QueueEntry, error) {
	return m.store.Entry(ctx, entryID)
}

// ActiveEntryForPatient returns the patient's active entry, or NOT_FOUND
func (m *QueueManager) ActiveEntryForPatient(ctx context.Context, patientID string) (*entities.QueueEntry, error) {
	entry, err := m.store.ActiveForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperrors.NewNotFoundError("patient has no active queue entry", patientID)
	}
	return entry, nil
}

// withEntryLock runs fn on a fresh read of the entry while holding its provider's lock
func (m *QueueManager) withEntryLock(ctx context.Context, entryID string, fn func(*entities.QueueEntry) error) error {
	if strings.TrimSpace(entryID) == "" {
		return apperrors.NewValidationError("entry id is required", "")
	}

	peek, err := m.store.Entry(ctx, entryID)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(providerKey(peek.ProviderID))
	defer unlock()

	current, err := m.store.Entry(ctx, entryID)
	if err != nil {
		return err
	}
	if current.ProviderID != peek.ProviderID {
		return apperrors.NewConflictError("entry moved to another provider, retry", entryID)
	}
	return fn(current)
}

// after records the mutation and dispatches its event; it must run with no queue lock held
func (m *QueueManager) after(ctx context.Context, operation string, event *entities.QueueEvent) {
	observability.RecordQueueMutation(ctx, m.metrics, operation)
	m.notifier.Notify(ctx, providers.EventChannelQueueUpdates, event)
}

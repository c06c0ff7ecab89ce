package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/providers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

const (
	referralOutcomeCompleted      = "completed"
	referralOutcomePartialFailure = "partial_failure"
	referralOutcomeRejected       = "rejected"
)

// referralNamespace scopes the deterministic IDs of referred-in entries
var referralNamespace = uuid.MustParse("6f1c8e0a-3d52-4c61-9a0e-58b7f2d4c913")

// ReferralEntryID returns the ID the destination entry of a referral always receives,
// so retrying a referral can never create a second destination entry.
func ReferralEntryID(sourceEntryID, toProviderID string) string {
	return uuid.NewSHA1(referralNamespace, []byte(sourceEntryID+"->"+toProviderID)).String()
}

// ReferralRequest is the input of ReferralCoordinator.Refer
type ReferralRequest struct {
	EntryID        string
	FromProviderID string
	ToProviderID   string
	Reason         string
}

// ReferralResult holds both sides of a referral.
// After a PARTIAL_FAILURE only Original is set.
type ReferralResult struct {
	Original         *entities.QueueEntry
	Referred         *entities.QueueEntry
	DestinationQueue []*entities.QueueEntry

	// sourceQueue is set only when this call moved the entry out of the source queue
	sourceQueue []*entities.QueueEntry
}

// ReferralCoordinator moves a patient from one provider's queue to the front of another's.
// The two steps run under both provider locks; only the second step can fail independently.
type ReferralCoordinator struct {
	manager *QueueManager
	metrics *observability.Metrics
}

// NewReferralCoordinator creates a referral coordinator sharing the manager's store and locks
func NewReferralCoordinator(manager *QueueManager) *ReferralCoordinator {
	return &ReferralCoordinator{manager: manager}
}

// SetMetrics sets the metrics for the coordinator
func (c *ReferralCoordinator) SetMetrics(metrics *observability.Metrics) {
	c.metrics = metrics
}

// Refer transfers the entry from FromProviderID to ToProviderID.
// Calling it again with the same request after a PARTIAL_FAILURE resumes at the second step.
func (c *ReferralCoordinator) Refer(ctx context.Context, req ReferralRequest) (*ReferralResult, error) {
	req.EntryID = strings.TrimSpace(req.EntryID)
	req.FromProviderID = strings.TrimSpace(req.FromProviderID)
	req.ToProviderID = strings.TrimSpace(req.ToProviderID)
	req.Reason = strings.TrimSpace(req.Reason)

	ctx, span := observability.StartSpan(ctx, "ReferralCoordinator.Refer",
		attribute.String("entry_id", req.EntryID),
		attribute.String("from_provider_id", req.FromProviderID),
		attribute.String("to_provider_id", req.ToProviderID),
	)
	defer span.End()

	result, err := c.refer(ctx, req)
	var events []*entities.QueueEvent
	if result != nil && result.sourceQueue != nil {
		events = append(events, entities.NewQueueEvent(req.FromProviderID, entities.QueueEventTypePatientReferredOut, result.Original,
			map[string]interface{}{
				"source_entry_id":   result.Original.ID,
				"to_provider_id":    req.ToProviderID,
				"referred_entry_id": ReferralEntryID(result.Original.ID, req.ToProviderID),
				"queue_length":      len(result.sourceQueue),
			}))
	}
	if err != nil {
		observability.RecordError(span, err)
		outcome := referralOutcomeRejected
		if apperrors.IsType(err, apperrors.ErrorTypePartialFailure) {
			outcome = referralOutcomePartialFailure
		}
		observability.RecordReferral(ctx, c.metrics, outcome)
		observability.LoggerFromContext(ctx).Warn().
			Err(err).
			Str("entry_id", req.EntryID).
			Str("from_provider_id", req.FromProviderID).
			Str("to_provider_id", req.ToProviderID).
			Str("outcome", outcome).
			Msg("referral failed")
		c.manager.notifier.Notify(ctx, providers.EventChannelQueueUpdates, events...)
		return result, err
	}

	observability.RecordReferral(ctx, c.metrics, referralOutcomeCompleted)
	observability.LoggerFromContext(ctx).Info().
		Str("entry_id", result.Original.ID).
		Str("referred_entry_id", result.Referred.ID).
		Str("from_provider_id", req.FromProviderID).
		Str("to_provider_id", req.ToProviderID).
		Msg("referral completed")

	// Referrals are free of charge: the events carry queue data only.
	events = append(events, entities.NewQueueEvent(req.ToProviderID, entities.QueueEventTypeReferralCompleted, result.Referred,
		map[string]interface{}{
			"from_provider_id":  req.FromProviderID,
			"to_provider_id":    req.ToProviderID,
			"source_entry_id":   result.Original.ID,
			"referred_entry_id": result.Referred.ID,
			"reason":            req.Reason,
		}))
	c.manager.notifier.Notify(ctx, providers.EventChannelQueueUpdates, events...)
	return result, nil
}

func (c *ReferralCoordinator) refer(ctx context.Context, req ReferralRequest) (*ReferralResult, error) {
	switch {
	case req.EntryID == "":
		return nil, apperrors.NewValidationError("entry id is required", "")
	case req.FromProviderID == "" || req.ToProviderID == "":
		return nil, apperrors.NewValidationError("source and destination providers are required", req.EntryID)
	case req.FromProviderID == req.ToProviderID:
		return nil, apperrors.NewValidationError("cannot refer a patient to the same provider", req.EntryID)
	case req.Reason == "":
		return nil, apperrors.NewValidationError("referral reason is required", req.EntryID)
	}

	store := c.manager.store
	peek, err := store.Entry(ctx, req.EntryID)
	if err != nil {
		return nil, err
	}

	unlock := c.manager.locks.Lock(
		patientKey(peek.PatientID),
		providerKey(req.FromProviderID),
		providerKey(req.ToProviderID),
	)
	defer unlock()

	source, err := store.Entry(ctx, req.EntryID)
	if err != nil {
		return nil, err
	}
	if source.ProviderID != req.FromProviderID {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("entry belongs to provider %s, not %s", source.ProviderID, req.FromProviderID), source.ID)
	}

	referredID := ReferralEntryID(source.ID, req.ToProviderID)
	resuming := source.Status == entities.QueueStatusReferredOut && source.ReferredToProviderID == req.ToProviderID

	original := source
	var sourceQueue []*entities.QueueEntry
	if !resuming {
		next, ok := entities.NextStatus(entities.QueueActionRefer, source.Status)
		if !ok {
			return nil, apperrors.NewInvalidTransitionError(
				fmt.Sprintf("cannot refer %s entry", source.Status), source.ID)
		}
		source.ReferredToProviderID = req.ToProviderID
		if original, sourceQueue, err = store.transition(ctx, source, next); err != nil {
			return nil, err
		}
	}

	existing, err := store.Entry(ctx, referredID)
	switch {
	case err == nil:
		queue, qerr := store.Get(ctx, req.ToProviderID)
		if qerr != nil {
			return &ReferralResult{Original: original, sourceQueue: sourceQueue}, apperrors.NewPartialFailureError(
				"referred entry exists but destination queue could not be read", original.ID, qerr)
		}
		return &ReferralResult{Original: original, Referred: existing, DestinationQueue: queue, sourceQueue: sourceQueue}, nil
	case !apperrors.IsNotFound(err):
		return &ReferralResult{Original: original, sourceQueue: sourceQueue}, apperrors.NewPartialFailureError(
			"source entry referred out but destination lookup failed", original.ID, err)
	}

	if resuming {
		active, err := store.ActiveForPatient(ctx, source.PatientID)
		if err != nil {
			return &ReferralResult{Original: original, sourceQueue: sourceQueue}, apperrors.NewPartialFailureError(
				"source entry referred out but patient lookup failed", original.ID, err)
		}
		if active != nil {
			return &ReferralResult{Original: original, sourceQueue: sourceQueue}, apperrors.NewDuplicateActivePatientError(source.PatientID, active.ID)
		}
	}

	referred := &entities.QueueEntry{
		ID:                  referredID,
		PatientID:           source.PatientID,
		Priority:            entities.QueuePriorityReferred,
		ReferralNote:        fmt.Sprintf("Referred from %s - %s", req.FromProviderID, req.Reason),
		ReferredFromEntryID: source.ID,
	}
	queue, err := store.InsertFront(ctx, req.ToProviderID, referred)
	if err != nil {
		return &ReferralResult{Original: original, sourceQueue: sourceQueue}, apperrors.NewPartialFailureError(
			fmt.Sprintf("entry referred out of %s but could not be added to %s", req.FromProviderID, req.ToProviderID),
			original.ID, err)
	}

	return &ReferralResult{Original: original, Referred: referred, DestinationQueue: queue, sourceQueue: sourceQueue}, nil
}

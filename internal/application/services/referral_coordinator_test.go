package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/application/services"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/Patientqueuedesign/backend/pkg/errors"
)

func TestReferralCoordinator_MovesPatientToFrontOfDestination(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	p1 := f.enqueue(t, "D1", "P1")
	p2 := f.enqueue(t, "D1", "P2")
	f.enqueue(t, "D1", "P3")
	f.enqueue(t, "D2", "Q1")
	f.enqueue(t, "D2", "Q2")

	_, err := f.manager.StartConsultation(ctx, p1.ID)
	require.NoError(t, err)
	_, _, err = f.manager.CompleteConsultation(ctx, p1.ID)
	require.NoError(t, err)

	result, err := f.coordinator.Refer(ctx, services.ReferralRequest{
		EntryID:        p2.ID,
		FromProviderID: "D1",
		ToProviderID:   "D2",
		Reason:         "specialist needed",
	})
	require.NoError(t, err)

	assert.Equal(t, entities.QueueStatusReferredOut, result.Original.Status)
	assert.Zero(t, result.Original.Position)
	assert.Equal(t, "D2", result.Original.ReferredToProviderID)

	referred := result.Referred
	assert.Equal(t, services.ReferralEntryID(p2.ID, "D2"), referred.ID)
	assert.Equal(t, "D2", referred.ProviderID)
	assert.Equal(t, "P2", referred.PatientID)
	assert.Equal(t, entities.QueueStatusWaiting, referred.Status)
	assert.Equal(t, entities.QueuePriorityReferred, referred.Priority)
	assert.Equal(t, 1, referred.Position)
	assert.Equal(t, "Referred from D1 - specialist needed", referred.ReferralNote)
	assert.Equal(t, p2.ID, referred.ReferredFromEntryID)

	source := f.queue(t, "D1")
	require.Len(t, source, 1)
	assert.Equal(t, "P3", source[0].PatientID)
	assert.Equal(t, 1, source[0].Position)

	destination := f.queue(t, "D2")
	assert.Equal(t, []string{"P2", "Q1", "Q2"}, patientIDs(destination))
	requireContiguous(t, destination)
	assert.Equal(t, entities.WaitEstimate{Minutes: 60}, destination[2].EstimatedWait)
	assert.Equal(t, patientIDs(result.DestinationQueue), patientIDs(destination))

	stored, err := f.manager.GetEntry(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.QueueStatusReferredOut, stored.Status)
}

func TestReferralCoordinator_ReferFromConsultation(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	p1 := f.enqueue(t, "D1", "P1")
	f.enqueue(t, "D1", "P2")
	_, err := f.manager.StartConsultation(ctx, p1.ID)
	require.NoError(t, err)

	result, err := f.coordinator.Refer(ctx, services.ReferralRequest{
		EntryID: p1.ID, FromProviderID: "D1", ToProviderID: "D2", Reason: "needs imaging",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Referred.Position)

	source := f.queue(t, "D1")
	assert.Equal(t, []string{"P2"}, patientIDs(source))
	assert.Equal(t, 1, source[0].Position)

	// The source provider can take the next patient now.
	_, err = f.manager.StartConsultation(ctx, source[0].ID)
	assert.NoError(t, err)
}

func TestReferralCoordinator_RejectsInvalidRequests(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	entry := f.enqueue(t, "D1", "P1")

	tests := []struct {
		name    string
		req     services.ReferralRequest
		errType apperrors.ErrorType
	}{
		{"same provider", services.ReferralRequest{EntryID: entry.ID, FromProviderID: "D1", ToProviderID: "D1", Reason: "x"}, apperrors.ErrorTypeValidation},
		{"empty reason", services.ReferralRequest{EntryID: entry.ID, FromProviderID: "D1", ToProviderID: "D2", Reason: "  "}, apperrors.ErrorTypeValidation},
		{"wrong source provider", services.ReferralRequest{EntryID: entry.ID, FromProviderID: "D3", ToProviderID: "D2", Reason: "x"}, apperrors.ErrorTypeValidation},
		{"unknown entry", services.ReferralRequest{EntryID: "missing", FromProviderID: "D1", ToProviderID: "D2", Reason: "x"}, apperrors.ErrorTypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coordinator.Refer(ctx, tt.req)
			assert.True(t, apperrors.IsType(err, tt.errType), "got %v", err)
		})
	}

	stored, err := f.manager.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.QueueStatusWaiting, stored.Status)
	assert.Empty(t, f.queue(t, "D2"))
}

func TestReferralCoordinator_TerminalEntryCannotBeReferred(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	entry := f.enqueue(t, "D1", "P1")
	_, err := f.manager.StartConsultation(ctx, entry.ID)
	require.NoError(t, err)
	_, _, err = f.manager.CompleteConsultation(ctx, entry.ID)
	require.NoError(t, err)

	_, err = f.coordinator.Refer(ctx, services.ReferralRequest{
		EntryID: entry.ID, FromProviderID: "D1", ToProviderID: "D2", Reason: "x",
	})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))
}

func TestReferralCoordinator_PartialFailureThenResume(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	entry := f.enqueue(t, "D1", "P1")
	f.enqueue(t, "D2", "Q1")
	req := services.ReferralRequest{EntryID: entry.ID, FromProviderID: "D1", ToProviderID: "D2", Reason: "cardiology"}

	f.repo.failWritesFor("D2")
	result, err := f.coordinator.Refer(ctx, req)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypePartialFailure, appErr.Type)
	assert.Equal(t, entry.ID, appErr.ID)
	assert.ErrorIs(t, err, errStorageDown)
	require.NotNil(t, result)
	assert.Equal(t, entities.QueueStatusReferredOut, result.Original.Status)
	assert.Nil(t, result.Referred)

	assert.Empty(t, f.queue(t, "D1"))
	assert.Equal(t, []string{"Q1"}, patientIDs(f.queue(t, "D2")))

	f.repo.failWritesFor("")
	result, err = f.coordinator.Refer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, services.ReferralEntryID(entry.ID, "D2"), result.Referred.ID)
	assert.Equal(t, []string{"P1", "Q1"}, patientIDs(f.queue(t, "D2")))

	// Repeating a completed referral returns the same destination entry.
	again, err := f.coordinator.Refer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, result.Referred.ID, again.Referred.ID)
	assert.Len(t, f.queue(t, "D2"), 2)
}

func TestReferralCoordinator_ResumeRefusesPatientActiveElsewhere(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	entry := f.enqueue(t, "D1", "P1")
	req := services.ReferralRequest{EntryID: entry.ID, FromProviderID: "D1", ToProviderID: "D2", Reason: "x"}

	f.repo.failWritesFor("D2")
	_, err := f.coordinator.Refer(ctx, req)
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypePartialFailure))
	f.repo.failWritesFor("")

	f.enqueue(t, "D3", "P1")

	_, err = f.coordinator.Refer(ctx, req)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDuplicateActivePatient))
	assert.Empty(t, f.queue(t, "D2"))
}

func TestReferralCoordinator_CrossReferralsDoNotDeadlock(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	a := f.enqueue(t, "A", "PA")
	b := f.enqueue(t, "B", "PB")

	var g errgroup.Group
	g.Go(func() error {
		_, err := f.coordinator.Refer(ctx, services.ReferralRequest{EntryID: a.ID, FromProviderID: "A", ToProviderID: "B", Reason: "x"})
		return err
	})
	g.Go(func() error {
		_, err := f.coordinator.Refer(ctx, services.ReferralRequest{EntryID: b.ID, FromProviderID: "B", ToProviderID: "A", Reason: "y"})
		return err
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cross referrals deadlocked")
	}

	assert.Equal(t, []string{"PB"}, patientIDs(f.queue(t, "A")))
	assert.Equal(t, []string{"PA"}, patientIDs(f.queue(t, "B")))
}

func TestReferralCoordinator_EmitsReferralCompletedWithoutPaymentData(t *testing.T) {
	f := newQueueFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entry := f.enqueue(t, "D1", "P1")
	events, err := f.bus.Subscribe(ctx, providers.GetQueueChannel("D2"))
	require.NoError(t, err)

	result, err := f.coordinator.Refer(ctx, services.ReferralRequest{
		EntryID: entry.ID, FromProviderID: "D1", ToProviderID: "D2", Reason: "x",
	})
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, entities.QueueEventTypeReferralCompleted, event.EventType)
		assert.Equal(t, result.Referred.ID, event.EntryID)
		assert.Equal(t, entry.ID, event.Data["source_entry_id"])
		for key := range event.Data {
			assert.NotContains(t, key, "fee")
			assert.NotContains(t, key, "payment")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for referral event")
	}
}

func TestReferralCoordinator_NotifiesSourceQueue(t *testing.T) {
	f := newQueueFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entry := f.enqueue(t, "D1", "P1")
	f.enqueue(t, "D1", "P2")
	source, err := f.bus.Subscribe(ctx, providers.GetQueueChannel("D1"))
	require.NoError(t, err)

	receive := func() *entities.QueueEvent {
		select {
		case event := <-source:
			return event
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for source queue event")
			return nil
		}
	}

	req := services.ReferralRequest{EntryID: entry.ID, FromProviderID: "D1", ToProviderID: "D2", Reason: "x"}
	f.repo.failWritesFor("D2")
	_, err = f.coordinator.Refer(ctx, req)
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypePartialFailure))
	f.repo.failWritesFor("")

	event := receive()
	assert.Equal(t, entities.QueueEventTypePatientReferredOut, event.EventType)
	assert.Equal(t, "D1", event.ProviderID)
	assert.Equal(t, entry.ID, event.Data["source_entry_id"])
	assert.Equal(t, 1, event.Data["queue_length"])

	// Resuming does not touch the source queue again.
	_, err = f.coordinator.Refer(ctx, req)
	require.NoError(t, err)
	select {
	case extra := <-source:
		t.Fatalf("unexpected source event %s", extra.EventType)
	case <-time.After(100 * time.Millisecond):
	}
}

package booking

import (
	"context"
	"testing"

	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStatus_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	svc, _, notes := newTestService(WithRecorder(rec))

	appt, err := svc.Reserve(ctx, bookingRequest("2026-10-19", "09:00"))
	require.NoError(t, err)

	confirmed, err := svc.SetStatus(ctx, appt.ID, "Confirmed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)

	completed, err := svc.SetStatus(ctx, appt.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	_, err = svc.SetStatus(ctx, appt.ID, "cancelled")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []models.NotificationKind{
		models.KindCreated, models.KindAdminNew, models.KindConfirmedToClient,
	}, notes.kinds())
	assert.Equal(t, []string{"pending->confirmed", "confirmed->completed"}, rec.changes)
}

func TestSetStatus_CancelSendsClientNotice(t *testing.T) {
	ctx := context.Background()
	svc, _, notes := newTestService()

	appt, err := svc.Reserve(ctx, bookingRequest("2026-10-19", "10:00"))
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, appt.ID, "cancelled")
	require.NoError(t, err)
	assert.Contains(t, notes.kinds(), models.KindCancelledToClient)
}

func TestSetStatus_StrictTransitions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	appt, err := svc.Reserve(ctx, bookingRequest("2026-10-19", "11:00"))
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, appt.ID, "completed")
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.StatusPending, terr.From)
	assert.Equal(t, models.StatusCompleted, terr.To)

	_, err = svc.SetStatus(ctx, appt.ID, "pending")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.SetStatus(ctx, appt.ID, "archived")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SetStatus(ctx, "missing-id", "confirmed")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "not_found", Kind(err))
}

func TestSetStatus_PermissiveMode(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(WithPermissiveTransitions(true))

	appt, err := svc.Reserve(ctx, bookingRequest("2026-10-19", "13:00"))
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, appt.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)

	updated, err = svc.SetStatus(ctx, appt.ID, "pending")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, updated.Status)
}

func TestSetStatus_RevivingCancelledOverNewBookingConflicts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(WithPermissiveTransitions(true))

	first, err := svc.Reserve(ctx, bookingRequest("2026-10-19", "14:00"))
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, first.ID, "cancelled")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, bookingRequest("2026-10-19", "14:00"))
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, first.ID, "confirmed")
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestAttachMeetingLink(t *testing.T) {
	ctx := context.Background()
	svc, _, notes := newTestService()

	appt, err := svc.Reserve(ctx, bookingRequest("2026-10-19", "16:00"))
	require.NoError(t, err)

	_, err = svc.AttachMeetingLink(ctx, appt.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.AttachMeetingLink(ctx, appt.ID, "meet.google.com/abc")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.AttachMeetingLink(ctx, "nope", "https://meet.google.com/abc-defg-hij")
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := svc.AttachMeetingLink(ctx, appt.ID, " https://meet.google.com/abc-defg-hij ")
	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", updated.ActualMeetingLink)

	kinds := notes.kinds()
	assert.Equal(t, models.KindMeetingLink, kinds[len(kinds)-1])
}

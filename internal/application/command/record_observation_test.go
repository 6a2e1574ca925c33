package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/identity"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

func TestObservationAutoConfirmsKnownDevice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice", aliceDevice)

	h := env.observationHandler(identity.NewKnownDeviceClassifier(env.roster, nil))

	result, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, aliceDevice, testBase)})
	require.NoError(t, err)
	assert.True(t, result.FirstSeen)
	assert.Equal(t, device.StatusConfirmed, result.Status)
	assert.True(t, result.Entered)
	assert.Equal(t, alice, result.Outcome.StudentID)

	rec, err := env.registry.Get(ctx, aliceDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusConfirmed, rec.Status)
	assert.Equal(t, testSession, rec.ConfirmedIn)
	assert.False(t, rec.ManualConfirm)

	att, err := env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresent, att.State())
	assert.Equal(t, testBase, att.EnteredAt())

	assert.Equal(t, []shared.EventType{
		shared.EventObservationRecorded,
		shared.EventAssignmentConfirmed,
		shared.EventStudentEntered,
	}, env.journalKinds(t))
}

func TestObservationWithoutCandidatesStaysUnassigned(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	h := env.observationHandler(&stubClassifier{})

	result, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, strayDevice, testBase)})
	require.NoError(t, err)
	assert.Equal(t, device.StatusUnassigned, result.Status)
	assert.False(t, result.Entered)

	records, err := env.attendance.BySession(ctx, testSession)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestObservationInReviewBandQueuesReview(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	h := env.observationHandler(&stubClassifier{candidates: []identity.Candidate{
		{StudentID: alice, Score: 0.7},
	}})

	result, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, strayDevice, testBase)})
	require.NoError(t, err)
	assert.Equal(t, device.StatusPendingReview, result.Status)
	assert.False(t, result.Entered)

	rec, err := env.registry.Get(ctx, strayDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusPendingReview, rec.Status)
	assert.Equal(t, alice, rec.Candidate)
	assert.Equal(t, shared.Confidence(0.7), rec.Confidence)

	// Queued for review is not present.
	records, err := env.attendance.BySession(ctx, testSession)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestObservationBelowReviewChangesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	h := env.observationHandler(&stubClassifier{candidates: []identity.Candidate{
		{StudentID: alice, Score: 0.3},
	}})

	result, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, strayDevice, testBase)})
	require.NoError(t, err)
	assert.Equal(t, device.StatusUnassigned, result.Status)
	assert.False(t, result.Outcome.Changed())
}

func TestObservationSurvivesClassifierFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	h := env.observationHandler(&stubClassifier{err: errors.New("model gone")})

	result, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, strayDevice, testBase)})
	require.NoError(t, err)
	assert.Equal(t, device.StatusUnassigned, result.Status)

	// The observation itself still landed.
	rec, err := env.registry.Get(ctx, strayDevice)
	require.NoError(t, err)
	assert.Len(t, rec.History, 1)
}

func TestRepeatSightingReopensPresenceAfterEarlyExit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice", aliceDevice)
	h := env.observationHandler(identity.NewKnownDeviceClassifier(env.roster, nil))

	_, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, aliceDevice, testBase)})
	require.NoError(t, err)

	// Alice steps out.
	att, err := env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	require.NoError(t, att.LeaveEarly(testBase.Add(10*time.Minute)))
	require.NoError(t, env.attendance.Save(ctx, att))

	// Her device shows up again.
	result, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, aliceDevice, testBase.Add(20*time.Minute))})
	require.NoError(t, err)
	assert.True(t, result.Entered)

	att, err = env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresent, att.State())
}

func TestRepeatSightingWhilePresentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.enroll(t, "Alice", aliceDevice)
	h := env.observationHandler(identity.NewKnownDeviceClassifier(env.roster, nil))

	_, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, aliceDevice, testBase)})
	require.NoError(t, err)

	result, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, aliceDevice, testBase.Add(time.Minute))})
	require.NoError(t, err)
	assert.False(t, result.Entered)
	assert.False(t, result.Outcome.Changed())
}

func TestConfirmationCarriesIntoNewSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice", aliceDevice)
	h := env.observationHandler(identity.NewKnownDeviceClassifier(env.roster, nil))

	_, err := h.Handle(ctx, RecordObservationCommand{Observation: observe(t, aliceDevice, testBase)})
	require.NoError(t, err)

	// Next class meeting, same phone.
	obs, err := device.NewObservation(aliceDevice, -55, testBase.Add(24*time.Hour), otherSession)
	require.NoError(t, err)
	result, err := h.Handle(ctx, RecordObservationCommand{Observation: obs})
	require.NoError(t, err)
	assert.True(t, result.Outcome.Changed())
	assert.True(t, result.Entered)

	rec, err := env.registry.Get(ctx, aliceDevice)
	require.NoError(t, err)
	assert.Equal(t, otherSession, rec.ConfirmedIn)
	assert.Equal(t, alice, rec.AssignedStudent)

	att, err := env.attendance.Get(ctx, otherSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresent, att.State())
}

func TestObservationCommandValidation(t *testing.T) {
	env := newTestEnv(t)
	h := env.observationHandler(&stubClassifier{})

	_, err := h.Handle(context.Background(), RecordObservationCommand{})
	assert.Error(t, err)
}

package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

func TestConfirmAssignmentManually(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	_, _, err := env.registry.Record(ctx, observe(t, strayDevice, testBase))
	require.NoError(t, err)

	h := env.overrideHandler()
	result, err := h.ConfirmAssignment(ctx, ConfirmAssignmentCommand{
		Identifier: strayDevice,
		StudentID:  alice,
		Session:    testSession,
		At:         testBase.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, result.Changed)

	rec, err := env.registry.Get(ctx, strayDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusConfirmed, rec.Status)
	assert.True(t, rec.ManualConfirm)
	assert.Equal(t, shared.Confidence(1.0), rec.Confidence)

	att, err := env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresent, att.State())
}

func TestConfirmAssignmentUnknownStudent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, _, err := env.registry.Record(ctx, observe(t, strayDevice, testBase))
	require.NoError(t, err)

	h := env.overrideHandler()
	_, err = h.ConfirmAssignment(ctx, ConfirmAssignmentCommand{
		Identifier: strayDevice,
		StudentID:  shared.NewStudentID(),
		Session:    testSession,
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestConfirmAssignmentConflictNeedsForce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	_, _, err := env.registry.Record(ctx, observe(t, aliceDevice, testBase))
	require.NoError(t, err)
	_, _, err = env.registry.Record(ctx, observe(t, strayDevice, testBase))
	require.NoError(t, err)

	h := env.overrideHandler()
	_, err = h.ConfirmAssignment(ctx, ConfirmAssignmentCommand{
		Identifier: aliceDevice, StudentID: alice, Session: testSession,
	})
	require.NoError(t, err)

	// Second device for the same student fails without force.
	_, err = h.ConfirmAssignment(ctx, ConfirmAssignmentCommand{
		Identifier: strayDevice, StudentID: alice, Session: testSession,
	})
	assert.True(t, shared.IsConflict(err))

	// Force displaces the current holder to pending review.
	result, err := h.ConfirmAssignment(ctx, ConfirmAssignmentCommand{
		Identifier: strayDevice, StudentID: alice, Session: testSession, Force: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Outcome.Demoted)
	assert.Equal(t, aliceDevice, result.Outcome.Demoted.Identifier)

	displaced, err := env.registry.Get(ctx, aliceDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusPendingReview, displaced.Status)
	assert.Equal(t, alice, displaced.Candidate)

	winner, err := env.registry.Get(ctx, strayDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusConfirmed, winner.Status)
}

func TestRejectAssignmentClearsReview(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	_, _, err := env.registry.Record(ctx, observe(t, strayDevice, testBase))
	require.NoError(t, err)
	require.NoError(t, env.registry.Mutate(ctx, func(tx device.Txn) error {
		rec, err := tx.Get(strayDevice)
		if err != nil {
			return err
		}
		return rec.MarkPending(alice, 0.7)
	}))

	h := env.overrideHandler()
	result, err := h.RejectAssignment(ctx, RejectAssignmentCommand{Identifier: strayDevice, Session: testSession})
	require.NoError(t, err)
	assert.True(t, result.Changed)

	rec, err := env.registry.Get(ctx, strayDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusUnassigned, rec.Status)
	assert.True(t, rec.Candidate.IsZero())
}

func TestUnassignDeviceKeepsAttendance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	_, _, err := env.registry.Record(ctx, observe(t, aliceDevice, testBase))
	require.NoError(t, err)

	h := env.overrideHandler()
	_, err = h.ConfirmAssignment(ctx, ConfirmAssignmentCommand{
		Identifier: aliceDevice, StudentID: alice, Session: testSession, At: testBase,
	})
	require.NoError(t, err)

	result, err := h.UnassignDevice(ctx, UnassignDeviceCommand{Identifier: aliceDevice, Session: testSession})
	require.NoError(t, err)
	assert.True(t, result.Changed)

	rec, err := env.registry.Get(ctx, aliceDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusUnassigned, rec.Status)

	// The presence already recorded is untouched.
	att, err := env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresent, att.State())
}

func TestMarkAttendanceByHand(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	h := env.overrideHandler()

	result, err := h.MarkAttendance(ctx, MarkAttendanceCommand{
		StudentID: alice, Session: testSession, Present: true, At: testBase,
	})
	require.NoError(t, err)
	assert.True(t, result.Changed)

	att, err := env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresent, att.State())

	result, err = h.MarkAttendance(ctx, MarkAttendanceCommand{
		StudentID: alice, Session: testSession, Present: false, At: testBase.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, result.Changed)

	att, err = env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StateLeftEarly, att.State())
}

func TestMarkAttendanceUnknownStudent(t *testing.T) {
	env := newTestEnv(t)
	h := env.overrideHandler()
	_, err := h.MarkAttendance(context.Background(), MarkAttendanceCommand{
		StudentID: shared.NewStudentID(), Session: testSession, Present: true,
	})
	assert.True(t, shared.IsNotFound(err))
}

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

// confirmAt confirms a device for a student and leaves LastSeen at the given
// sighting time.
func confirmAt(t *testing.T, env *testEnv, id shared.DeviceID, student shared.StudentID, at time.Time, manual bool) {
	t.Helper()
	ctx := context.Background()
	_, _, err := env.registry.Record(ctx, observe(t, id, at))
	require.NoError(t, err)
	require.NoError(t, env.registry.Mutate(ctx, func(tx device.Txn) error {
		rec, err := tx.Get(id)
		if err != nil {
			return err
		}
		return rec.Confirm(student, testSession, 1.0, manual)
	}))
}

// present opens a presence segment directly in the store.
func present(t *testing.T, env *testEnv, student shared.StudentID, at time.Time) {
	t.Helper()
	ctx := context.Background()
	rec := attendance.NewRecord(testSession, student)
	_, err := rec.Enter(at)
	require.NoError(t, err)
	require.NoError(t, env.attendance.Save(ctx, rec))
}

func TestOpenGeneratesSessionID(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	h := env.sessionHandler(SessionHandlerConfig{})

	session, err := h.Open(ctx, OpenSessionCommand{At: testBase})
	require.NoError(t, err)
	assert.False(t, session.IsZero())

	kinds := env.journalKinds(t)
	require.Len(t, kinds, 1)
	assert.Equal(t, shared.EventSessionOpened, kinds[0])
}

func TestSweepExitsSilentStudents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	confirmAt(t, env, aliceDevice, alice, testBase, false)
	present(t, env, alice, testBase)

	h := env.sessionHandler(SessionHandlerConfig{AbsenceTimeout: 10 * time.Minute})
	result, err := h.SweepAbsences(ctx, SweepAbsencesCommand{Session: testSession, Now: testBase.Add(15 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []shared.StudentID{alice}, result.LeftEarly)

	att, err := env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StateLeftEarly, att.State())
	// The exit time is the last sighting, not the sweep time.
	assert.Equal(t, testBase, att.ExitedAt())
}

func TestSweepSparesRecentSightings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	confirmAt(t, env, aliceDevice, alice, testBase, false)
	present(t, env, alice, testBase)

	h := env.sessionHandler(SessionHandlerConfig{AbsenceTimeout: 10 * time.Minute})
	result, err := h.SweepAbsences(ctx, SweepAbsencesCommand{Session: testSession, Now: testBase.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, result.LeftEarly)
}

func TestSweepSparesManualDecisions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	bob := env.enroll(t, "Bob")

	// Alice was confirmed by the professor; her silent device does not
	// override the professor's word.
	confirmAt(t, env, aliceDevice, alice, testBase, true)
	present(t, env, alice, testBase)

	// Bob was marked present by hand and has no tracked device at all.
	present(t, env, bob, testBase)

	h := env.sessionHandler(SessionHandlerConfig{AbsenceTimeout: 10 * time.Minute})
	result, err := h.SweepAbsences(ctx, SweepAbsencesCommand{Session: testSession, Now: testBase.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, result.LeftEarly)
}

func TestCloseFinalizesAttendance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.enroll(t, "Alice")
	bob := env.enroll(t, "Bob")
	carol := env.enroll(t, "Carol")
	closeAt := testBase.Add(90 * time.Minute)

	// Alice's device was seen just before close.
	confirmAt(t, env, aliceDevice, alice, closeAt.Add(-2*time.Minute), false)
	present(t, env, alice, testBase)

	// Bob's device went silent long before close.
	confirmAt(t, env, strayDevice, bob, testBase.Add(20*time.Minute), false)
	present(t, env, bob, testBase)

	// Carol was marked present by hand, no device.
	present(t, env, carol, testBase)

	h := env.sessionHandler(SessionHandlerConfig{AbsenceTimeout: 10 * time.Minute})
	result, err := h.Close(ctx, CloseSessionCommand{Session: testSession, At: closeAt})
	require.NoError(t, err)
	assert.ElementsMatch(t, []shared.StudentID{alice, carol}, result.PresentAtClose)
	assert.Equal(t, []shared.StudentID{bob}, result.LeftEarly)

	att, err := env.attendance.Get(ctx, testSession, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresentAtClose, att.State())
	assert.Equal(t, closeAt, att.ExitedAt())

	att, err = env.attendance.Get(ctx, testSession, bob)
	require.NoError(t, err)
	assert.Equal(t, attendance.StateLeftEarly, att.State())
	assert.Equal(t, testBase.Add(20*time.Minute), att.ExitedAt())

	kinds := env.journalKinds(t)
	assert.Equal(t, shared.EventSessionClosed, kinds[len(kinds)-1])
}

type closeProbe struct {
	flushed   bool
	archived  bool
	restarted bool
}

func (p *closeProbe) Flush(context.Context) error { p.flushed = true; return nil }
func (p *closeProbe) Run(context.Context) error   { p.archived = true; return nil }
func (p *closeProbe) Restart() error              { p.restarted = true; return nil }
func (p *closeProbe) Cancel()                     {}

func TestCloseDrainsArchivesAndRetrains(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	probe := &closeProbe{}

	h := NewSessionHandler(env.registry, env.attendance, env.journal, nil,
		probe, probe, probe, SessionHandlerConfig{}, nil)

	_, err := h.Close(ctx, CloseSessionCommand{Session: testSession, At: testBase})
	require.NoError(t, err)
	assert.True(t, probe.flushed)
	assert.True(t, probe.archived)
	assert.True(t, probe.restarted)
}

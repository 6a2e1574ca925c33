package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

var (
	session = shared.SessionID("11111111-1111-1111-1111-111111111111")
	alice   = shared.StudentID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
)

func TestNewRecordIsAbsent(t *testing.T) {
	rec := NewRecord(session, alice)
	assert.Equal(t, StateAbsent, rec.State())
	assert.True(t, rec.EnteredAt().IsZero())
	assert.True(t, rec.ExitedAt().IsZero())
}

func TestEnterIsIdempotentWhilePresent(t *testing.T) {
	now := time.Now()
	rec := NewRecord(session, alice)

	opened, err := rec.Enter(now)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, StatePresent, rec.State())

	opened, err = rec.Enter(now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, opened)
	assert.Len(t, rec.Segments, 1)
}

func TestLeaveEarlyThenReenterAppendsSegment(t *testing.T) {
	now := time.Now()
	rec := NewRecord(session, alice)

	_, err := rec.Enter(now)
	require.NoError(t, err)
	require.NoError(t, rec.LeaveEarly(now.Add(20*time.Minute)))
	assert.Equal(t, StateLeftEarly, rec.State())

	opened, err := rec.Enter(now.Add(30 * time.Minute))
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, StatePresent, rec.State())
	require.Len(t, rec.Segments, 2)

	// First segment history is preserved.
	assert.Equal(t, StateLeftEarly, rec.Segments[0].State)
	assert.Equal(t, now, rec.Segments[0].EnteredAt)
	assert.Equal(t, now.Add(20*time.Minute), rec.Segments[0].ExitedAt)
}

func TestCloseAsPresentIsTerminal(t *testing.T) {
	now := time.Now()
	rec := NewRecord(session, alice)

	_, err := rec.Enter(now)
	require.NoError(t, err)
	require.NoError(t, rec.CloseAsPresent(now.Add(time.Hour)))
	assert.Equal(t, StatePresentAtClose, rec.State())

	_, err = rec.Enter(now.Add(2 * time.Hour))
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCloseWithoutOpenSegmentFails(t *testing.T) {
	rec := NewRecord(session, alice)
	assert.ErrorIs(t, rec.LeaveEarly(time.Now()), shared.ErrInvalidState)

	now := time.Now()
	_, err := rec.Enter(now)
	require.NoError(t, err)
	require.NoError(t, rec.LeaveEarly(now.Add(time.Minute)))
	assert.ErrorIs(t, rec.CloseAsPresent(now.Add(2*time.Minute)), shared.ErrInvalidState)
}

func TestPresentDuration(t *testing.T) {
	now := time.Now()
	rec := NewRecord(session, alice)

	_, err := rec.Enter(now)
	require.NoError(t, err)
	require.NoError(t, rec.LeaveEarly(now.Add(10*time.Minute)))

	_, err = rec.Enter(now.Add(20 * time.Minute))
	require.NoError(t, err)

	got := rec.PresentDuration(now.Add(25 * time.Minute))
	assert.Equal(t, 15*time.Minute, got)
}

func TestExitBeforeEntryIsClamped(t *testing.T) {
	now := time.Now()
	rec := NewRecord(session, alice)

	_, err := rec.Enter(now)
	require.NoError(t, err)
	require.NoError(t, rec.LeaveEarly(now.Add(-time.Minute)))
	assert.Equal(t, now, rec.ExitedAt())
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

var (
	session = shared.SessionID("11111111-1111-1111-1111-111111111111")
	alice   = shared.StudentID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	bob     = shared.StudentID("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
)

func observation(t *testing.T, id string, at time.Time) device.Observation {
	t.Helper()
	did, err := shared.NewDeviceID(id)
	require.NoError(t, err)
	obs, err := device.NewObservation(did, -55, at, session)
	require.NoError(t, err)
	return obs
}

func TestRegistryRecordCreatesOnce(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(device.DefaultHistorySize)
	at := time.Now()

	rec, created, err := reg.Record(ctx, observation(t, "aa:bb:cc:dd:ee:01", at))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, shared.DeviceID("AA:BB:CC:DD:EE:01"), rec.ID)

	rec, created, err = reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:01", at.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, rec.History, 2)

	n, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry(0)
	_, err := reg.Get(context.Background(), "AA:BB:CC:DD:EE:01")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegistryUnassignedOrderedByFirstSeen(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(0)
	at := time.Now()

	_, _, err := reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:02", at.Add(time.Minute)))
	require.NoError(t, err)
	_, _, err = reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:01", at))
	require.NoError(t, err)

	recs, err := reg.Unassigned(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, shared.DeviceID("AA:BB:CC:DD:EE:01"), recs[0].ID)
	assert.Equal(t, shared.DeviceID("AA:BB:CC:DD:EE:02"), recs[1].ID)
}

func TestRegistryReadsAreClones(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(0)
	at := time.Now()

	rec, _, err := reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:01", at))
	require.NoError(t, err)
	require.NoError(t, rec.Confirm(alice, session, 0.9, false))

	stored, err := reg.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, device.StatusUnassigned, stored.Status)
}

func TestRegistryMutateCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(0)
	_, _, err := reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:01", time.Now()))
	require.NoError(t, err)

	err = reg.Mutate(ctx, func(tx device.Txn) error {
		rec, err := tx.Get("AA:BB:CC:DD:EE:01")
		if err != nil {
			return err
		}
		return rec.Confirm(alice, session, 0.95, false)
	})
	require.NoError(t, err)

	stored, err := reg.Get(ctx, "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	assert.Equal(t, device.StatusConfirmed, stored.Status)
	assert.Equal(t, alice, stored.AssignedStudent)
}

func TestRegistryMutateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(0)
	_, _, err := reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:01", time.Now()))
	require.NoError(t, err)
	_, _, err = reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:02", time.Now()))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = reg.Mutate(ctx, func(tx device.Txn) error {
		first, err := tx.Get("AA:BB:CC:DD:EE:01")
		if err != nil {
			return err
		}
		if err := first.Confirm(alice, session, 0.95, false); err != nil {
			return err
		}
		second, err := tx.Get("AA:BB:CC:DD:EE:02")
		if err != nil {
			return err
		}
		if err := second.Confirm(bob, session, 0.95, false); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Neither mutation leaked.
	for _, id := range []shared.DeviceID{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02"} {
		stored, err := reg.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, device.StatusUnassigned, stored.Status)
	}
}

func TestRegistryTxnConfirmedForSeesStagedState(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(0)
	_, _, err := reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:01", time.Now()))
	require.NoError(t, err)
	_, _, err = reg.Record(ctx, observation(t, "AA:BB:CC:DD:EE:02", time.Now()))
	require.NoError(t, err)

	err = reg.Mutate(ctx, func(tx device.Txn) error {
		first, err := tx.Get("AA:BB:CC:DD:EE:01")
		if err != nil {
			return err
		}
		if err := first.Confirm(alice, session, 0.95, false); err != nil {
			return err
		}
		holder, ok := tx.ConfirmedFor(alice, session)
		if !ok || holder.ID != first.ID {
			return errors.New("staged confirmation not visible")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRosterSaveRejectsDoubleBoundDevice(t *testing.T) {
	ctx := context.Background()
	repo := NewRoster()
	now := time.Now()

	a, err := roster.NewStudent("Alice", "", now)
	require.NoError(t, err)
	a.BindDevice("AA:BB:CC:DD:EE:01", now)
	require.NoError(t, repo.Save(ctx, a))

	b, err := roster.NewStudent("Bob", "", now)
	require.NoError(t, err)
	b.BindDevice("AA:BB:CC:DD:EE:01", now)
	assert.ErrorIs(t, repo.Save(ctx, b), shared.ErrAlreadyExists)

	owner, ok, err := repo.OwnerOf(ctx, "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.ID, owner.ID)
}

func TestRosterRemoveReturnsStudent(t *testing.T) {
	ctx := context.Background()
	repo := NewRoster()
	now := time.Now()

	a, err := roster.NewStudent("Alice", "", now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, a))

	removed, err := repo.Remove(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", removed.Name)

	_, err = repo.Get(ctx, a.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAttendanceStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewAttendance()
	now := time.Now()

	_, err := store.Get(ctx, session, alice)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	rec := attendance.NewRecord(session, alice)
	_, err = rec.Enter(now)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, rec))

	// Mutating the saved pointer must not affect the store.
	require.NoError(t, rec.LeaveEarly(now.Add(time.Minute)))

	got, err := store.Get(ctx, session, alice)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresent, got.State())

	all, err := store.BySession(ctx, session)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestJournalAppendAssignsSequence(t *testing.T) {
	ctx := context.Background()
	j := NewJournal()
	now := time.Now()

	for i := 0; i < 5; i++ {
		e, err := journal.NewEntry(shared.EventObservationRecorded, session, now, journal.ObservationPayload{
			Identifier: "AA:BB:CC:DD:EE:01", RSSI: -55,
		})
		require.NoError(t, err)
		stamped, err := j.Append(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), stamped.Seq)
	}

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	page, err := j.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Seq)
	assert.Equal(t, uint64(4), page[1].Seq)

	tail, err := j.List(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, tail)
}

func TestJournalCloseStopsAppends(t *testing.T) {
	ctx := context.Background()
	j := NewJournal()
	j.Close()

	e, err := journal.NewEntry(shared.EventSessionClosed, session, time.Now(), nil)
	require.NoError(t, err)
	_, err = j.Append(ctx, e)
	assert.ErrorIs(t, err, shared.ErrClosed)
}

package identity

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

type fakeRoster struct {
	students map[shared.StudentID]*roster.Student
}

func newFakeRoster(students ...*roster.Student) *fakeRoster {
	r := &fakeRoster{students: make(map[shared.StudentID]*roster.Student)}
	for _, s := range students {
		r.students[s.ID] = s
	}
	return r
}

func (r *fakeRoster) Save(_ context.Context, s *roster.Student) error {
	r.students[s.ID] = s.Clone()
	return nil
}

func (r *fakeRoster) Get(_ context.Context, id shared.StudentID) (*roster.Student, error) {
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrUnknownStudent
	}
	return s.Clone(), nil
}

func (r *fakeRoster) Remove(_ context.Context, id shared.StudentID) (*roster.Student, error) {
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrUnknownStudent
	}
	delete(r.students, id)
	return s, nil
}

func (r *fakeRoster) OwnerOf(_ context.Context, id shared.DeviceID) (*roster.Student, bool, error) {
	for _, s := range r.students {
		if s.Owns(id) {
			return s.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (r *fakeRoster) All(_ context.Context) ([]*roster.Student, error) {
	out := make([]*roster.Student, 0, len(r.students))
	for _, s := range r.students {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeRoster) Count(_ context.Context) (int, error) {
	return len(r.students), nil
}

func studentWithDevice(t *testing.T, id shared.StudentID, name string, deviceID shared.DeviceID, registered time.Time) *roster.Student {
	t.Helper()
	s, err := roster.NewStudent(name, "", registered)
	require.NoError(t, err)
	s.ID = id
	if deviceID != "" {
		s.BindDevice(deviceID, registered)
	}
	return s
}

func TestKnownDeviceShortCircuitsWithFullConfidence(t *testing.T) {
	now := time.Now()
	owner := studentWithDevice(t, alice, "Alice", "AA:BB:CC:DD:EE:01", now)
	c := NewKnownDeviceClassifier(newFakeRoster(owner), NewFrequencyClassifier())

	got, err := c.Predict(context.Background(), recordFor(t, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alice, got[0].StudentID)
	assert.EqualValues(t, 1.0, got[0].Score)
}

func TestKnownDeviceFallsThroughToModel(t *testing.T) {
	now := time.Now()
	owner := studentWithDevice(t, alice, "Alice", "AA:BB:CC:DD:EE:09", now)
	model := NewFrequencyClassifier()
	require.NoError(t, model.Retrain(context.Background(), []TrainingExample{
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: bob, Sessions: 3},
	}))
	c := NewKnownDeviceClassifier(newFakeRoster(owner), model)

	got, err := c.Predict(context.Background(), recordFor(t, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, bob, got[0].StudentID)
}

func TestKnownDeviceBreaksTiesByEarliestRegistration(t *testing.T) {
	now := time.Now()
	older := studentWithDevice(t, bob, "Bob", "AA:BB:CC:DD:EE:08", now.Add(-48*time.Hour))
	newer := studentWithDevice(t, alice, "Alice", "AA:BB:CC:DD:EE:09", now)
	model := NewFrequencyClassifier()
	require.NoError(t, model.Retrain(context.Background(), []TrainingExample{
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: alice, Sessions: 2},
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: bob, Sessions: 2},
	}))
	c := NewKnownDeviceClassifier(newFakeRoster(older, newer), model)

	got, err := c.Predict(context.Background(), recordFor(t, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, bob, got[0].StudentID)
	assert.Equal(t, alice, got[1].StudentID)
}

func TestKnownDeviceWithoutModelPredictsOnlyExactMatches(t *testing.T) {
	c := NewKnownDeviceClassifier(newFakeRoster(), nil)

	got, err := c.Predict(context.Background(), recordFor(t, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

// journalEntries builds a small confirmed-assignment history: alice confirmed
// for device :01 in two sessions, bob once in one of them.
func journalEntries(t *testing.T, now time.Time) []journal.Entry {
	t.Helper()
	sessionB := shared.SessionID("22222222-2222-2222-2222-222222222222")

	var entries []journal.Entry
	add := func(kind shared.EventType, s shared.SessionID, at time.Time, payload interface{}) {
		e, err := journal.NewEntry(kind, s, at, payload)
		require.NoError(t, err)
		e.Seq = uint64(len(entries) + 1)
		entries = append(entries, e)
	}

	add(shared.EventSessionOpened, session, now, nil)
	add(shared.EventAssignmentConfirmed, session, now.Add(time.Minute), journal.AssignmentPayload{
		Identifier: "AA:BB:CC:DD:EE:01", StudentID: alice, Score: 0.95,
	})
	add(shared.EventAssignmentConfirmed, session, now.Add(2*time.Minute), journal.AssignmentPayload{
		Identifier: "AA:BB:CC:DD:EE:01", StudentID: bob, Score: 0.91,
	})
	add(shared.EventAssignmentRejected, session, now.Add(3*time.Minute), journal.AssignmentPayload{
		Identifier: "AA:BB:CC:DD:EE:02", StudentID: carol,
	})
	add(shared.EventSessionOpened, sessionB, now.Add(time.Hour), nil)
	add(shared.EventAssignmentConfirmed, sessionB, now.Add(61*time.Minute), journal.AssignmentPayload{
		Identifier: "AA:BB:CC:DD:EE:01", StudentID: alice, Score: 0.97,
	})
	return entries
}

package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/identity"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/persistence/memory"
)

var (
	testSession  = shared.SessionID("11111111-1111-1111-1111-111111111111")
	otherSession = shared.SessionID("22222222-2222-2222-2222-222222222222")
	aliceDevice  = shared.DeviceID("AA:BB:CC:DD:EE:01")
	strayDevice  = shared.DeviceID("AA:BB:CC:DD:EE:02")
	testBase     = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

// stubClassifier returns a fixed prediction, or a fixed error.
type stubClassifier struct {
	candidates []identity.Candidate
	err        error
}

func (s *stubClassifier) Predict(context.Context, *device.Record) ([]identity.Candidate, error) {
	return s.candidates, s.err
}

func (s *stubClassifier) Retrain(context.Context, []identity.TrainingExample) error {
	return nil
}

// testEnv wires the handlers over fresh in-memory stores.
type testEnv struct {
	registry   *memory.Registry
	roster     *memory.Roster
	attendance *memory.Attendance
	journal    *memory.Journal
	resolver   *identity.Resolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		registry:   memory.NewRegistry(0),
		roster:     memory.NewRoster(),
		attendance: memory.NewAttendance(),
		journal:    memory.NewJournal(),
		resolver:   identity.NewResolver(identity.DefaultPolicy()),
	}
}

func (e *testEnv) observationHandler(classifier identity.Classifier) *RecordObservationHandler {
	return NewRecordObservationHandler(e.registry, e.attendance, classifier, e.resolver, e.journal, nil, nil)
}

func (e *testEnv) overrideHandler() *OverrideHandler {
	return NewOverrideHandler(e.registry, e.attendance, e.roster, e.resolver, e.journal, nil, nil)
}

func (e *testEnv) rosterHandler() *RosterHandler {
	return NewRosterHandler(e.roster, e.registry, e.resolver, e.journal, nil, nil)
}

func (e *testEnv) sessionHandler(cfg SessionHandlerConfig) *SessionHandler {
	return NewSessionHandler(e.registry, e.attendance, e.journal, nil, nil, nil, nil, cfg, nil)
}

// enroll adds a student with the given bound devices and returns the ID.
func (e *testEnv) enroll(t *testing.T, name string, devices ...shared.DeviceID) shared.StudentID {
	t.Helper()
	student, err := roster.NewStudent(name, "", testBase)
	require.NoError(t, err)
	for _, id := range devices {
		student.BindDevice(id, testBase)
	}
	require.NoError(t, e.roster.Save(context.Background(), student))
	return student.ID
}

// observe builds a validated observation for the test session.
func observe(t *testing.T, id shared.DeviceID, at time.Time) device.Observation {
	t.Helper()
	obs, err := device.NewObservation(id, -55, at, testSession)
	require.NoError(t, err)
	return obs
}

// journalKinds lists the event kinds in journal order.
func (e *testEnv) journalKinds(t *testing.T) []shared.EventType {
	t.Helper()
	entries, err := e.journal.List(context.Background(), 0, 1000)
	require.NoError(t, err)
	kinds := make([]shared.EventType, 0, len(entries))
	for _, entry := range entries {
		kinds = append(kinds, entry.Kind)
	}
	return kinds
}

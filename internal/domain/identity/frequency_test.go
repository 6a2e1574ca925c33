package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

var (
	session = shared.SessionID("11111111-1111-1111-1111-111111111111")
	alice   = shared.StudentID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	bob     = shared.StudentID("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	carol   = shared.StudentID("cccccccc-cccc-cccc-cccc-cccccccccccc")
)

func recordFor(t *testing.T, id string) *device.Record {
	t.Helper()
	did, err := shared.NewDeviceID(id)
	require.NoError(t, err)
	obs, err := device.NewObservation(did, -55, time.Now(), session)
	require.NoError(t, err)
	return device.NewRecord(obs, device.DefaultHistorySize)
}

func TestFrequencyClassifierUntrainedPredictsNothing(t *testing.T) {
	c := NewFrequencyClassifier()

	got, err := c.Predict(context.Background(), recordFor(t, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, c.Trained())
}

func TestFrequencyClassifierRanksByCoOccurrence(t *testing.T) {
	c := NewFrequencyClassifier()
	err := c.Retrain(context.Background(), []TrainingExample{
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: alice, Sessions: 9},
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: bob, Sessions: 1},
		{Identifier: "AA:BB:CC:DD:EE:02", StudentID: bob, Sessions: 4},
	})
	require.NoError(t, err)
	assert.True(t, c.Trained())

	got, err := c.Predict(context.Background(), recordFor(t, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, alice, got[0].StudentID)
	assert.InDelta(t, 0.9, float64(got[0].Score), 0.001)
	assert.Equal(t, bob, got[1].StudentID)
	assert.InDelta(t, 0.1, float64(got[1].Score), 0.001)
}

func TestFrequencyClassifierUnknownIdentifierPredictsNothing(t *testing.T) {
	c := NewFrequencyClassifier()
	err := c.Retrain(context.Background(), []TrainingExample{
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: alice, Sessions: 3},
	})
	require.NoError(t, err)

	got, err := c.Predict(context.Background(), recordFor(t, "FF:FF:FF:FF:FF:FF"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFrequencyClassifierCancelledRetrainKeepsOldModel(t *testing.T) {
	c := NewFrequencyClassifier()
	err := c.Retrain(context.Background(), []TrainingExample{
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: alice, Sessions: 3},
	})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Retrain(cancelled, []TrainingExample{
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: bob, Sessions: 10},
	})
	require.Error(t, err)

	got, err := c.Predict(context.Background(), recordFor(t, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alice, got[0].StudentID)
}

func TestFrequencyClassifierSkipsDegenerateExamples(t *testing.T) {
	c := NewFrequencyClassifier()
	err := c.Retrain(context.Background(), []TrainingExample{
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: alice, Sessions: 0},
		{Identifier: "", StudentID: alice, Sessions: 5},
		{Identifier: "AA:BB:CC:DD:EE:01", StudentID: "", Sessions: 5},
	})
	require.NoError(t, err)

	got, err := c.Predict(context.Background(), recordFor(t, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

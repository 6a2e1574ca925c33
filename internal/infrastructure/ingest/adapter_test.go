package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

var session = shared.SessionID("11111111-1111-1111-1111-111111111111")

func TestNormalizeAcceptsValidEvent(t *testing.T) {
	a := NewAdapter(-70, nil)
	now := time.Now()

	obs, err := a.Normalize(RawEvent{Identifier: "aa:bb:cc:dd:ee:01", RSSI: -55, Timestamp: now}, session)
	require.NoError(t, err)
	assert.Equal(t, shared.DeviceID("AA:BB:CC:DD:EE:01"), obs.ID)
	assert.EqualValues(t, -55, obs.RSSI)
	assert.Equal(t, now, obs.At)
	assert.EqualValues(t, 0, a.Dropped())
}

func TestNormalizeDropsAndCountsMalformed(t *testing.T) {
	a := NewAdapter(-70, nil)
	now := time.Now()

	cases := []RawEvent{
		{Identifier: "", RSSI: -55, Timestamp: now},
		{Identifier: "AA:BB:CC:DD:EE:01", RSSI: -55},
		{Identifier: "AA:BB:CC:DD:EE:01", RSSI: -500, Timestamp: now},
	}
	for _, raw := range cases {
		_, err := a.Normalize(raw, session)
		assert.ErrorIs(t, err, shared.ErrMalformedObservation)
	}
	assert.EqualValues(t, 3, a.Dropped())
	assert.EqualValues(t, 0, a.Filtered())
}

func TestNormalizeFiltersWeakSignals(t *testing.T) {
	a := NewAdapter(-70, nil)
	now := time.Now()

	_, err := a.Normalize(RawEvent{Identifier: "AA:BB:CC:DD:EE:01", RSSI: -80, Timestamp: now}, session)
	assert.ErrorIs(t, err, shared.ErrSignalBelowThreshold)
	assert.EqualValues(t, 1, a.Filtered())
	assert.EqualValues(t, 0, a.Dropped())

	// At the threshold is still accepted.
	_, err = a.Normalize(RawEvent{Identifier: "AA:BB:CC:DD:EE:01", RSSI: -70, Timestamp: now}, session)
	assert.NoError(t, err)
}

func TestJSONLSourceStreamsEvents(t *testing.T) {
	input := strings.Join([]string{
		`{"identifier":"AA:BB:CC:DD:EE:01","name":"phone","rssi":-61,"timestamp":"2026-03-02T10:00:00Z"}`,
		``,
		`not json at all`,
		`{"identifier":"AA:BB:CC:DD:EE:02","rssi":-58,"timestamp":"2026-03-02T10:00:10Z"}`,
	}, "\n")

	src := NewJSONLSource(strings.NewReader(input), nil)
	var events []RawEvent
	for ev := range src.Events(context.Background()) {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", events[0].Identifier)
	assert.Equal(t, "phone", events[0].Name)
	// The broken line surfaces as a zero event for the adapter to count.
	assert.Equal(t, RawEvent{}, events[1])
	assert.Equal(t, "AA:BB:CC:DD:EE:02", events[2].Identifier)
}

func TestJSONLSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewJSONLSource(strings.NewReader(`{"identifier":"AA:BB:CC:DD:EE:01","rssi":-61,"timestamp":"2026-03-02T10:00:00Z"}`+"\n"), nil)

	cancel()
	ch := src.Events(ctx)

	// Channel closes without requiring the event to be consumed.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("source did not stop after cancel")
		}
	}
}

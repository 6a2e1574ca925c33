package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

const testSession = shared.SessionID("11111111-1111-1111-1111-111111111111")

func testObservation(t *testing.T, suffix byte) device.Observation {
	t.Helper()
	id := shared.DeviceID("AA:BB:CC:DD:EE:0" + string('0'+suffix))
	obs, err := device.NewObservation(id, -60, time.Now(), testSession)
	require.NoError(t, err)
	return obs
}

func TestPipelineDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []shared.DeviceID
	p := New(Config{QueueSize: 8}, func(_ context.Context, obs device.Observation) error {
		mu.Lock()
		seen = append(seen, obs.ID)
		mu.Unlock()
		return nil
	}, nil)

	ctx := context.Background()
	p.Start(ctx, 0)
	defer p.Stop()

	for i := byte(1); i <= 5; i++ {
		require.NoError(t, p.Enqueue(ctx, testObservation(t, i)))
	}
	require.NoError(t, p.Flush(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 5)
	for i, id := range seen {
		assert.Equal(t, testObservation(t, byte(i+1)).ID, id)
	}
}

func TestPipelineFlushWaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int32
	p := New(Config{QueueSize: 8}, func(context.Context, device.Observation) error {
		<-release
		handled.Add(1)
		return nil
	}, nil)

	ctx := context.Background()
	p.Start(ctx, 0)
	defer p.Stop()

	require.NoError(t, p.Enqueue(ctx, testObservation(t, 1)))

	flushed := make(chan error, 1)
	go func() {
		flushed <- p.Flush(ctx)
	}()

	select {
	case <-flushed:
		t.Fatal("flush returned while handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-flushed)
	assert.EqualValues(t, 1, handled.Load())
}

func TestPipelineFlushDrainsEveryAcceptedObservation(t *testing.T) {
	var handled atomic.Int32
	p := New(Config{QueueSize: 4}, func(context.Context, device.Observation) error {
		handled.Add(1)
		return nil
	}, nil)

	ctx := context.Background()
	p.Start(ctx, 0)
	defer p.Stop()

	// Tight enqueue-then-flush cycles land in the window where the consumer
	// has taken an observation off the queue but not finished handling it.
	// Every accepted observation must be handled by the time Flush returns.
	for i := 1; i <= 500; i++ {
		require.NoError(t, p.Enqueue(ctx, testObservation(t, byte(i%5+1))))
		require.NoError(t, p.Flush(ctx))
		require.EqualValues(t, i, handled.Load(), "iteration %d", i)
	}
}

func TestPipelineRejectsAfterStop(t *testing.T) {
	p := New(Config{QueueSize: 1}, func(context.Context, device.Observation) error {
		return nil
	}, nil)

	ctx := context.Background()
	p.Start(ctx, 0)
	p.Stop()

	err := p.Enqueue(ctx, testObservation(t, 1))
	assert.ErrorIs(t, err, shared.ErrClosed)
}

func TestPipelineEnqueueHonorsContext(t *testing.T) {
	p := New(Config{QueueSize: 1}, func(context.Context, device.Observation) error {
		return nil
	}, nil)
	// Consumer never started, so the second enqueue blocks on a full queue.

	ctx := context.Background()
	require.NoError(t, p.Enqueue(ctx, testObservation(t, 1)))

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := p.Enqueue(cancelled, testObservation(t, 2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Stop()
}

func TestPipelineRunsSweep(t *testing.T) {
	var sweeps atomic.Int32
	p := New(Config{QueueSize: 1}, func(context.Context, device.Observation) error {
		return nil
	}, func(context.Context, time.Time) error {
		sweeps.Add(1)
		return nil
	})

	p.Start(context.Background(), 10*time.Millisecond)
	defer p.Stop()

	assert.Eventually(t, func() bool {
		return sweeps.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

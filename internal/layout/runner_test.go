package layout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *frameRecorder) record(frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *frameRecorder) snapshot() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func TestRunnerEmitsFramesUntilSettled(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	defer runner.Stop()

	recorder := &frameRecorder{}
	require.NoError(t, runner.Start(context.Background(), buildGraph(t, 6), 500, 500, recorder.record))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	final, err := runner.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, final.Settled)

	frames := recorder.snapshot()
	require.NotEmpty(t, frames)
	for i, frame := range frames {
		assert.Equal(t, i+1, frame.Tick, "ticks are sequential and never re-entered")
		assert.Len(t, frame.Nodes, 6)
	}
	assert.True(t, frames[len(frames)-1].Settled)
	assert.True(t, runner.Running(), "a settled run idles until stopped")
}

func TestRunnerEmptyGraphSettlesImmediately(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	recorder := &frameRecorder{}
	require.NoError(t, runner.Start(context.Background(), graph.Graph{}, 500, 500, recorder.record))

	frames := recorder.snapshot()
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Settled)
	assert.Empty(t, frames[0].Nodes)
	assert.False(t, runner.Running())

	frame, err := runner.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, frame.Settled)
}

func TestRunnerRejectsInvalidCanvas(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	err := runner.Start(context.Background(), buildGraph(t, 2), 0, 500, nil)
	assert.ErrorIs(t, err, ErrInvalidCanvas)
}

func TestRunnerStartStopsPriorRun(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	defer runner.Stop()

	var firstCalls atomic.Int32
	require.NoError(t, runner.Start(context.Background(), buildGraph(t, 8), 500, 500, func(Frame) {
		firstCalls.Add(1)
	}))
	require.Eventually(t, func() bool { return firstCalls.Load() >= 3 }, 5*time.Second, time.Millisecond)

	recorder := &frameRecorder{}
	require.NoError(t, runner.Start(context.Background(), buildGraph(t, 8), 500, 500, recorder.record))
	stoppedAt := firstCalls.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := runner.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, stoppedAt, firstCalls.Load(), "the prior simulation emits nothing after restart")
	frames := recorder.snapshot()
	require.NotEmpty(t, frames)
	assert.Equal(t, 1, frames[0].Tick)
}

func TestRunnerCarriesPositionsForward(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	defer runner.Stop()

	g := buildGraph(t, 5)
	require.NoError(t, runner.Start(context.Background(), g, 500, 500, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	settled, err := runner.Wait(ctx)
	require.NoError(t, err)

	recorder := &frameRecorder{}
	require.NoError(t, runner.Start(context.Background(), g, 500, 500, recorder.record))
	require.Eventually(t, func() bool { return len(recorder.snapshot()) > 0 }, 5*time.Second, time.Millisecond)

	first := recorder.snapshot()[0]
	for _, node := range first.Nodes {
		before, ok := settled.Position(node.ID)
		require.True(t, ok)
		assert.InDelta(t, before.X, node.X, 20)
		assert.InDelta(t, before.Y, node.Y, 20)
	}
}

func TestRunnerReheatResumes(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	defer runner.Stop()

	recorder := &frameRecorder{}
	require.NoError(t, runner.Start(context.Background(), buildGraph(t, 4), 400, 400, recorder.record))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	settled, err := runner.Wait(ctx)
	require.NoError(t, err)

	require.True(t, runner.Reheat(0))
	resumed, err := runner.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, resumed.Settled)
	assert.Greater(t, resumed.Tick, settled.Tick)
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	runner.Stop()
	require.NoError(t, runner.Start(context.Background(), buildGraph(t, 3), 300, 300, nil))
	runner.Stop()
	runner.Stop()
	assert.False(t, runner.Running())
	assert.False(t, runner.Reheat(0))
}

func TestRunnerStopsWhenContextCancelled(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	require.NoError(t, runner.Start(ctx, buildGraph(t, 6), 500, 500, func(Frame) { calls.Add(1) }))
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 5*time.Second, time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
	runner.Stop()
}

func TestRunnerReleasesRunWhenContextEnds(t *testing.T) {
	runner := NewRunner(time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, runner.Start(ctx, buildGraph(t, 6), 500, 500, nil))
	require.True(t, runner.Running())

	cancel()
	require.Eventually(t, func() bool { return !runner.Running() }, 5*time.Second, time.Millisecond)
	assert.False(t, runner.Reheat(0.5))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	_, err := runner.Wait(waitCtx)
	require.NoError(t, err)
	runner.Stop()
}

func TestRunnerConcurrentStartsLeaveOneLoop(t *testing.T) {
	runner := NewRunner(time.Hour, nil)
	g := buildGraph(t, 4)

	var group sync.WaitGroup
	for index := 0; index < 8; index++ {
		group.Add(1)
		go func() {
			defer group.Done()
			assert.NoError(t, runner.Start(context.Background(), g, 400, 400, nil))
		}()
	}
	group.Wait()

	assert.Equal(t, int32(1), runner.live.Load())
	runner.Stop()
	assert.Zero(t, runner.live.Load())
}

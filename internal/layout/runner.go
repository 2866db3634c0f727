package layout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
	"go.uber.org/zap"
)

// DefaultTickInterval paces the Runner at roughly one tick per display frame.
const DefaultTickInterval = 16 * time.Millisecond

// FrameFunc receives every frame produced by a Runner. It runs on the
// Runner's goroutine and must not call Stop or Start.
type FrameFunc func(Frame)

// Runner drives at most one simulation at a time on a ticker.
type Runner struct {
	interval time.Duration
	logger   *zap.Logger

	// startMu serializes Start so a run is always stopped before the next is installed.
	startMu   sync.Mutex
	live      atomic.Int32
	mu        sync.Mutex
	sim       *Simulation
	cancel    context.CancelFunc
	done      chan struct{}
	wake      chan struct{}
	settledCh chan struct{}
	last      Frame
	runs      int
}

// NewRunner constructs a Runner; a non-positive interval uses DefaultTickInterval.
func NewRunner(interval time.Duration, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		interval:  interval,
		logger:    logger,
		settledCh: closedChannel(),
		last:      EmptySettledFrame(),
	}
}

// Start stops any running simulation and starts a new one for the graph.
// Nodes present in the previous run keep their positions. An empty graph
// emits one empty settled frame and starts nothing.
func (r *Runner) Start(ctx context.Context, g graph.Graph, width, height float64, onFrame FrameFunc, options ...Option) error {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	r.Stop()

	r.mu.Lock()
	previous := r.last
	r.mu.Unlock()

	options = append([]Option{WithPrevious(previous)}, options...)
	sim, err := New(g, width, height, options...)
	if errors.Is(err, ErrNoNodes) {
		empty := EmptySettledFrame()
		r.mu.Lock()
		r.last = empty
		r.settledCh = closedChannel()
		r.mu.Unlock()
		if onFrame != nil {
			onFrame(empty)
		}
		return nil
	}
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	wake := make(chan struct{}, 1)

	r.mu.Lock()
	r.sim = sim
	r.cancel = cancel
	r.done = done
	r.wake = wake
	r.settledCh = make(chan struct{})
	r.runs++
	run := r.runs
	r.mu.Unlock()

	r.logger.Debug("layout simulation started",
		zap.Int("run", run),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)))

	r.live.Add(1)
	go r.loop(runCtx, sim, wake, done, onFrame, run)
	return nil
}

// Stop cancels the running simulation and waits for its goroutine to exit.
// The last frame is kept for the next Start.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.sim = nil
	r.cancel = nil
	r.done = nil
	r.wake = nil
	if !isClosed(r.settledCh) {
		close(r.settledCh)
	}
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Reheat resumes the running simulation from its current positions.
// It reports false when nothing is running.
func (r *Runner) Reheat(alpha float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sim == nil {
		return false
	}
	r.sim.Reheat(alpha)
	if isClosed(r.settledCh) {
		r.settledCh = make(chan struct{})
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// Wait blocks until the current simulation settles or is stopped, and
// returns the last frame.
func (r *Runner) Wait(ctx context.Context) (Frame, error) {
	r.mu.Lock()
	settled := r.settledCh
	done := r.done
	r.mu.Unlock()

	select {
	case <-settled:
	case <-done:
	case <-ctx.Done():
		return r.Last(), ctx.Err()
	}
	return r.Last(), nil
}

// Last returns the most recent frame.
func (r *Runner) Last() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Running reports whether a simulation is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim != nil
}

func (r *Runner) loop(ctx context.Context, sim *Simulation, wake <-chan struct{}, done chan<- struct{}, onFrame FrameFunc, run int) {
	defer close(done)
	defer r.live.Add(-1)
	defer r.release(sim)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	idle := false
	for {
		if idle {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				idle = false
				ticker.Reset(r.interval)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		if r.sim != sim {
			r.mu.Unlock()
			return
		}
		if sim.Settled() {
			r.mu.Unlock()
			ticker.Stop()
			idle = true
			continue
		}
		frame := sim.Step()
		r.last = frame
		r.mu.Unlock()

		if onFrame != nil {
			onFrame(frame)
		}
		if frame.Settled {
			r.mu.Lock()
			if r.sim == sim && sim.Settled() && !isClosed(r.settledCh) {
				close(r.settledCh)
			}
			r.mu.Unlock()
			r.logger.Debug("layout simulation settled", zap.Int("run", run), zap.Int("ticks", frame.Tick))
			ticker.Stop()
			idle = true
		}
	}
}

// release clears a run that ended on its own, such as through the caller's
// context. A run already replaced or stopped is left alone.
func (r *Runner) release(sim *Simulation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sim != sim {
		return
	}
	r.sim = nil
	if !isClosed(r.settledCh) {
		close(r.settledCh)
	}
}

func closedChannel() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

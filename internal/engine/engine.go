// Package engine runs the recurring analysis cycle: a single scheduling
// loop that never overlaps cycles, bounded by step and cycle deadlines,
// with exponential backoff on repeated failure.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lifeos/internal/analysis"
	"lifeos/internal/archive"
	"lifeos/internal/clock"
	"lifeos/internal/config"
	"lifeos/internal/coverage"
	"lifeos/internal/dispatch"
	"lifeos/internal/events"
	"lifeos/internal/goal"
	"lifeos/internal/heartbeat"
	"lifeos/internal/life"
	"lifeos/internal/provider"
	"lifeos/internal/state"
)

// Step names, in execution order. Each is observable via step events and
// contributes a heartbeat.
const (
	StepGatherContext = "gather-context"
	StepAnalyzeAreas  = "analyze-life-areas"
	StepGenInsights   = "generate-insights"
	StepPlanActions   = "plan-actions"
	StepExecute       = "execute-actions"
	StepPrompts       = "check-proactive-prompts"
	StepUpdateScores  = "update-life-scores"
)

// dispatchPriority is the floor below which planned actions stay pending
// instead of being executed this cycle.
const dispatchPriority = 8

// Analyzer produces the per-area analyses for one cycle.
type Analyzer interface {
	Analyze(analysis.Input) map[life.Area]life.Analysis
}

// Options wires the engine's collaborators.
type Options struct {
	Clock      clock.Clock
	Bus        *events.Bus
	Logger     *zap.Logger
	Registry   *provider.Registry
	Analyzer   Analyzer // nil means the default rule-based analyzer
	Goals      *goal.Manager
	Dispatcher *dispatch.Dispatcher
	Store      *state.Store
	Heartbeat  *heartbeat.Recorder
	Archive    *archive.Store // optional
	Durations  config.Durations
	// MaxConsecutiveFailures triggers the critical-failure path; 0 means 5.
	MaxConsecutiveFailures int
	// DigestPath, when non-empty, enables the markdown insights digest.
	DigestPath string
}

// Engine is the cycle scheduler. It is the single writer of the engine
// state document.
type Engine struct {
	clk        clock.Clock
	bus        *events.Bus
	logger     *zap.Logger
	registry   *provider.Registry
	covEval    *coverage.Evaluator
	analyzer   Analyzer
	generator  *analysis.Generator
	planner    *analysis.Planner
	goals      *goal.Manager
	dispatcher *dispatch.Dispatcher
	store      *state.Store
	hb         *heartbeat.Recorder
	arch       *archive.Store
	dur        config.Durations
	maxFails   int
	digestPath string

	mu           sync.Mutex
	running      bool
	inFlight     bool
	currentStep  string
	stepStarted  time.Time
	backoffUntil time.Time
	cancelCycle  context.CancelFunc
	droppedTicks int
	optimization bool // optimization-started already announced
	stopCh       chan struct{}
	loopDone     chan struct{}
	wg           sync.WaitGroup

	// st is owned by the cycle goroutine between Start and Stop. Cycles
	// never overlap, so no lock guards it.
	st *state.EngineState
}

// New assembles an engine from its collaborators.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFails := opts.MaxConsecutiveFailures
	if maxFails <= 0 {
		maxFails = 5
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = analysis.NewAnalyzer()
	}
	return &Engine{
		clk:        opts.Clock,
		bus:        opts.Bus,
		logger:     logger.Named("engine"),
		registry:   opts.Registry,
		covEval:    coverage.NewEvaluator(opts.Registry.Declarations()),
		analyzer:   analyzer,
		generator:  analysis.NewGenerator(),
		planner:    analysis.NewPlanner(),
		goals:      opts.Goals,
		dispatcher: opts.Dispatcher,
		store:      opts.Store,
		hb:         opts.Heartbeat,
		arch:       opts.Archive,
		dur:        opts.Durations,
		maxFails:   maxFails,
		digestPath: opts.DigestPath,
	}
}

// Start begins recurring cycles at the given interval. Idempotent: a second
// call while running is a no-op. interval <= 0 falls back to the configured
// scheduler interval.
func (e *Engine) Start(interval time.Duration) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.loopDone = make(chan struct{})
	e.mu.Unlock()

	if interval <= 0 {
		interval = e.dur.Interval
	}

	e.bus.Emit(events.TopicBootStarted, "engine boot", nil)
	e.st = e.store.Load()
	e.dispatcher.Seed(e.st.CompletedActions, e.clk.Now())
	initCtx, cancelInit := context.WithTimeout(context.Background(), e.dur.StepTimeout)
	e.goals.Initialize(initCtx, goal.Snapshot{
		Current:     e.st.CurrentGoal,
		Criteria:    e.st.GoalCriteria,
		Tasks:       e.st.GoalTasks,
		OnHoldGoals: e.st.OnHoldGoals,
	}, nil)
	cancelInit()

	if rec := e.st.ErrorRecovery; rec.ConsecutiveFailures > 0 && !rec.LastFailureTime.IsZero() {
		e.mu.Lock()
		e.backoffUntil = rec.LastFailureTime.Add(time.Duration(rec.BackoffMs) * time.Millisecond)
		e.mu.Unlock()
	}
	if !e.st.Initialized {
		e.st.Initialized = true
		e.bus.Emit(events.TopicInitialized, "first boot", nil)
	}

	e.hb.Beat()
	e.bus.Emit(events.TopicBootComplete, fmt.Sprintf("interval %s", interval), nil)
	e.logger.Info("engine started",
		zap.Duration("interval", interval),
		zap.Int("cycle_count", e.st.CycleCount))

	go e.loop(interval)
}

// Stop requests orderly shutdown: the in-flight cycle is cancelled, the
// loop drained, state flushed, heartbeat marked stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	cancel := e.cancelCycle
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-e.loopDone
	e.wg.Wait()

	if e.st != nil {
		if err := e.store.Save(e.st); err != nil {
			e.logger.Error("final state flush failed", zap.Error(err))
		}
	}
	e.hb.Stop()
	e.logger.Info("engine stopped")
}

// AbortCurrentCycle cooperatively cancels the running cycle, if any. The
// scheduler keeps ticking.
func (e *Engine) AbortCurrentCycle() {
	e.mu.Lock()
	cancel := e.cancelCycle
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// IsRunning reports whether the scheduler loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CurrentStep names the step the in-flight cycle is executing, "" when idle.
func (e *Engine) CurrentStep() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStep
}

// StepDuration reports how long the current step has been running.
func (e *Engine) StepDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentStep == "" {
		return 0
	}
	return e.clk.Now().Sub(e.stepStarted)
}

// DroppedTicks counts timer ticks discarded because a cycle was in flight.
func (e *Engine) DroppedTicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.droppedTicks
}

// loop is the single scheduling goroutine. It always returns to the select
// immediately; cycles run in a child goroutine so ticks during a running
// cycle are observed (and dropped) rather than queued.
func (e *Engine) loop(interval time.Duration) {
	defer close(e.loopDone)
	ticker := e.clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C():
			e.onTick(now)
		}
	}
}

func (e *Engine) onTick(now time.Time) {
	e.mu.Lock()
	if e.inFlight {
		e.droppedTicks++
		e.mu.Unlock()
		e.logger.Warn("tick dropped, cycle in progress")
		return
	}
	if now.Before(e.backoffUntil) {
		until := e.backoffUntil
		e.mu.Unlock()
		e.logger.Warn("tick skipped, backoff in effect",
			zap.Time("until", until))
		return
	}
	e.inFlight = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelCycle = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runCycle(ctx, now)
		cancel()
		e.mu.Lock()
		e.inFlight = false
		e.cancelCycle = nil
		e.currentStep = ""
		e.mu.Unlock()
	}()
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lifeos/internal/analysis"
	"lifeos/internal/coverage"
	"lifeos/internal/dispatch"
	"lifeos/internal/events"
	"lifeos/internal/goal"
	"lifeos/internal/life"
	"lifeos/internal/provider"
	"lifeos/internal/state"
)

// Progress is the read-only cycle summary published on the bus after each
// successful cycle.
type Progress struct {
	CycleCount     int               `json:"cycle_count"`
	Coverage       int               `json:"coverage"`
	Ready          bool              `json:"ready"`
	AreaScores     map[life.Area]int `json:"area_scores"`
	GoalTitle      string            `json:"goal_title,omitempty"`
	Insights       int               `json:"insights"`
	PendingActions int               `json:"pending_actions"`
}

// cycleData carries intermediate results between steps of one cycle.
type cycleData struct {
	pctx     *provider.Context
	cov      coverage.Snapshot
	ready    bool
	analyses map[life.Area]life.Analysis
	insights []life.Insight
	actions  []life.Action
}

func (e *Engine) runCycle(ctx context.Context, tick time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.recordFailure(fmt.Errorf("cycle panic: %v", r))
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, e.dur.CycleTimeout)
	defer cancel()

	e.bus.Emit(events.TopicCycleStart, fmt.Sprintf("cycle %d", e.st.CycleCount+1), nil)
	e.hb.Beat()

	c, err := e.runSteps(cctx)
	switch {
	case err == nil:
		e.recordSuccess(c)
	case errors.Is(ctx.Err(), context.Canceled):
		// Cooperative abort: not a failure, backoff untouched.
		e.logger.Info("cycle aborted")
		e.bus.Emit(events.TopicCycleAborted, err.Error(), nil)
	default:
		e.recordFailure(err)
	}
}

// runSteps executes the fixed step sequence. A step failure substitutes
// default outputs and continues; only a gather-context failure or the cycle
// deadline aborts.
func (e *Engine) runSteps(cctx context.Context) (*cycleData, error) {
	c := &cycleData{}

	if err := e.step(cctx, StepGatherContext, func(sctx context.Context) (func(), error) {
		return e.stepGather(sctx, c)
	}); err != nil {
		return c, fmt.Errorf("%s: %w", StepGatherContext, err)
	}

	rest := []struct {
		name string
		fn   func(context.Context, *cycleData) (func(), error)
	}{
		{StepAnalyzeAreas, e.stepAnalyze},
		{StepGenInsights, e.stepInsights},
		{StepPlanActions, e.stepPlan},
		{StepExecute, e.stepExecute},
		{StepPrompts, e.stepPrompts},
		{StepUpdateScores, e.stepUpdateScores},
	}
	for _, s := range rest {
		if err := cctx.Err(); err != nil {
			return c, fmt.Errorf("cycle deadline: %w", err)
		}
		fn := s.fn
		if err := e.step(cctx, s.name, func(sctx context.Context) (func(), error) {
			return fn(sctx, c)
		}); err != nil {
			var pe *panicError
			if errors.As(err, &pe) {
				return c, err
			}
			// Logged inside step; downstream steps see defaults.
			continue
		}
	}
	if err := cctx.Err(); err != nil {
		return c, err
	}

	// Derived scores and goal snapshots are flushed once per cycle; the
	// digest is best-effort, the state save is not.
	if e.digestPath != "" {
		if err := writeDigest(e.digestPath, e.st, e.clk.Now()); err != nil {
			e.logger.Warn("digest write failed", zap.Error(err))
		}
	}
	if err := e.store.Save(e.st); err != nil {
		return c, fmt.Errorf("persist state: %w", err)
	}
	return c, nil
}

// panicError marks a step failure that must fail the whole cycle.
type panicError struct{ v any }

func (p *panicError) Error() string { return fmt.Sprintf("step panic: %v", p.v) }

// step runs one named step under the step deadline, updating observers and
// the heartbeat on both edges. The step body runs in a child goroutine and
// hands back a commit closure; the closure is applied here only when the
// step finished inside its deadline, so an overrunning body can never race
// the rest of the cycle. The overrunning goroutine is left to drain.
func (e *Engine) step(cctx context.Context, name string, fn func(context.Context) (func(), error)) error {
	e.mu.Lock()
	e.currentStep = name
	e.stepStarted = e.clk.Now()
	e.mu.Unlock()
	e.bus.Emit(events.TopicStepStarted, name, nil)

	sctx, cancel := context.WithTimeout(cctx, e.dur.StepTimeout)
	defer cancel()

	type result struct {
		commit func()
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: &panicError{v: r}}
			}
		}()
		commit, err := fn(sctx)
		ch <- result{commit: commit, err: err}
	}()

	var err error
	select {
	case r := <-ch:
		err = r.err
		if err == nil && r.commit != nil {
			r.commit()
		}
	case <-sctx.Done():
		err = fmt.Errorf("step deadline exceeded: %w", sctx.Err())
	}

	e.hb.Beat()
	if err != nil {
		e.logger.Warn("step failed", zap.String("step", name), zap.Error(err))
		e.bus.Emit(events.TopicStepCompleted, name, map[string]string{"error": err.Error()})
		return err
	}
	e.bus.Emit(events.TopicStepCompleted, name, nil)
	return nil
}

func (e *Engine) stepGather(sctx context.Context, c *cycleData) (func(), error) {
	pctx := e.registry.GatherAll(sctx, e.dur.ProviderTimeout)
	if err := sctx.Err(); err != nil {
		return nil, err
	}

	cov := e.covEval.Evaluate(pctx)
	ready := coverage.Gate(cov.Overall)
	return func() {
		c.pctx = pctx
		c.cov = cov
		c.ready = ready
		e.bus.Emit(events.TopicCoverageUpdated,
			fmt.Sprintf("coverage %d%%", cov.Overall), cov)
		if ready && !e.optimization {
			e.optimization = true
			e.bus.Emit(events.TopicOptimizationStarted,
				"coverage gate passed, deep optimization enabled", nil)
		}
	}, nil
}

func (e *Engine) stepAnalyze(_ context.Context, c *cycleData) (func(), error) {
	analyses := e.analyzer.Analyze(analysis.Input{
		Context:     c.pctx,
		PriorScores: e.st.AreaScores,
		ActiveGoals: e.activeGoals(),
	})
	return func() { c.analyses = analyses }, nil
}

func (e *Engine) stepInsights(_ context.Context, c *cycleData) (func(), error) {
	insights := e.generator.Generate(c.analyses, c.ready, e.clk.Now())
	return func() {
		c.insights = insights
		for _, in := range insights {
			e.appendInsight(in)
		}
	}, nil
}

func (e *Engine) stepPlan(_ context.Context, c *cycleData) (func(), error) {
	actions := e.planner.Plan(c.insights)
	return func() { c.actions = actions }, nil
}

func (e *Engine) stepExecute(sctx context.Context, c *cycleData) (func(), error) {
	var pending []life.Action
	var outcomes []dispatch.Outcome
	for _, a := range c.actions {
		if a.Priority < dispatchPriority {
			pending = append(pending, a)
			continue
		}
		out := e.dispatcher.Dispatch(sctx, a, e.clk.Now())
		outcomes = append(outcomes, out)
		if out.Kind == dispatch.OutcomeBlocked {
			pending = append(pending, out.Action)
		}
	}
	return func() {
		for _, out := range outcomes {
			e.applyOutcome(out)
		}
		e.st.PendingActions = pending
	}, nil
}

func (e *Engine) stepPrompts(sctx context.Context, _ *cycleData) (func(), error) {
	q, sent := e.dispatcher.FlushPrompt(sctx, e.clk.Now())
	if !sent {
		return nil, nil
	}
	return func() {
		e.st.AppendHistory(state.ActionRecord{
			Type:      life.ActionPrompt,
			Text:      q,
			Outcome:   string(dispatch.OutcomeSent),
			Timestamp: e.clk.Now(),
		})
		e.hb.Work("sent proactive prompt")
	}, nil
}

func (e *Engine) stepUpdateScores(sctx context.Context, c *cycleData) (func(), error) {
	return func() {
		if e.st.AreaScores == nil {
			e.st.AreaScores = make(map[life.Area]int)
		}
		for area, an := range c.analyses {
			e.st.AreaScores[area] = an.Score
		}

		// Goal selection may invoke the planner; it inherits the step
		// deadline, which is still live while the commit applies.
		e.goals.EvaluateCriteria(sctx, c.pctx, userNumbers(e.st.UserContext))
		snap := e.goals.Snapshot()
		e.st.CurrentGoal = snap.Current
		e.st.GoalCriteria = snap.Criteria
		e.st.GoalTasks = snap.Tasks
		e.st.OnHoldGoals = snap.OnHoldGoals

		e.st.CycleCount++
		e.st.LastCycle = e.clk.Now()
	}, nil
}

// appendInsight adds one insight to the state ring, archives it, and
// notifies observers. Refreshes of an existing id are silent.
func (e *Engine) appendInsight(in life.Insight) {
	if !e.st.AddInsight(in) {
		return
	}
	e.bus.Emit(events.TopicInsightAdded, in.Title, in)
	if e.arch != nil {
		if err := e.arch.SaveInsight(in); err != nil {
			e.logger.Warn("insight archive failed", zap.Error(err))
		}
	}
}

// applyOutcome folds one dispatch verdict into the state document.
func (e *Engine) applyOutcome(out dispatch.Outcome) {
	now := e.clk.Now()
	if out.Insight != nil {
		e.appendInsight(*out.Insight)
	}

	switch out.Kind {
	case dispatch.OutcomeDuplicate:
		e.logger.Debug("duplicate action suppressed",
			zap.String("type", string(out.Action.Type)))
		return
	case dispatch.OutcomeBlocked:
		e.st.AppendHistory(state.ActionRecord{
			Type:      out.Action.Type,
			Text:      out.Action.Text,
			Outcome:   string(out.Kind),
			Timestamp: now,
		})
		return
	}

	e.st.RecordCompletedAction(out.Action, now)
	e.st.AppendHistory(state.ActionRecord{
		Type:      out.Action.Type,
		Text:      out.Action.Text,
		Outcome:   string(out.Kind),
		Timestamp: now,
	})
	e.hb.Work(fmt.Sprintf("%s action: %s", out.Kind, out.Action.Text))
	if e.arch != nil {
		if err := e.arch.SaveAction(out.Action, string(out.Kind), now); err != nil {
			e.logger.Warn("action archive failed", zap.Error(err))
		}
	}
}

func (e *Engine) recordSuccess(c *cycleData) {
	e.st.ErrorRecovery = state.ErrorRecovery{}
	e.mu.Lock()
	e.backoffUntil = time.Time{}
	e.mu.Unlock()

	e.hb.Work(fmt.Sprintf("cycle %d complete", e.st.CycleCount))
	e.bus.Emit(events.TopicCycleComplete,
		fmt.Sprintf("cycle %d", e.st.CycleCount), e.progress(c))
	e.logger.Info("cycle complete", zap.Int("cycle", e.st.CycleCount))
}

// recordFailure arms backoff: min(base x 2^(n-1), cap). At the configured
// failure ceiling a critical-failure event fires and one best-effort alert
// goes out through the dispatcher.
func (e *Engine) recordFailure(err error) {
	now := e.clk.Now()
	e.st.ErrorRecovery.ConsecutiveFailures++
	n := e.st.ErrorRecovery.ConsecutiveFailures

	backoff := e.dur.BackoffBase
	for i := 1; i < n && backoff < e.dur.BackoffCap; i++ {
		backoff *= 2
	}
	if backoff > e.dur.BackoffCap {
		backoff = e.dur.BackoffCap
	}
	e.st.ErrorRecovery.BackoffMs = backoff.Milliseconds()
	e.st.ErrorRecovery.LastFailureTime = now
	e.st.ErrorRecovery.LastError = err.Error()

	e.mu.Lock()
	e.backoffUntil = now.Add(backoff)
	e.mu.Unlock()

	e.hb.Error()
	e.logger.Error("cycle failed",
		zap.Int("consecutive_failures", n),
		zap.Duration("backoff", backoff),
		zap.Error(err))
	e.bus.Emit(events.TopicCycleError, err.Error(),
		map[string]any{"consecutive_failures": n, "backoff_ms": backoff.Milliseconds()})

	if saveErr := e.store.Save(e.st); saveErr != nil {
		e.logger.Error("state save after failure failed", zap.Error(saveErr))
	}

	if n == e.maxFails {
		e.bus.Emit(events.TopicCriticalFailure,
			fmt.Sprintf("%d consecutive cycle failures", n), err.Error())
		out := e.dispatcher.Dispatch(context.Background(), life.Action{
			Type:     life.ActionAlert,
			Priority: 10,
			Text:     fmt.Sprintf("Engine degraded: %d consecutive cycle failures (last: %v)", n, err),
		}, now)
		e.applyOutcome(out)
	}
}

func (e *Engine) progress(c *cycleData) Progress {
	scores := make(map[life.Area]int, len(e.st.AreaScores))
	for k, v := range e.st.AreaScores {
		scores[k] = v
	}
	p := Progress{
		CycleCount:     e.st.CycleCount,
		Coverage:       c.cov.Overall,
		Ready:          c.ready,
		AreaScores:     scores,
		Insights:       len(e.st.Insights),
		PendingActions: len(e.st.PendingActions),
	}
	if e.st.CurrentGoal != nil {
		p.GoalTitle = e.st.CurrentGoal.Title
	}
	return p
}

func (e *Engine) activeGoals() []goal.Goal {
	snap := e.goals.Snapshot()
	if snap.Current == nil || snap.Current.Status != goal.StatusActive {
		return nil
	}
	return []goal.Goal{*snap.Current}
}

// userNumbers extracts the numeric entries of the free-form user context,
// used to satisfy manual-tracking criteria sources.
func userNumbers(uc map[string]any) map[string]float64 {
	if len(uc) == 0 {
		return nil
	}
	out := make(map[string]float64)
	for k, raw := range uc {
		switch v := raw.(type) {
		case float64:
			out[k] = v
		case int:
			out[k] = float64(v)
		case bool:
			if v {
				out[k] = 1
			}
		}
	}
	return out
}

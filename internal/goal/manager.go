package goal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"lifeos/internal/clock"
	"lifeos/internal/events"
	"lifeos/internal/provider"
)

// holdReview is how far out a target_not_met hold schedules its review.
const holdReview = 24 * time.Hour

// Planner generates criteria and task lists for a goal, typically backed by
// an external LLM. The manager falls back to deterministic generation when
// no planner is wired or the planner fails.
type Planner interface {
	GenerateCriteria(ctx context.Context, g Goal) (*CriteriaSet, error)
	GenerateTasks(ctx context.Context, g Goal) ([]Task, error)
}

// Manager owns at most one current goal with its criteria set and task
// graph. It is driven by the cycle scheduler; observers get read-only
// snapshots via the event bus.
type Manager struct {
	clk     clock.Clock
	bus     *events.Bus
	logger  *zap.Logger
	planner Planner

	// AllowTaskFallback lets a goal with purely internal criteria complete
	// on all-tasks-done. Criteria remain authoritative otherwise.
	AllowTaskFallback bool

	catalog  []Goal
	current  *Goal
	criteria map[string]*CriteriaSet
	tasks    []Task
}

// Snapshot is the manager's persistable state.
type Snapshot struct {
	Current     *Goal
	Criteria    map[string]*CriteriaSet
	Tasks       []Task
	OnHoldGoals []Goal
}

// NewManager creates a goal manager. planner may be nil.
func NewManager(clk clock.Clock, bus *events.Bus, planner Planner, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		clk:      clk,
		bus:      bus,
		logger:   logger.Named("goal"),
		planner:  planner,
		criteria: make(map[string]*CriteriaSet),
	}
}

// Initialize restores persisted state and, when no goal is current,
// auto-selects the highest-priority candidate.
func (m *Manager) Initialize(ctx context.Context, snap Snapshot, catalog []Goal) {
	m.catalog = append([]Goal(nil), catalog...)
	for _, g := range snap.OnHoldGoals {
		m.upsertCatalog(g)
	}
	if snap.Criteria != nil {
		m.criteria = snap.Criteria
	}
	m.tasks = append([]Task(nil), snap.Tasks...)

	if snap.Current != nil {
		cur := *snap.Current
		m.current = &cur
		m.upsertCatalog(cur)
		return
	}
	m.selectNext(ctx)
}

// Current returns a copy of the current goal, nil when idle.
func (m *Manager) Current() *Goal {
	if m.current == nil {
		return nil
	}
	cur := *m.current
	return &cur
}

// CurrentCriteria returns the criteria set for the current goal.
func (m *Manager) CurrentCriteria() *CriteriaSet {
	if m.current == nil {
		return nil
	}
	return m.criteria[m.current.ID]
}

// Tasks returns a copy of the work plan.
func (m *Manager) Tasks() []Task {
	return append([]Task(nil), m.tasks...)
}

// Snapshot returns the persistable state.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{
		Criteria: m.criteria,
		Tasks:    append([]Task(nil), m.tasks...),
	}
	if m.current != nil {
		cur := *m.current
		snap.Current = &cur
	}
	for _, g := range m.catalog {
		if g.Status == StatusOnHold {
			snap.OnHoldGoals = append(snap.OnHoldGoals, g)
		}
	}
	return snap
}

// SetCurrent atomically replaces the current goal: criteria are generated
// (planner-assisted when available, deterministic fallback otherwise), then
// the task list with its dependency graph.
func (m *Manager) SetCurrent(ctx context.Context, g Goal) {
	now := m.clk.Now()
	g.Status = StatusActive
	g.UpdatedAt = now
	m.current = &g
	m.upsertCatalog(g)

	cs := m.generateCriteria(ctx, g)
	m.criteria[g.ID] = cs
	m.tasks = m.generateTasks(ctx, g)

	m.logger.Info("goal activated",
		zap.String("goal", g.ID),
		zap.String("title", g.Title),
		zap.Int("criteria", len(cs.Criteria)),
		zap.Int("tasks", len(m.tasks)))
	m.bus.Emit(events.TopicGoalChanged, g.Title, m.Current())
}

func (m *Manager) generateCriteria(ctx context.Context, g Goal) *CriteriaSet {
	if m.planner != nil {
		if cs, err := m.planner.GenerateCriteria(ctx, g); err == nil && cs != nil && len(cs.Criteria) > 0 {
			cs.GoalID = g.ID
			cs.GeneratedBy = "llm"
			return cs
		} else if err != nil {
			m.logger.Warn("planner criteria generation failed, using fallback", zap.Error(err))
		}
	}
	return FallbackCriteria(g)
}

func (m *Manager) generateTasks(ctx context.Context, g Goal) []Task {
	if m.planner != nil {
		if tasks, err := m.planner.GenerateTasks(ctx, g); err == nil && len(tasks) > 0 {
			for i := range tasks {
				tasks[i].GoalID = g.ID
				if tasks[i].State == "" {
					tasks[i].State = TaskPending
				}
			}
			return tasks
		} else if err != nil {
			m.logger.Warn("planner task generation failed, using fallback", zap.Error(err))
		}
	}
	return FallbackTasks(g)
}

// NextTask returns the first task in priority order that is not completed
// or skipped, whose dependencies are all completed, and whose hold review
// time (if any) has passed. Emits all-tasks-blocked when tasks remain but
// none is selectable.
func (m *Manager) NextTask() *Task {
	now := m.clk.Now()

	// Holds whose review time passed flip back to pending first.
	for i := range m.tasks {
		t := &m.tasks[i]
		if t.State == TaskOnHold && t.Hold != nil && !now.Before(t.Hold.ReviewAt) {
			t.State = TaskPending
			t.Hold = nil
		}
	}

	done := make(map[string]bool, len(m.tasks))
	remaining := 0
	for _, t := range m.tasks {
		switch t.State {
		case TaskCompleted, TaskSkipped:
			done[t.ID] = true
		default:
			remaining++
		}
	}
	if remaining == 0 {
		return nil
	}

	order := make([]int, 0, len(m.tasks))
	for i := range m.tasks {
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.tasks[order[a]].Priority > m.tasks[order[b]].Priority
	})

	for _, i := range order {
		t := &m.tasks[i]
		if t.State != TaskPending && t.State != TaskInProgress {
			continue
		}
		if !depsCompleted(t, done) {
			continue
		}
		cp := *t
		return &cp
	}

	m.bus.Emit(events.TopicAllTasksBlocked, "no selectable tasks", nil)
	return nil
}

func depsCompleted(t *Task, done map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !done[dep] {
			return false
		}
	}
	return true
}

// StartTask marks a task in progress.
func (m *Manager) StartTask(id string) error {
	t := m.findTask(id)
	if t == nil {
		return fmt.Errorf("task %s not found", id)
	}
	now := m.clk.Now()
	t.State = TaskInProgress
	t.Attempts++
	t.StartedAt = &now
	return nil
}

// CompleteTask marks a task completed and records its results. When the
// whole plan is done, criteria decide whether the goal completes.
func (m *Manager) CompleteTask(ctx context.Context, id string, results []string) error {
	t := m.findTask(id)
	if t == nil {
		return fmt.Errorf("task %s not found", id)
	}
	now := m.clk.Now()
	t.State = TaskCompleted
	t.CompletedAt = &now
	t.Results = append(t.Results, results...)

	if m.allTasksDone() {
		m.onPlanFinished(ctx)
	}
	return nil
}

// PutTaskOnHold pauses a task until reviewAt.
func (m *Manager) PutTaskOnHold(id string, reason HoldReason, reviewAt time.Time, notes string) error {
	t := m.findTask(id)
	if t == nil {
		return fmt.Errorf("task %s not found", id)
	}
	t.State = TaskOnHold
	t.Hold = &HoldInfo{
		Reason:      reason,
		ReviewAt:    reviewAt,
		Notes:       notes,
		PutOnHoldAt: m.clk.Now(),
	}
	m.bus.Emit(events.TopicTaskOnHold, t.Title, *t)
	return nil
}

// PutGoalOnHold pauses the current goal and selects the next candidate.
func (m *Manager) PutGoalOnHold(ctx context.Context, reason HoldReason, reviewAt time.Time, notes string) {
	if m.current == nil {
		return
	}
	now := m.clk.Now()
	m.current.Status = StatusOnHold
	m.current.Hold = &HoldInfo{
		Reason:      reason,
		ReviewAt:    reviewAt,
		Notes:       notes,
		PutOnHoldAt: now,
	}
	m.current.UpdatedAt = now
	m.upsertCatalog(*m.current)

	m.logger.Info("goal on hold",
		zap.String("goal", m.current.ID),
		zap.String("reason", string(reason)),
		zap.Time("review_at", reviewAt))
	m.bus.Emit(events.TopicGoalOnHold, m.current.Title, *m.current)

	m.current = nil
	m.selectNext(ctx)
}

// EvaluateCriteria refreshes each criterion's current value from its
// declared data source, marks completion per measure type, folds the lead
// criterion's reading into the goal's running value, and recomputes the
// overall flag. A fully met set completes the goal; a fully unmet set
// whose sources are all external puts the goal on hold with target_not_met.
func (m *Manager) EvaluateCriteria(ctx context.Context, pctx *provider.Context, userValues map[string]float64) {
	if m.current == nil {
		return
	}
	cs := m.criteria[m.current.ID]
	if cs == nil || len(cs.Criteria) == 0 {
		return
	}

	now := m.clk.Now()
	anyMet := false
	allExternal := true
	for i := range cs.Criteria {
		c := &cs.Criteria[i]
		val, ok := resolveSource(c.DataSource, pctx, userValues)
		if ok {
			c.CurrentValue = &val
			c.LastChecked = now
			c.IsComplete = criterionMet(c.MeasureType, val, c.TargetValue)
		}
		// Unknown sources yield null and leave is_complete unchanged.
		if c.IsComplete {
			anyMet = true
		}
		if !externalSource(c.DataSource) {
			allExternal = false
		}
	}
	m.refreshProgress(now, cs)
	cs.OverallComplete = overallComplete(cs)

	m.bus.Emit(events.TopicCriteriaEvaluated, m.current.Title, *cs)

	if cs.OverallComplete {
		m.CompleteCurrent(ctx, "all completion criteria met")
		return
	}
	if !anyMet && allExternal {
		m.PutGoalOnHold(ctx, HoldTargetNotMet, now.Add(holdReview), "waiting on external data to reach target")
	}
}

// refreshProgress folds the lead criterion's latest reading into the goal's
// current value and stamps newly reached milestones. The lead criterion is
// the first one with a resolved value.
func (m *Manager) refreshProgress(now time.Time, cs *CriteriaSet) {
	for i := range cs.Criteria {
		c := cs.Criteria[i]
		if c.CurrentValue == nil {
			continue
		}
		v := *c.CurrentValue
		if v != m.current.CurrentValue {
			m.current.CurrentValue = v
			m.current.UpdatedAt = now
		}
		for j := range m.current.Milestones {
			ms := &m.current.Milestones[j]
			if ms.Achieved || v < ms.Target {
				continue
			}
			at := now
			ms.Achieved = true
			ms.AchievedAt = &at
			m.logger.Info("milestone reached",
				zap.String("goal", m.current.ID),
				zap.String("milestone", ms.Label),
				zap.Float64("value", v))
			m.bus.Emit(events.TopicMilestoneReached, ms.Label, *ms)
		}
		m.upsertCatalog(*m.current)
		return
	}
}

// CompleteCurrent transitions the current goal to completed, clears its
// tasks, and auto-selects the next goal.
func (m *Manager) CompleteCurrent(ctx context.Context, summary string) {
	if m.current == nil {
		return
	}
	now := m.clk.Now()
	m.current.Status = StatusCompleted
	m.current.UpdatedAt = now
	m.upsertCatalog(*m.current)

	m.logger.Info("goal completed",
		zap.String("goal", m.current.ID),
		zap.String("summary", summary))
	m.bus.Emit(events.TopicGoalCompleted, summary, *m.current)

	m.current = nil
	m.tasks = nil
	m.selectNext(ctx)
}

// onPlanFinished runs when every task is completed or skipped. Finishing
// tasks is necessary but not sufficient: criteria decide.
func (m *Manager) onPlanFinished(ctx context.Context) {
	if m.current == nil {
		return
	}
	cs := m.criteria[m.current.ID]
	if cs != nil && cs.OverallComplete {
		m.CompleteCurrent(ctx, "work plan finished and criteria met")
		return
	}
	if m.AllowTaskFallback && (cs == nil || !hasExternalSources(cs)) {
		m.CompleteCurrent(ctx, "work plan finished; criteria are internal-only")
		return
	}
	m.PutGoalOnHold(ctx, HoldTargetNotMet, m.clk.Now().Add(holdReview), "tasks done but completion criteria unmet")
}

// selectNext picks the next candidate goal: by priority asc, then urgency,
// then created_at asc. On-hold goals with future review times are excluded;
// an eligible on-hold goal re-enters as active and its criteria are
// re-evaluated on the next cycle.
func (m *Manager) selectNext(ctx context.Context) {
	now := m.clk.Now()

	var candidates []Goal
	for _, g := range m.catalog {
		switch g.Status {
		case StatusActive:
			candidates = append(candidates, g)
		case StatusOnHold:
			if g.Hold == nil || !now.Before(g.Hold.ReviewAt) {
				g.Status = StatusActive
				g.Hold = nil
				candidates = append(candidates, g)
			}
		}
	}
	if len(candidates) == 0 {
		return
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if ur, ul := urgencyRank(a.Urgency), urgencyRank(b.Urgency); ur != ul {
			return ur < ul
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	next := candidates[0]
	m.SetCurrent(ctx, next)
}

// EarliestReview returns the soonest on-hold review instant, ok=false when
// nothing is on hold. The scheduler idles the goal axis until then when all
// goals are held.
func (m *Manager) EarliestReview() (time.Time, bool) {
	var earliest time.Time
	found := false
	consider := func(h *HoldInfo) {
		if h == nil {
			return
		}
		if !found || h.ReviewAt.Before(earliest) {
			earliest = h.ReviewAt
			found = true
		}
	}
	for _, g := range m.catalog {
		if g.Status == StatusOnHold {
			consider(g.Hold)
		}
	}
	for i := range m.tasks {
		if m.tasks[i].State == TaskOnHold {
			consider(m.tasks[i].Hold)
		}
	}
	return earliest, found
}

func (m *Manager) allTasksDone() bool {
	if len(m.tasks) == 0 {
		return false
	}
	for _, t := range m.tasks {
		if t.State != TaskCompleted && t.State != TaskSkipped {
			return false
		}
	}
	return true
}

func (m *Manager) findTask(id string) *Task {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			return &m.tasks[i]
		}
	}
	return nil
}

func (m *Manager) upsertCatalog(g Goal) {
	for i := range m.catalog {
		if m.catalog[i].ID == g.ID {
			m.catalog[i] = g
			return
		}
	}
	m.catalog = append(m.catalog, g)
}

func urgencyRank(u Urgency) int {
	switch u {
	case UrgencyHigh:
		return 0
	case UrgencyMedium:
		return 1
	case UrgencyLow:
		return 2
	default:
		return 1
	}
}

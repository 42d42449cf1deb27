// Package state defines the persisted engine document and its crash-safe
// store. One process owns the file; every write is atomic.
package state

import (
	"time"

	"lifeos/internal/goal"
	"lifeos/internal/life"
)

// Ring capacities. Property: |insights| <= 100, |completed_actions| <= 100
// after any sequence of updates.
const (
	MaxInsights         = 100
	MaxCompletedActions = 100
	MaxActionHistory    = 100
)

// ErrorRecovery tracks the scheduler's failure/backoff state across
// restarts.
type ErrorRecovery struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time,omitzero"`
	BackoffMs           int64     `json:"backoff_ms"`
	LastError           string    `json:"last_error,omitempty"`
}

// WorkPlan summarizes the task list generated for the current goal.
type WorkPlan struct {
	GoalID    string    `json:"goal_id"`
	CreatedAt time.Time `json:"created_at"`
	TaskIDs   []string  `json:"task_ids"`
}

// ActionRecord is one entry in the dispatch history log.
type ActionRecord struct {
	Type      life.ActionType `json:"type"`
	Text      string          `json:"text"`
	Outcome   string          `json:"outcome"` // sent, queued, downgraded, blocked
	Timestamp time.Time       `json:"timestamp"`
}

// EngineState is the single persisted document. Top-level fields carry no
// omitempty so the saver can tell known keys from foreign ones and preserve
// the latter on re-save.
type EngineState struct {
	Initialized      bool                   `json:"initialized"`
	CycleCount       int                    `json:"cycle_count"`
	LastCycle        time.Time              `json:"last_cycle"`
	AreaScores       map[life.Area]int      `json:"area_scores"`
	Insights         []life.Insight         `json:"insights"`
	PendingActions   []life.Action          `json:"pending_actions"`
	CompletedActions []life.CompletedAction `json:"completed_actions"`
	UserContext      map[string]any         `json:"user_context"`
	CurrentGoal      *goal.Goal             `json:"current_goal"`
	WorkPlan         *WorkPlan              `json:"work_plan"`
	GoalCriteria     map[string]*goal.CriteriaSet `json:"goal_criteria"`
	GoalTasks        []goal.Task            `json:"goal_tasks"`
	OnHoldTasks      []goal.Task            `json:"on_hold_tasks"`
	OnHoldGoals      []goal.Goal            `json:"on_hold_goals"`
	ActionHistory    []ActionRecord         `json:"action_history"`
	ErrorRecovery    ErrorRecovery          `json:"error_recovery"`
}

// Default returns the document a fresh (or unreadable) state file maps to.
func Default() *EngineState {
	return &EngineState{
		AreaScores:   make(map[life.Area]int),
		UserContext:  make(map[string]any),
		GoalCriteria: make(map[string]*goal.CriteriaSet),
	}
}

// AddInsight unshifts an insight and truncates the ring to MaxInsights.
// Insights whose id is already present are refreshed in place instead of
// duplicated.
func (s *EngineState) AddInsight(in life.Insight) bool {
	for i := range s.Insights {
		if s.Insights[i].ID == in.ID {
			created := s.Insights[i].CreatedAt
			s.Insights[i] = in
			s.Insights[i].CreatedAt = created
			return false
		}
	}
	s.Insights = append([]life.Insight{in}, s.Insights...)
	if len(s.Insights) > MaxInsights {
		s.Insights = s.Insights[:MaxInsights]
	}
	return true
}

// RecordCompletedAction appends to the completed-actions ring.
func (s *EngineState) RecordCompletedAction(a life.Action, at time.Time) {
	s.CompletedActions = append([]life.CompletedAction{{Action: a, CompletedAt: at}}, s.CompletedActions...)
	if len(s.CompletedActions) > MaxCompletedActions {
		s.CompletedActions = s.CompletedActions[:MaxCompletedActions]
	}
}

// AppendHistory appends to the dispatch history log.
func (s *EngineState) AppendHistory(rec ActionRecord) {
	s.ActionHistory = append(s.ActionHistory, rec)
	if len(s.ActionHistory) > MaxActionHistory {
		s.ActionHistory = s.ActionHistory[len(s.ActionHistory)-MaxActionHistory:]
	}
}

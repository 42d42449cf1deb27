// Package goal owns the current goal, its completion criteria, and its task
// graph. The manager advances work toward criteria satisfaction and exposes
// next-task selection to the scheduler.
package goal

import (
	"time"

	"lifeos/internal/life"
)

// Status represents the lifecycle state of a goal.
type Status string

const (
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// Urgency orders goals of equal priority.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Milestone is an intermediate target on the way to a goal.
type Milestone struct {
	Target     float64    `json:"target"`
	Label      string     `json:"label"`
	Achieved   bool       `json:"achieved"`
	AchievedAt *time.Time `json:"achieved_at,omitempty"`
}

// Goal is a tracked objective. Priority runs 1 (urgent) to 5 (someday).
type Goal struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Category     string      `json:"category"` // life area or free-form tag
	Area         life.Area   `json:"area,omitempty"`
	Priority     int         `json:"priority"`
	Urgency      Urgency     `json:"urgency,omitempty"`
	Status       Status      `json:"status"`
	TargetValue  float64     `json:"target_value,omitempty"`
	CurrentValue float64     `json:"current_value,omitempty"`
	Unit         string      `json:"unit,omitempty"`
	Milestones   []Milestone `json:"milestones,omitempty"`
	Hold         *HoldInfo   `json:"hold,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Progress reports how far a goal has advanced toward its target, 0-100.
func (g *Goal) Progress() float64 {
	if g.TargetValue == 0 {
		if g.Status == StatusCompleted {
			return 100
		}
		return 0
	}
	p := g.CurrentValue / g.TargetValue * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// MeasureType describes how a criterion is evaluated.
type MeasureType string

const (
	MeasureValue      MeasureType = "value"
	MeasureBoolean    MeasureType = "boolean"
	MeasurePercentage MeasureType = "percentage"
	MeasureDate       MeasureType = "date"
)

// Criterion is a single measurable completion condition.
type Criterion struct {
	ID           string      `json:"id"`
	Description  string      `json:"description"`
	MeasureType  MeasureType `json:"measure_type"`
	TargetValue  float64     `json:"target_value"`
	CurrentValue *float64    `json:"current_value,omitempty"`
	DataSource   string      `json:"data_source"`
	IsComplete   bool        `json:"is_complete"`
	LastChecked  time.Time   `json:"last_checked,omitempty"`
}

// MinimumRequired expresses the completion rule over a criteria set: "all",
// "any", or a decimal count like "2".
type MinimumRequired string

const (
	RequireAll MinimumRequired = "all"
	RequireAny MinimumRequired = "any"
)

// CriteriaSet binds ordered criteria to a goal with a completion rule.
type CriteriaSet struct {
	GoalID          string          `json:"goal_id"`
	Criteria        []Criterion     `json:"criteria"`
	MinimumRequired MinimumRequired `json:"minimum_required"`
	OverallComplete bool            `json:"overall_complete"`
	GeneratedBy     string          `json:"generated_by,omitempty"` // "llm" or "fallback"
}

// TaskCategory classifies tasks in the work plan.
type TaskCategory string

const (
	TaskResearch TaskCategory = "research"
	TaskAnalyze  TaskCategory = "analyze"
	TaskPlan     TaskCategory = "plan"
	TaskExecute  TaskCategory = "execute"
	TaskValidate TaskCategory = "validate"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskInProgress TaskState = "in_progress"
	TaskOnHold     TaskState = "on_hold"
	TaskCompleted  TaskState = "completed"
	TaskBlocked    TaskState = "blocked"
	TaskSkipped    TaskState = "skipped"
)

// HoldReason is the closed set of reasons work can be paused. The UI relies
// on these names.
type HoldReason string

const (
	HoldWaitingExternal   HoldReason = "waiting_external"
	HoldWaitingData       HoldReason = "waiting_data"
	HoldWaitingApproval   HoldReason = "waiting_approval"
	HoldWaitingDependency HoldReason = "waiting_dependency"
	HoldWaitingTime       HoldReason = "waiting_time"
	HoldTargetNotMet      HoldReason = "target_not_met"
)

// HoldInfo records why and until when a task or goal is paused.
type HoldInfo struct {
	Reason      HoldReason `json:"reason"`
	ReviewAt    time.Time  `json:"review_at"`
	Notes       string     `json:"notes,omitempty"`
	PutOnHoldAt time.Time  `json:"put_on_hold_at"`
}

// Task is an atomic unit of work toward the current goal.
type Task struct {
	ID              string       `json:"id"`
	GoalID          string       `json:"goal_id"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	Category        TaskCategory `json:"category"`
	Priority        int          `json:"priority"` // 1-10, higher first
	Dependencies    []string     `json:"dependencies,omitempty"`
	CanBeParallel   bool         `json:"can_be_parallel,omitempty"`
	HoldConditions  []string     `json:"hold_conditions,omitempty"`
	SuccessCriteria string       `json:"success_criteria,omitempty"`
	State           TaskState    `json:"state"`
	Hold            *HoldInfo    `json:"hold,omitempty"`
	Attempts        int          `json:"attempts"`
	Results         []string     `json:"results,omitempty"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

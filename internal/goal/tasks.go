package goal

import (
	"fmt"

	"github.com/google/uuid"
)

// FallbackTasks generates the deterministic work plan used when no planner
// is available: a research → analyze → plan → execute → validate chain.
// Only the execute task depends on external conditions; research and
// analysis can always proceed.
func FallbackTasks(g Goal) []Task {
	research := Task{
		ID:              uuid.NewString(),
		GoalID:          g.ID,
		Title:           fmt.Sprintf("Research approaches for %q", g.Title),
		Description:     "Collect options, constraints, and prior art relevant to the goal.",
		Category:        TaskResearch,
		Priority:        8,
		CanBeParallel:   true,
		SuccessCriteria: "A shortlist of viable approaches with trade-offs.",
		State:           TaskPending,
	}
	analyze := Task{
		ID:              uuid.NewString(),
		GoalID:          g.ID,
		Title:           fmt.Sprintf("Analyze current position for %q", g.Title),
		Description:     "Compare current values against the target and quantify the gap.",
		Category:        TaskAnalyze,
		Priority:        7,
		Dependencies:    []string{research.ID},
		SuccessCriteria: "Gap analysis with a measurable baseline.",
		State:           TaskPending,
	}
	plan := Task{
		ID:              uuid.NewString(),
		GoalID:          g.ID,
		Title:           fmt.Sprintf("Draft an execution plan for %q", g.Title),
		Category:        TaskPlan,
		Priority:        6,
		Dependencies:    []string{analyze.ID},
		SuccessCriteria: "Ordered steps with owners and checkpoints.",
		State:           TaskPending,
	}
	execute := Task{
		ID:              uuid.NewString(),
		GoalID:          g.ID,
		Title:           fmt.Sprintf("Execute the plan for %q", g.Title),
		Category:        TaskExecute,
		Priority:        5,
		Dependencies:    []string{plan.ID},
		HoldConditions:  holdConditionsFor(g),
		SuccessCriteria: "Plan steps carried out and logged.",
		State:           TaskPending,
	}
	validate := Task{
		ID:              uuid.NewString(),
		GoalID:          g.ID,
		Title:           fmt.Sprintf("Validate outcomes for %q", g.Title),
		Category:        TaskValidate,
		Priority:        4,
		Dependencies:    []string{execute.ID},
		SuccessCriteria: "Completion criteria re-checked against fresh data.",
		State:           TaskPending,
	}
	return []Task{research, analyze, plan, execute, validate}
}

// holdConditionsFor names the external sources the execute step may end up
// waiting on, by goal category.
func holdConditionsFor(g Goal) []string {
	switch g.Category {
	case "financial":
		return []string{"financial"}
	case "health":
		return []string{"health"}
	case "career":
		return []string{"calendar"}
	default:
		return nil
	}
}

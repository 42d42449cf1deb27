package analysis

import (
	"fmt"
	"sort"

	"lifeos/internal/life"
)

// Planner converts insights into concrete actions. Pure and deterministic
// given identical inputs.
type Planner struct{}

// NewPlanner creates an action planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan maps insights to actions:
//
//	concern with priority >= 7  -> prompt action asking the user about the area
//	warning                     -> alert action carrying the insight title
//	non-empty recommendations   -> recommend action with the first one,
//	                               priority = insight priority - 1
func (p *Planner) Plan(insights []life.Insight) []life.Action {
	var out []life.Action

	for _, in := range insights {
		switch {
		case in.Type == life.InsightConcern && in.Priority >= 7:
			out = append(out, life.Action{
				Type:       life.ActionPrompt,
				Priority:   in.Priority,
				InsightRef: in.ID,
				Area:       in.Area,
				Text:       fmt.Sprintf("How are things going in your %s life right now?", in.Area),
			})
		case in.Type == life.InsightWarning:
			out = append(out, life.Action{
				Type:       life.ActionAlert,
				Priority:   in.Priority,
				InsightRef: in.ID,
				Area:       in.Area,
				Text:       in.Title,
			})
		}

		if len(in.Recommendations) > 0 {
			out = append(out, life.Action{
				Type:       life.ActionRecommend,
				Priority:   in.Priority - 1,
				InsightRef: in.ID,
				Area:       in.Area,
				Text:       in.Recommendations[0],
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

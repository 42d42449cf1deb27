package goal

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"lifeos/internal/provider"
)

// Literal (non-provider) data-source sentinels.
const (
	SourceManualTracking = "manual_tracking"
	SourceUserInput      = "user_input"
)

// externalSource reports whether a criterion waits on external data rather
// than user-entered values.
func externalSource(source string) bool {
	return source != SourceManualTracking && source != SourceUserInput
}

func hasExternalSources(cs *CriteriaSet) bool {
	for _, c := range cs.Criteria {
		if externalSource(c.DataSource) {
			return true
		}
	}
	return false
}

// resolveSource reads a criterion's data source. Recognized sources:
// portfolio, net_worth, health.sleep.score, health.history.consecutive_days,
// calendar.weekly_hours, manual_tracking, user_input, or any provider id in
// the context. Unknown sources return ok=false.
func resolveSource(source string, pctx *provider.Context, userValues map[string]float64) (float64, bool) {
	switch source {
	case SourceManualTracking, SourceUserInput:
		v, ok := userValues[source]
		return v, ok
	default:
		return pctx.Value(source)
	}
}

// criterionMet applies the measure type's completion predicate.
func criterionMet(mt MeasureType, current, target float64) bool {
	switch mt {
	case MeasureBoolean:
		return current >= 1
	case MeasureDate:
		// Values are unix seconds; complete once the source reports an
		// instant at or past the target.
		return current >= target
	default: // value, percentage
		return current >= target
	}
}

// overallComplete applies the minimum_required rule over is_complete flags.
func overallComplete(cs *CriteriaSet) bool {
	if len(cs.Criteria) == 0 {
		return false
	}
	met := 0
	for _, c := range cs.Criteria {
		if c.IsComplete {
			met++
		}
	}
	switch cs.MinimumRequired {
	case RequireAny:
		return met > 0
	case RequireAll, "":
		return met == len(cs.Criteria)
	default:
		n, err := strconv.Atoi(string(cs.MinimumRequired))
		if err != nil {
			return met == len(cs.Criteria)
		}
		return met >= n
	}
}

// FallbackCriteria generates a deterministic criteria set keyed on the
// goal's category, used when no planner is available.
func FallbackCriteria(g Goal) *CriteriaSet {
	cs := &CriteriaSet{
		GoalID:          g.ID,
		MinimumRequired: RequireAll,
		GeneratedBy:     "fallback",
	}

	target := g.TargetValue
	switch g.Category {
	case "financial":
		source := "net_worth"
		if g.Unit == "portfolio" {
			source = "portfolio"
		}
		cs.Criteria = append(cs.Criteria, Criterion{
			ID:          uuid.NewString(),
			Description: fmt.Sprintf("Reach %.0f %s", target, g.Unit),
			MeasureType: MeasureValue,
			TargetValue: target,
			DataSource:  source,
		})
	case "health":
		cs.Criteria = append(cs.Criteria,
			Criterion{
				ID:          uuid.NewString(),
				Description: "Average sleep score at or above target",
				MeasureType: MeasureValue,
				TargetValue: nonZero(target, 80),
				DataSource:  "health.sleep.score",
			},
			Criterion{
				ID:          uuid.NewString(),
				Description: "Consecutive days of activity",
				MeasureType: MeasureValue,
				TargetValue: 14,
				DataSource:  "health.history.consecutive_days",
			})
	case "career":
		cs.Criteria = append(cs.Criteria, Criterion{
			ID:          uuid.NewString(),
			Description: "Weekly focused hours at or above target",
			MeasureType: MeasureValue,
			TargetValue: nonZero(target, 20),
			DataSource:  "calendar.weekly_hours",
		})
	default:
		cs.Criteria = append(cs.Criteria, Criterion{
			ID:          uuid.NewString(),
			Description: fmt.Sprintf("%s tracked to completion", g.Title),
			MeasureType: MeasureBoolean,
			TargetValue: 1,
			DataSource:  SourceManualTracking,
		})
	}
	return cs
}

func nonZero(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

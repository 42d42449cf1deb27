// Package analysis turns a gathered context into per-area analyses, ranked
// insights, and planned actions. All three stages are pure and deterministic
// given identical inputs.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"lifeos/internal/goal"
	"lifeos/internal/life"
	"lifeos/internal/provider"
)

// defaultScore is used for areas with no connected data.
const defaultScore = 50

// Input is everything the analyzer reads for one cycle.
type Input struct {
	Context     *provider.Context
	PriorScores map[life.Area]int // persisted life_scores from the previous cycle
	ActiveGoals []goal.Goal
}

// Analyzer produces an Analysis for every life area.
type Analyzer struct {
	areas []life.AreaInfo
}

// NewAnalyzer creates an analyzer over the static area set.
func NewAnalyzer() *Analyzer {
	return &Analyzer{areas: life.DefaultAreas()}
}

// Analyze scores every area and extracts concerns, opportunities, and
// recommendations. Every area gets an entry even with no connected data.
func (a *Analyzer) Analyze(in Input) map[life.Area]life.Analysis {
	out := make(map[life.Area]life.Analysis, len(a.areas))
	for _, info := range a.areas {
		out[info.ID] = a.analyzeArea(info.ID, in)
	}
	return out
}

func (a *Analyzer) analyzeArea(area life.Area, in Input) life.Analysis {
	an := life.Analysis{Area: area, Status: life.StatusStable}

	an.Score = a.blendedScore(area, in)
	an.HasData = areaHasData(area, in.Context)

	switch area {
	case life.AreaFinancial:
		a.analyzeFinancial(&an, in)
	case life.AreaSafety:
		a.analyzeSafety(&an, in)
	case life.AreaHealth:
		a.analyzeHealth(&an, in)
	}

	if an.Score < 40 && an.Status == life.StatusStable {
		an.Status = life.StatusNeedsImprovement
	}
	return an
}

// blendedScore takes the persisted per-area score and, when the area has
// active goals, blends it 50/50 with their average progress.
func (a *Analyzer) blendedScore(area life.Area, in Input) int {
	score := defaultScore
	if s, ok := in.PriorScores[area]; ok {
		score = s
	}

	var progress []float64
	for _, g := range in.ActiveGoals {
		if g.Area == area && g.Status == goal.StatusActive {
			progress = append(progress, g.Progress())
		}
	}
	if len(progress) == 0 {
		return score
	}

	sum := 0.0
	for _, p := range progress {
		sum += p
	}
	avg := sum / float64(len(progress))
	return int(math.Round(float64(score)*0.5 + avg*0.5))
}

func (a *Analyzer) analyzeFinancial(an *life.Analysis, in Input) {
	res := in.Context.Result("financial")
	if !res.Connected {
		return
	}

	// External predictions with probability >= 0.6 tagged financial-relevant
	// become concerns.
	preds, _ := res.Payload["predictions"].([]any)
	for _, p := range preds {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		prob, _ := m["probability"].(float64)
		if prob < 0.6 {
			continue
		}
		if !financialRelevant(m) {
			continue
		}
		title, _ := m["title"].(string)
		if title == "" {
			title = "unnamed prediction"
		}
		an.Concerns = append(an.Concerns, fmt.Sprintf("prediction: %s (p=%.2f)", title, prob))
	}
	if len(an.Concerns) > 0 && an.Status == life.StatusStable {
		an.Status = life.StatusAttentionNeeded
	}
}

func financialRelevant(m map[string]any) bool {
	if cat, _ := m["category"].(string); cat == "financial" {
		return true
	}
	tags, _ := m["tags"].([]any)
	for _, t := range tags {
		if s, _ := t.(string); s == "financial" {
			return true
		}
	}
	return false
}

func (a *Analyzer) analyzeSafety(an *life.Analysis, in Input) {
	res := in.Context.Result("safety")
	if !res.Connected {
		return
	}

	alerts, _ := res.Payload["active_alerts"].([]any)
	if len(alerts) == 0 {
		return
	}

	an.Status = life.StatusAttentionNeeded
	for _, al := range alerts {
		m, ok := al.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := m["type"].(string)
		if typ == "" {
			typ = "unknown"
		}
		an.Concerns = append(an.Concerns, fmt.Sprintf("active alert: %s", typ))
	}
}

func (a *Analyzer) analyzeHealth(an *life.Analysis, in Input) {
	res := in.Context.Result("health")
	if !res.Connected {
		return
	}

	if sub, ok := in.Context.Value("health.score"); ok && sub < 50 {
		an.Status = life.StatusNeedsImprovement
		an.Recommendations = append(an.Recommendations,
			fmt.Sprintf("Health score is %.0f; prioritize sleep and recovery this week", sub))
	}

	if sleep, ok := in.Context.Value("health.sleep.score"); ok && sleep >= 85 {
		an.Opportunities = append(an.Opportunities,
			"Sleep quality is strong; good window for a harder training block")
	}
}

func areaHasData(area life.Area, ctx *provider.Context) bool {
	if ctx == nil {
		return false
	}
	for _, id := range providersForArea(area) {
		if ctx.Result(id).Connected {
			return true
		}
	}
	return false
}

// providersForArea maps each life area to the providers that feed it.
func providersForArea(area life.Area) []string {
	switch area {
	case life.AreaFinancial:
		return []string{"financial"}
	case life.AreaHealth:
		return []string{"health"}
	case life.AreaCareer:
		return []string{"calendar", "email"}
	case life.AreaFamily:
		return []string{"calendar", "email"}
	case life.AreaSafety:
		return []string{"safety"}
	case life.AreaGrowth:
		return []string{"news", "goals"}
	default:
		return nil
	}
}

// SortedAreas returns analyses in stable area-priority order. Helpers like
// the digest writer rely on this ordering.
func SortedAreas(analyses map[life.Area]life.Analysis) []life.Analysis {
	order := make(map[life.Area]int, len(life.Areas()))
	for i, a := range life.Areas() {
		order[a] = i
	}
	out := make([]life.Analysis, 0, len(analyses))
	for _, an := range analyses {
		out = append(out, an)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return order[out[i].Area] < order[out[j].Area]
	})
	return out
}

package analysis

import (
	"fmt"
	"sort"
	"time"

	"lifeos/internal/life"
)

// Generator rank-orders analyzer output into typed insights.
type Generator struct{}

// NewGenerator creates an insight generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate emits insights sorted by priority descending. Ids are derived
// from (area, type, title), so re-running on identical analyses yields the
// identical ordered id list. Opportunity insights are optimization output
// and are suppressed until data coverage passes the gate.
func (g *Generator) Generate(analyses map[life.Area]life.Analysis, ready bool, now time.Time) []life.Insight {
	var out []life.Insight

	for _, an := range SortedAreas(analyses) {
		if !an.HasData {
			out = append(out, newInsight(an.Area, life.InsightConcern, 8,
				fmt.Sprintf("%s: no data available", an.Area),
				fmt.Sprintf("No providers are reporting for the %s area; coverage is blind here.", an.Area),
				an.Recommendations, now))
			continue
		}

		if an.Score < 40 {
			out = append(out, newInsight(an.Area, life.InsightConcern, 8,
				fmt.Sprintf("%s score is low (%d)", an.Area, an.Score),
				fmt.Sprintf("The %s area scored %d this cycle and needs attention.", an.Area, an.Score),
				an.Recommendations, now))
		}

		for _, c := range an.Concerns {
			out = append(out, newInsight(an.Area, life.InsightWarning, 7,
				c,
				fmt.Sprintf("Concern raised while analyzing the %s area.", an.Area),
				nil, now))
		}

		if ready {
			for _, o := range an.Opportunities {
				out = append(out, newInsight(an.Area, life.InsightOpportunity, 5,
					o,
					fmt.Sprintf("Opportunity spotted in the %s area.", an.Area),
					nil, now))
			}
		}

		// Recommendations without a low score still surface as
		// recommendation-typed insights.
		if an.Score >= 40 {
			for _, r := range an.Recommendations {
				out = append(out, newInsight(an.Area, life.InsightRecommendation, 4,
					r,
					fmt.Sprintf("Recommendation for the %s area.", an.Area),
					[]string{r}, now))
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func newInsight(area life.Area, typ life.InsightType, priority int, title, content string, recs []string, now time.Time) life.Insight {
	return life.Insight{
		ID:              life.InsightID(area, typ, title),
		Area:            area,
		Type:            typ,
		Priority:        priority,
		Title:           title,
		Content:         content,
		Recommendations: recs,
		CreatedAt:       now,
	}
}

// Package life defines the domain vocabulary of the engine: the closed set
// of life areas, per-area analyses, insights, and actions.
package life

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Area is one of the closed set of user-facing life domains.
type Area string

const (
	AreaFinancial Area = "financial"
	AreaHealth    Area = "health"
	AreaCareer    Area = "career"
	AreaFamily    Area = "family"
	AreaSafety    Area = "safety"
	AreaGrowth    Area = "growth"
)

// Areas lists every area in priority order (1 = highest).
func Areas() []Area {
	return []Area{AreaFinancial, AreaHealth, AreaCareer, AreaFamily, AreaSafety, AreaGrowth}
}

// AreaInfo carries the static declaration of a life area.
type AreaInfo struct {
	ID       Area     `json:"id"`
	Name     string   `json:"name"`
	Priority int      `json:"priority"` // 1-6
	SubAreas []string `json:"sub_areas,omitempty"`
}

// DefaultAreas returns the static area declarations.
func DefaultAreas() []AreaInfo {
	return []AreaInfo{
		{ID: AreaFinancial, Name: "Financial", Priority: 1, SubAreas: []string{"portfolio", "net_worth", "income", "spending"}},
		{ID: AreaHealth, Name: "Health", Priority: 2, SubAreas: []string{"sleep", "activity", "recovery"}},
		{ID: AreaCareer, Name: "Career", Priority: 3, SubAreas: []string{"calendar", "projects", "skills"}},
		{ID: AreaFamily, Name: "Family", Priority: 4, SubAreas: []string{"events", "communication"}},
		{ID: AreaSafety, Name: "Safety", Priority: 5, SubAreas: []string{"alerts", "home"}},
		{ID: AreaGrowth, Name: "Growth", Priority: 6, SubAreas: []string{"reading", "learning"}},
	}
}

// AreaStatus categorizes the current condition of an area.
type AreaStatus string

const (
	StatusStable           AreaStatus = "stable"
	StatusAttentionNeeded  AreaStatus = "attention_needed"
	StatusNeedsImprovement AreaStatus = "needs_improvement"
)

// Analysis is the per-area output of one analysis cycle.
type Analysis struct {
	Area            Area       `json:"area"`
	Score           int        `json:"score"` // 0-100
	Status          AreaStatus `json:"status"`
	HasData         bool       `json:"has_data"`
	Concerns        []string   `json:"concerns,omitempty"`
	Opportunities   []string   `json:"opportunities,omitempty"`
	Recommendations []string   `json:"recommendations,omitempty"`
}

// InsightType categorizes insights.
type InsightType string

const (
	InsightConcern        InsightType = "concern"
	InsightWarning        InsightType = "warning"
	InsightOpportunity    InsightType = "opportunity"
	InsightAlert          InsightType = "alert"
	InsightPrediction     InsightType = "prediction"
	InsightRecommendation InsightType = "recommendation"
)

// Insight is a typed, ranked statement produced from analysis. Insights are
// append-only; the state store keeps the most recent 100.
type Insight struct {
	ID              string      `json:"id"`
	Area            Area        `json:"area"`
	Type            InsightType `json:"type"`
	Priority        int         `json:"priority"` // 1-10
	Title           string      `json:"title"`
	Content         string      `json:"content"`
	Recommendations []string    `json:"recommendations,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// InsightID derives the stable identifier for an insight. Regenerating the
// same insight on a later cycle must produce the same id so observers can
// dedupe.
func InsightID(area Area, typ InsightType, title string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", area, typ, title)))
	return hex.EncodeToString(sum[:8])
}

// ActionType categorizes planned actions.
type ActionType string

const (
	ActionAnalyze   ActionType = "analyze"
	ActionRecommend ActionType = "recommend"
	ActionRemind    ActionType = "remind"
	ActionAlert     ActionType = "alert"
	ActionTrack     ActionType = "track"
	ActionPrompt    ActionType = "prompt"
	ActionResearch  ActionType = "research"
	ActionPlan      ActionType = "plan"
)

// Action is a prioritized piece of work emitted by the planner and consumed
// by the dispatcher.
type Action struct {
	Type             ActionType `json:"type"`
	Priority         int        `json:"priority"` // 1-10
	InsightRef       string     `json:"insight_ref,omitempty"`
	Area             Area       `json:"area,omitempty"`
	Text             string     `json:"action_text"`
	RequiresApproval bool       `json:"requires_approval,omitempty"`
	Blocked          bool       `json:"blocked,omitempty"`
	BlockedReason    string     `json:"blocked_reason,omitempty"`
}

// CompletedAction records a dispatched action in the bounded history ring.
type CompletedAction struct {
	Action
	CompletedAt time.Time `json:"completed_at"`
}

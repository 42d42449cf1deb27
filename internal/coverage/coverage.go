// Package coverage derives a single weighted data-coverage percentage from
// the latest provider results. The evaluator is pure; it performs no I/O.
package coverage

import (
	"math"
	"sort"

	"lifeos/internal/provider"
)

// ReadyThreshold gates deep optimization.
const ReadyThreshold = 80

// incompleteBelow marks connected providers reporting less than half their
// declared fields.
const incompleteBelow = 50

// Missing describes a provider that is absent or incomplete, ordered by
// impact.
type Missing struct {
	ProviderID string  `json:"provider_id"`
	Name       string  `json:"name"`
	Weight     int     `json:"weight"`
	Required   bool    `json:"required"`
	Incomplete bool    `json:"incomplete"` // connected, but field coverage < 50
	Coverage   float64 `json:"coverage"`
}

// Snapshot is the evaluated coverage state for one cycle.
type Snapshot struct {
	Overall     int                `json:"overall"` // 0-100
	PerProvider map[string]float64 `json:"per_provider"`
	Missing     []Missing          `json:"missing,omitempty"`
}

// Evaluator combines provider results into coverage snapshots.
type Evaluator struct {
	decls []provider.Declaration
}

// NewEvaluator creates an evaluator over the declared provider set.
func NewEvaluator(decls []provider.Declaration) *Evaluator {
	return &Evaluator{decls: decls}
}

// Evaluate computes the weighted coverage snapshot.
//
//	overall = Σ(weight_i × field_coverage_i/100) / Σ(weight_i), rounded
func (e *Evaluator) Evaluate(ctx *provider.Context) Snapshot {
	snap := Snapshot{PerProvider: make(map[string]float64, len(e.decls))}

	weightSum := 0
	weighted := 0.0
	for _, decl := range e.decls {
		res := ctx.Result(decl.ID)
		cov := 0.0
		if res.Connected {
			cov = res.FieldCoverage()
		}
		snap.PerProvider[decl.ID] = cov

		weightSum += decl.Weight
		weighted += float64(decl.Weight) * cov / 100

		if !res.Connected || cov < incompleteBelow {
			snap.Missing = append(snap.Missing, Missing{
				ProviderID: decl.ID,
				Name:       decl.Name,
				Weight:     decl.Weight,
				Required:   decl.Required,
				Incomplete: res.Connected,
				Coverage:   cov,
			})
		}
	}

	if weightSum > 0 {
		snap.Overall = int(math.Round(weighted / float64(weightSum) * 100))
	}

	// Highest weight first; required before optional when weights tie.
	sort.SliceStable(snap.Missing, func(i, j int) bool {
		a, b := snap.Missing[i], snap.Missing[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Required != b.Required {
			return a.Required
		}
		return a.ProviderID < b.ProviderID
	})

	return snap
}

// Gate reports whether coverage is high enough to run deep optimization.
func Gate(overall int) bool {
	return overall >= ReadyThreshold
}

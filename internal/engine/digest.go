package engine

import (
	"fmt"
	"strings"
	"time"

	"lifeos/internal/life"
	"lifeos/internal/state"
)

// writeDigest renders the human-readable insights digest, grouped by life
// area, and replaces the file atomically. Overwritten every cycle.
func writeDigest(path string, st *state.EngineState, now time.Time) error {
	var b strings.Builder
	b.WriteString("# Life Insights\n\n")
	fmt.Fprintf(&b, "Updated %s after cycle %d.\n\n", now.Format(time.RFC1123), st.CycleCount)

	byArea := make(map[life.Area][]life.Insight)
	for _, in := range st.Insights {
		byArea[in.Area] = append(byArea[in.Area], in)
	}

	for _, info := range life.DefaultAreas() {
		insights := byArea[info.ID]
		if len(insights) == 0 {
			continue
		}
		score, hasScore := st.AreaScores[info.ID]
		if hasScore {
			fmt.Fprintf(&b, "## %s (score %d)\n\n", info.Name, score)
		} else {
			fmt.Fprintf(&b, "## %s\n\n", info.Name)
		}
		for _, in := range insights {
			fmt.Fprintf(&b, "- **[%s/%d]** %s", in.Type, in.Priority, in.Title)
			if in.Content != "" {
				fmt.Fprintf(&b, ": %s", in.Content)
			}
			b.WriteString("\n")
			for _, rec := range in.Recommendations {
				fmt.Fprintf(&b, "  - %s\n", rec)
			}
		}
		b.WriteString("\n")
	}

	if len(st.PendingActions) > 0 {
		b.WriteString("## Pending Actions\n\n")
		for _, a := range st.PendingActions {
			fmt.Fprintf(&b, "- [%s/%d] %s", a.Type, a.Priority, a.Text)
			if a.Blocked {
				fmt.Fprintf(&b, " _(blocked: %s)_", a.BlockedReason)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return state.AtomicWrite(path, []byte(b.String()))
}

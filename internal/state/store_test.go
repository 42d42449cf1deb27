package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lifeos/internal/goal"
	"lifeos/internal/life"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "engine_state.json"), nil)
}

func TestLoad_MissingFileYieldsDefault(t *testing.T) {
	st := tempStore(t).Load()
	if st.Initialized {
		t.Error("fresh state should not be initialized")
	}
	if st.CycleCount != 0 {
		t.Errorf("CycleCount = %d, want 0", st.CycleCount)
	}
	if st.AreaScores == nil || st.UserContext == nil {
		t.Error("default maps not allocated")
	}
}

func TestLoad_MalformedFileYieldsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	st := NewStore(path, nil).Load()
	if st.CycleCount != 0 {
		t.Errorf("CycleCount = %d, want default", st.CycleCount)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := tempStore(t)
	st := store.Load()
	st.CycleCount = 7
	st.AreaScores[life.AreaHealth] = 64
	st.Initialized = true

	if err := store.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got := NewStore(store.Path(), nil).Load()
	if got.CycleCount != 7 || got.AreaScores[life.AreaHealth] != 64 || !got.Initialized {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestSaveLoad_FullDocument(t *testing.T) {
	store := tempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := Default()
	st.Initialized = true
	st.CycleCount = 12
	st.LastCycle = now
	st.AreaScores = map[life.Area]int{life.AreaFinancial: 71, life.AreaHealth: 58}
	st.Insights = []life.Insight{{
		ID:        "deadbeef00112233",
		Area:      life.AreaFinancial,
		Type:      life.InsightOpportunity,
		Priority:  6,
		Title:     "rebalance window",
		Content:   "portfolio drift above threshold",
		CreatedAt: now,
	}}
	st.CurrentGoal = &goal.Goal{
		ID:          "g-netwealth",
		Title:       "Reach net worth target",
		Category:    "financial",
		Priority:    1,
		Status:      goal.StatusActive,
		TargetValue: 500000,
		CreatedAt:   now,
	}
	st.GoalCriteria = map[string]*goal.CriteriaSet{
		"g-netwealth": {
			GoalID:          "g-netwealth",
			MinimumRequired: goal.RequireAll,
			Criteria: []goal.Criterion{{
				ID:          "c1",
				Description: "net worth reaches target",
				TargetValue: 500000,
				DataSource:  "net_worth",
			}},
		},
	}
	st.ErrorRecovery = ErrorRecovery{ConsecutiveFailures: 1, LastFailureTime: now, BackoffMs: 5000, LastError: "boom"}

	if err := store.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got := NewStore(store.Path(), nil).Load()
	if diff := cmp.Diff(st, got); diff != "" {
		t.Errorf("document changed across save/load (-want +got):\n%s", diff)
	}
}

func TestSave_PreservesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine_state.json")
	doc := map[string]any{
		"cycle_count":    3,
		"initialized":    true,
		"future_feature": map[string]any{"enabled": true},
		"plugin_notes":   "written by a newer version",
	}
	raw, _ := json.Marshal(doc)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(path, nil)
	st := store.Load()
	if st.CycleCount != 3 {
		t.Fatalf("CycleCount = %d, want 3", st.CycleCount)
	}
	st.CycleCount = 4
	if err := store.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var reread map[string]any
	if err := json.Unmarshal(data, &reread); err != nil {
		t.Fatalf("saved file not valid JSON: %v", err)
	}
	if reread["plugin_notes"] != "written by a newer version" {
		t.Error("unknown string field lost on re-save")
	}
	if _, ok := reread["future_feature"].(map[string]any); !ok {
		t.Error("unknown object field lost on re-save")
	}
	if reread["cycle_count"].(float64) != 4 {
		t.Errorf("cycle_count = %v, want 4", reread["cycle_count"])
	}
}

func TestAddInsight_RingBound(t *testing.T) {
	st := Default()
	for i := 0; i < 150; i++ {
		st.AddInsight(life.Insight{
			ID:        fmt.Sprintf("id-%d", i),
			Area:      life.AreaHealth,
			Type:      life.InsightConcern,
			CreatedAt: time.Now(),
		})
	}
	if len(st.Insights) != MaxInsights {
		t.Errorf("len(Insights) = %d, want %d", len(st.Insights), MaxInsights)
	}
	// Newest first.
	if st.Insights[0].ID != "id-149" {
		t.Errorf("Insights[0].ID = %s, want id-149", st.Insights[0].ID)
	}
}

func TestAddInsight_RefreshInPlace(t *testing.T) {
	st := Default()
	created := time.Unix(1000, 0)
	st.AddInsight(life.Insight{ID: "same", Title: "v1", CreatedAt: created})

	added := st.AddInsight(life.Insight{ID: "same", Title: "v2", CreatedAt: time.Unix(2000, 0)})
	if added {
		t.Error("refresh of existing id reported as added")
	}
	if len(st.Insights) != 1 {
		t.Fatalf("len(Insights) = %d, want 1", len(st.Insights))
	}
	if st.Insights[0].Title != "v2" {
		t.Errorf("Title = %s, want refreshed v2", st.Insights[0].Title)
	}
	if !st.Insights[0].CreatedAt.Equal(created) {
		t.Error("refresh should keep the original CreatedAt")
	}
}

func TestRecordCompletedAction_RingBound(t *testing.T) {
	st := Default()
	for i := 0; i < 130; i++ {
		st.RecordCompletedAction(life.Action{
			Type: life.ActionAlert,
			Text: fmt.Sprintf("action %d", i),
		}, time.Now())
	}
	if len(st.CompletedActions) != MaxCompletedActions {
		t.Errorf("len(CompletedActions) = %d, want %d", len(st.CompletedActions), MaxCompletedActions)
	}
	if st.CompletedActions[0].Action.Text != "action 129" {
		t.Errorf("newest first violated: %s", st.CompletedActions[0].Action.Text)
	}
}

func TestAtomicWrite_FileAlwaysParseable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	for i := 0; i < 20; i++ {
		doc, _ := json.Marshal(map[string]int{"version": i})
		if err := AtomicWrite(path, doc); err != nil {
			t.Fatalf("AtomicWrite() error = %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read after write %d: %v", i, err)
		}
		var got map[string]int
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("file unparseable after write %d: %v", i, err)
		}
		if got["version"] != i {
			t.Errorf("version = %d, want %d", got["version"], i)
		}
	}
}

func TestAtomicWrite_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := AtomicWrite(path, []byte(`{}`)); err != nil {
		t.Fatalf("AtomicWrite() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the target file", len(entries))
	}
}

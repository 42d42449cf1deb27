package coverage

import (
	"testing"

	"lifeos/internal/provider"
)

func testDecls() []provider.Declaration {
	return []provider.Declaration{
		{ID: "identity", Name: "Identity", Weight: 15, Required: true, Fields: []string{"a", "b"}},
		{ID: "goals", Name: "Goals", Weight: 15, Required: true, Fields: []string{"a"}},
		{ID: "financial", Name: "Financial", Weight: 20, Required: true, Fields: []string{"a", "b"}},
		{ID: "health", Name: "Health", Weight: 18, Required: true, Fields: []string{"a", "b"}},
		{ID: "calendar", Name: "Calendar", Weight: 12, Fields: []string{"a"}},
		{ID: "safety", Name: "Safety", Weight: 10, Fields: []string{"a"}},
		{ID: "email", Name: "Email", Weight: 6, Fields: []string{"a"}},
		{ID: "news", Name: "News", Weight: 4, Fields: []string{"a"}},
	}
}

func fullResult(id string, fields ...string) provider.Result {
	presence := make(map[string]bool, len(fields))
	for _, f := range fields {
		presence[f] = true
	}
	return provider.Result{ProviderID: id, Connected: true, FieldPresence: presence}
}

func TestEvaluate_NothingConnected(t *testing.T) {
	ev := NewEvaluator(testDecls())
	snap := ev.Evaluate(&provider.Context{Results: map[string]provider.Result{}})

	if snap.Overall != 0 {
		t.Errorf("Overall = %d, want 0", snap.Overall)
	}
	if Gate(snap.Overall) {
		t.Error("Gate(0) = true, want false")
	}
	if len(snap.Missing) != len(testDecls()) {
		t.Errorf("len(Missing) = %d, want %d", len(snap.Missing), len(testDecls()))
	}
}

func TestEvaluate_PartialBelowThreshold(t *testing.T) {
	ev := NewEvaluator(testDecls())
	snap := ev.Evaluate(&provider.Context{Results: map[string]provider.Result{
		"identity": fullResult("identity", "a", "b"),
		"goals":    fullResult("goals", "a"),
	}})

	// identity 15 + goals 15 over 100 total weight.
	if snap.Overall != 30 {
		t.Errorf("Overall = %d, want 30", snap.Overall)
	}
	if Gate(snap.Overall) {
		t.Error("Gate(30) = true, want false")
	}
	// Missing ordered by weight desc: financial (20) before health (18).
	if snap.Missing[0].ProviderID != "financial" {
		t.Errorf("Missing[0] = %s, want financial", snap.Missing[0].ProviderID)
	}
	if snap.Missing[1].ProviderID != "health" {
		t.Errorf("Missing[1] = %s, want health", snap.Missing[1].ProviderID)
	}
}

func TestEvaluate_WeightedRounding(t *testing.T) {
	decls := []provider.Declaration{
		{ID: "a", Weight: 3, Fields: []string{"x", "y", "z"}},
		{ID: "b", Weight: 1, Fields: []string{"x"}},
	}
	ev := NewEvaluator(decls)
	snap := ev.Evaluate(&provider.Context{Results: map[string]provider.Result{
		// a covers 1/3 of fields, b is fully covered.
		"a": {ProviderID: "a", Connected: true, FieldPresence: map[string]bool{"x": true, "y": false, "z": false}},
		"b": fullResult("b", "x"),
	}})

	// (3*33.33 + 1*100) / 4 = 50, rounded.
	if snap.Overall != 50 {
		t.Errorf("Overall = %d, want 50", snap.Overall)
	}
}

func TestEvaluate_IncompleteProviderListed(t *testing.T) {
	decls := []provider.Declaration{
		{ID: "low", Weight: 10, Fields: []string{"a", "b", "c"}},
		{ID: "boundary", Weight: 10, Fields: []string{"a", "b"}},
	}
	ev := NewEvaluator(decls)
	snap := ev.Evaluate(&provider.Context{Results: map[string]provider.Result{
		// low covers 1 of 3 fields (33%), boundary exactly half.
		"low":      {ProviderID: "low", Connected: true, FieldPresence: map[string]bool{"a": true, "b": false, "c": false}},
		"boundary": {ProviderID: "boundary", Connected: true, FieldPresence: map[string]bool{"a": true, "b": false}},
	}})

	if len(snap.Missing) != 1 {
		t.Fatalf("len(Missing) = %d, want 1 (only sub-50%% providers listed)", len(snap.Missing))
	}
	m := snap.Missing[0]
	if m.ProviderID != "low" || !m.Incomplete {
		t.Errorf("Missing[0] = %+v, want low marked incomplete", m)
	}
}

func TestEvaluate_RequiredFirstWithinWeight(t *testing.T) {
	decls := []provider.Declaration{
		{ID: "opt", Weight: 10, Fields: []string{"x"}},
		{ID: "req", Weight: 10, Required: true, Fields: []string{"x"}},
	}
	ev := NewEvaluator(decls)
	snap := ev.Evaluate(&provider.Context{Results: map[string]provider.Result{}})

	if snap.Missing[0].ProviderID != "req" {
		t.Errorf("Missing[0] = %s, want req (required sorts first at equal weight)", snap.Missing[0].ProviderID)
	}
}

func TestGate(t *testing.T) {
	cases := []struct {
		overall int
		want    bool
	}{
		{0, false},
		{79, false},
		{80, true},
		{82, true},
		{100, true},
	}
	for _, tc := range cases {
		if got := Gate(tc.overall); got != tc.want {
			t.Errorf("Gate(%d) = %v, want %v", tc.overall, got, tc.want)
		}
	}
}

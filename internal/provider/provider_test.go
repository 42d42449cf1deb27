package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFieldCoverage(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		want float64
	}{
		{"disconnected", Result{}, 0},
		{"connected, no declared fields", Result{Connected: true}, 100},
		{"half", Result{Connected: true, FieldPresence: map[string]bool{"a": true, "b": false}}, 50},
		{"full", Result{Connected: true, FieldPresence: map[string]bool{"a": true, "b": true}}, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.res.FieldCoverage(); got != tc.want {
				t.Errorf("FieldCoverage() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGatherAll_PartialFailure(t *testing.T) {
	decls := []Declaration{
		{ID: "good", Weight: 50, Fields: []string{"x"}},
		{ID: "bad", Weight: 50, Fields: []string{"x"}},
		{ID: "absent", Weight: 10, Fields: []string{"x"}},
	}
	reg := NewRegistry(decls)
	reg.Register("good", FetcherFunc(func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"x": 1.0}, nil
	}))
	reg.Register("bad", FetcherFunc(func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("rate limited")
	}))
	reg.Seal()

	pctx := reg.GatherAll(context.Background(), time.Second)

	good := pctx.Result("good")
	if !good.Connected || !good.FieldPresence["x"] {
		t.Errorf("good = %+v, want connected with x present", good)
	}
	bad := pctx.Result("bad")
	if bad.Connected {
		t.Error("failed fetch reported connected")
	}
	if bad.Error == "" {
		t.Error("failed fetch lost its error")
	}
	absent := pctx.Result("absent")
	if absent.Connected || absent.Error == "" {
		t.Errorf("absent = %+v, want disconnected with no-client error", absent)
	}
}

func TestGatherAll_PerFetchTimeout(t *testing.T) {
	decls := []Declaration{
		{ID: "slow", Weight: 50, Fields: []string{"x"}},
		{ID: "fast", Weight: 50, Fields: []string{"x"}},
	}
	reg := NewRegistry(decls)
	reg.Register("slow", FetcherFunc(func(ctx context.Context) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	reg.Register("fast", FetcherFunc(func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"x": true}, nil
	}))
	reg.Seal()

	start := time.Now()
	pctx := reg.GatherAll(context.Background(), 50*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("GatherAll took %v; per-fetch timeout not applied", elapsed)
	}

	if pctx.Result("slow").Connected {
		t.Error("timed-out fetch reported connected")
	}
	if !pctx.Result("fast").Connected {
		t.Error("fast fetch should be unaffected by the slow one")
	}
}

func TestContext_Value(t *testing.T) {
	pctx := &Context{Results: map[string]Result{
		"financial": {ProviderID: "financial", Connected: true, Payload: map[string]any{
			"net_worth": 410000.0,
			"portfolio": 250000.0,
		}},
		"health": {ProviderID: "health", Connected: true, Payload: map[string]any{
			"sleep": map[string]any{"score": 88.0},
		}},
	}}

	cases := []struct {
		source string
		want   float64
		ok     bool
	}{
		{"net_worth", 410000, true},
		{"portfolio", 250000, true},
		{"health.sleep.score", 88, true},
		{"health.sleep.missing", 0, false},
		{"calendar.weekly_hours", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := pctx.Value(tc.source)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Value(%q) = %v, %v; want %v, %v", tc.source, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDefaultDeclarations_WeightsSumTo100(t *testing.T) {
	sum := 0
	for _, d := range DefaultDeclarations() {
		sum += d.Weight
	}
	if sum != 100 {
		t.Errorf("weights sum = %d, want 100", sum)
	}
}

func TestRegister_AfterSealIgnored(t *testing.T) {
	reg := NewRegistry([]Declaration{{ID: "identity", Weight: 100, Fields: []string{"name"}}})
	reg.Seal()
	reg.Register("identity", FetcherFunc(func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"name": "x"}, nil
	}))

	pctx := reg.GatherAll(context.Background(), time.Second)
	if pctx.Result("identity").Connected {
		t.Error("fetcher registered after Seal should be ignored")
	}
}

package dispatch

import (
	"context"
	"testing"
	"time"

	"lifeos/internal/life"
)

// stubMessenger records sends and answers policy checks from fields.
type stubMessenger struct {
	verified bool
	canSend  bool
	sent     []string
	sendErr  error
}

func (s *stubMessenger) PhoneVerified() bool        { return s.verified }
func (s *stubMessenger) CanSend(now time.Time) bool { return s.canSend }
func (s *stubMessenger) SendAlert(ctx context.Context, text string, now time.Time) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, text)
	return nil
}

func TestDispatch_ApprovalGateBlocks(t *testing.T) {
	m := &stubMessenger{verified: true, canSend: true}
	d := New(m, NewMemoryQueue(), nil)

	out := d.Dispatch(context.Background(), life.Action{
		Type:     life.ActionAlert,
		Priority: 9,
		Area:     life.AreaFinancial,
		Text:     "buy 100 shares of VTI",
	}, time.Now())

	if out.Kind != OutcomeBlocked {
		t.Fatalf("Kind = %s, want blocked", out.Kind)
	}
	if !out.Action.Blocked || !out.Action.RequiresApproval {
		t.Error("blocked action not marked Blocked/RequiresApproval")
	}
	if out.Action.BlockedReason == "" {
		t.Error("blocked action missing reason")
	}
	if out.Insight == nil {
		t.Error("blocked action should surface an in-app insight")
	}
	if len(m.sent) != 0 {
		t.Errorf("outbound channel invoked %d times, want 0", len(m.sent))
	}
}

func TestDispatch_ApprovalGateKeywords(t *testing.T) {
	d := New(nil, nil, nil)
	cases := []struct {
		text    string
		blocked bool
	}{
		{"sell the position before Friday", true},
		{"transfer savings to checking", true},
		{"send email to your manager", true},
		{"change password on the brokerage account", true},
		{"publish the quarterly review", true},
		{"install the monitoring agent", true},
		{"review your budget categories", false},
		{"schedule a dentist appointment", false},
		// Word-boundary: "buyer" must not trip the "buy" gate.
		{"read the homebuyer guide", false},
	}
	for _, tc := range cases {
		out := d.Dispatch(context.Background(), life.Action{
			Type: life.ActionRecommend, Priority: 8, Area: life.AreaFinancial,
			InsightRef: tc.text, Text: tc.text,
		}, time.Now())
		got := out.Kind == OutcomeBlocked
		if got != tc.blocked {
			t.Errorf("Dispatch(%q) blocked = %v, want %v", tc.text, got, tc.blocked)
		}
	}
}

func TestDispatch_DuplicateSuppressed(t *testing.T) {
	m := &stubMessenger{verified: true, canSend: true}
	d := New(m, NewMemoryQueue(), nil)
	now := time.Now()

	a := life.Action{Type: life.ActionAlert, Priority: 9, Area: life.AreaSafety,
		InsightRef: "ins-1", Text: "smoke detected in the kitchen"}

	first := d.Dispatch(context.Background(), a, now)
	if first.Kind != OutcomeSent {
		t.Fatalf("first Kind = %s, want sent", first.Kind)
	}
	second := d.Dispatch(context.Background(), a, now.Add(time.Minute))
	if second.Kind != OutcomeDuplicate {
		t.Errorf("second Kind = %s, want duplicate", second.Kind)
	}
	if len(m.sent) != 1 {
		t.Errorf("sent %d times, want 1", len(m.sent))
	}
}

func TestDispatch_SeedFromCompletedActions(t *testing.T) {
	m := &stubMessenger{verified: true, canSend: true}
	d := New(m, NewMemoryQueue(), nil)
	now := time.Now()

	a := life.Action{Type: life.ActionAlert, Priority: 9, Area: life.AreaSafety,
		InsightRef: "ins-1", Text: "smoke detected"}
	d.Seed([]life.CompletedAction{
		{Action: a, CompletedAt: now.Add(-10 * time.Minute)},
	}, now)

	out := d.Dispatch(context.Background(), a, now)
	if out.Kind != OutcomeDuplicate {
		t.Errorf("Kind = %s, want duplicate after restart seed", out.Kind)
	}
}

func TestDispatch_SeedIgnoresStaleActions(t *testing.T) {
	m := &stubMessenger{verified: true, canSend: true}
	d := New(m, NewMemoryQueue(), nil)
	now := time.Now()

	a := life.Action{Type: life.ActionAlert, Priority: 9, Area: life.AreaSafety,
		InsightRef: "ins-1", Text: "smoke detected"}
	d.Seed([]life.CompletedAction{
		{Action: a, CompletedAt: now.Add(-2 * time.Hour)},
	}, now)

	out := d.Dispatch(context.Background(), a, now)
	if out.Kind != OutcomeSent {
		t.Errorf("Kind = %s, want sent (seed outside idempotence window)", out.Kind)
	}
}

func TestDispatch_AlertDowngradesWhenUnverified(t *testing.T) {
	m := &stubMessenger{verified: false, canSend: true}
	d := New(m, NewMemoryQueue(), nil)

	out := d.Dispatch(context.Background(), life.Action{
		Type: life.ActionAlert, Priority: 9, Area: life.AreaSafety,
		InsightRef: "ins-2", Text: "door left open",
	}, time.Now())

	if out.Kind != OutcomeDowngraded {
		t.Fatalf("Kind = %s, want downgraded", out.Kind)
	}
	if out.Insight == nil || out.Insight.Type != life.InsightAlert {
		t.Error("downgrade should produce an in-app alert insight")
	}
	if len(m.sent) != 0 {
		t.Error("unverified channel must never be invoked")
	}
}

func TestDispatch_PromptQueued(t *testing.T) {
	q := NewMemoryQueue()
	d := New(&stubMessenger{verified: true, canSend: true}, q, nil)

	out := d.Dispatch(context.Background(), life.Action{
		Type: life.ActionPrompt, Priority: 8, Area: life.AreaHealth,
		InsightRef: "ins-3", Text: "How is your sleep lately?",
	}, time.Now())

	if out.Kind != OutcomeQueued {
		t.Fatalf("Kind = %s, want queued", out.Kind)
	}
	if q.Pending() != 1 {
		t.Errorf("queue depth = %d, want 1", q.Pending())
	}
}

func TestFlushPrompt_SendsExactlyOne(t *testing.T) {
	m := &stubMessenger{verified: true, canSend: true}
	q := NewMemoryQueue()
	q.Enqueue("first question")
	q.Enqueue("second question")
	d := New(m, q, nil)

	got, sent := d.FlushPrompt(context.Background(), time.Now())
	if !sent || got != "first question" {
		t.Fatalf("FlushPrompt() = %q, %v; want first question, true", got, sent)
	}
	if len(m.sent) != 1 {
		t.Errorf("sent %d messages, want 1 per flush", len(m.sent))
	}
	if q.Pending() != 1 {
		t.Errorf("queue depth = %d, want 1 remaining", q.Pending())
	}
}

func TestFlushPrompt_PolicyBlockedKeepsQueue(t *testing.T) {
	m := &stubMessenger{verified: true, canSend: false}
	q := NewMemoryQueue()
	q.Enqueue("question")
	d := New(m, q, nil)

	if _, sent := d.FlushPrompt(context.Background(), time.Now()); sent {
		t.Error("FlushPrompt sent while policy disallows")
	}
	if q.Pending() != 1 {
		t.Errorf("queue depth = %d, want question retained", q.Pending())
	}
}

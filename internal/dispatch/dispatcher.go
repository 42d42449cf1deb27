// Package dispatch applies per-type policy to planned actions and hands
// them to outbound collaborators. The dispatcher never mutates engine state
// itself; it returns outcomes the scheduler applies under the single-writer
// rule.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"lifeos/internal/life"
)

// IdempotenceWindow is how long a dispatched (insight, type) pair is a
// no-op when re-dispatched.
const IdempotenceWindow = time.Hour

// Messenger is the outbound messaging channel (push/WhatsApp/SMS transport
// lives elsewhere).
type Messenger interface {
	PhoneVerified() bool
	// CanSend reports whether policy (daily quota, quiet hours) allows a
	// send right now.
	CanSend(now time.Time) bool
	SendAlert(ctx context.Context, text string, now time.Time) error
}

// PromptQueue holds proactive questions awaiting delivery to the user.
type PromptQueue interface {
	Enqueue(question string)
	// Next pops the oldest pending question, ok=false when empty.
	Next() (string, bool)
}

// OutcomeKind says what happened to a dispatched action.
type OutcomeKind string

const (
	OutcomeSent       OutcomeKind = "sent"
	OutcomeQueued     OutcomeKind = "queued"
	OutcomeDowngraded OutcomeKind = "downgraded"
	OutcomeRecorded   OutcomeKind = "recorded"
	OutcomeBlocked    OutcomeKind = "blocked"
	OutcomeDuplicate  OutcomeKind = "duplicate"
)

// Outcome is the dispatcher's verdict on one action. When Insight is
// non-nil the scheduler appends it to the state (used for downgrades and
// recommendations).
type Outcome struct {
	Kind    OutcomeKind
	Action  life.Action
	Insight *life.Insight
	Err     error
}

// approvalGate names a keyword set that forces human approval.
type approvalGate struct {
	name     string
	keywords []string
}

// Requests matching these sets are refused and left pending with a blocked
// marker; they are never retried automatically.
var approvalGates = []approvalGate{
	{name: "financial transaction", keywords: []string{"buy", "sell", "transfer", "invest", "withdraw", "trade"}},
	{name: "external communication", keywords: []string{"send email", "reply to", "message them", "contact"}},
	{name: "account modification", keywords: []string{"change password", "close account", "update credentials", "deactivate"}},
	{name: "public publishing", keywords: []string{"publish", "post publicly", "tweet", "share publicly"}},
	{name: "system modification", keywords: []string{"install", "uninstall", "modify system", "delete file", "rm -rf"}},
}

// Dispatcher routes actions per type policy.
type Dispatcher struct {
	messenger Messenger
	prompts   PromptQueue
	logger    *zap.Logger
	recent    *expirable.LRU[string, time.Time]
}

// New creates a dispatcher. Either collaborator may be nil, in which case
// the corresponding channel downgrades.
func New(messenger Messenger, prompts PromptQueue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		messenger: messenger,
		prompts:   prompts,
		logger:    logger.Named("dispatch"),
		recent:    expirable.NewLRU[string, time.Time](512, nil, IdempotenceWindow),
	}
}

// Seed marks actions completed within the idempotence window, typically
// from the persisted completed_actions ring after a restart.
func (d *Dispatcher) Seed(completed []life.CompletedAction, now time.Time) {
	for _, ca := range completed {
		if now.Sub(ca.CompletedAt) < IdempotenceWindow {
			d.recent.Add(actionKey(ca.Action), ca.CompletedAt)
		}
	}
}

// Dispatch applies policy and transports one action.
func (d *Dispatcher) Dispatch(ctx context.Context, action life.Action, now time.Time) Outcome {
	if gate := matchApprovalGate(action.Text); gate != "" {
		action.RequiresApproval = true
		action.Blocked = true
		action.BlockedReason = fmt.Sprintf("requires approval: %s", gate)
		d.logger.Info("action blocked pending approval",
			zap.String("type", string(action.Type)),
			zap.String("gate", gate))
		ins := blockedInsight(action, now)
		return Outcome{Kind: OutcomeBlocked, Action: action, Insight: &ins}
	}

	key := actionKey(action)
	if _, dup := d.recent.Get(key); dup {
		return Outcome{Kind: OutcomeDuplicate, Action: action}
	}

	out := d.dispatchByType(ctx, action, now)
	if out.Kind != OutcomeBlocked {
		d.recent.Add(key, now)
	}
	return out
}

func (d *Dispatcher) dispatchByType(ctx context.Context, action life.Action, now time.Time) Outcome {
	switch action.Type {
	case life.ActionPrompt:
		if d.prompts == nil {
			return d.downgrade(action, now, "no prompt queue available")
		}
		d.prompts.Enqueue(action.Text)
		return Outcome{Kind: OutcomeQueued, Action: action}

	case life.ActionAlert:
		if d.messenger == nil || !d.messenger.PhoneVerified() || !d.messenger.CanSend(now) {
			return d.downgrade(action, now, "messaging channel unavailable or out of policy")
		}
		if err := d.messenger.SendAlert(ctx, action.Text, now); err != nil {
			d.logger.Warn("alert send failed", zap.Error(err))
			return d.downgrade(action, now, "alert delivery failed")
		}
		return Outcome{Kind: OutcomeSent, Action: action}

	case life.ActionRecommend:
		ins := life.Insight{
			ID:        life.InsightID(action.Area, life.InsightRecommendation, action.Text),
			Area:      action.Area,
			Type:      life.InsightRecommendation,
			Priority:  action.Priority,
			Title:     action.Text,
			Content:   "Recommended by the action planner.",
			CreatedAt: now,
		}
		return Outcome{Kind: OutcomeRecorded, Action: action, Insight: &ins}

	default:
		// analyze/remind/track/research/plan actions have no outbound
		// channel yet; record them so observers see the intent.
		return Outcome{Kind: OutcomeRecorded, Action: action}
	}
}

// FlushPrompt delivers at most one queued proactive question through the
// messaging channel. It returns the question and true only when a send
// actually happened; a question that cannot be sent is put back.
func (d *Dispatcher) FlushPrompt(ctx context.Context, now time.Time) (string, bool) {
	if d.prompts == nil || d.messenger == nil {
		return "", false
	}
	if !d.messenger.PhoneVerified() || !d.messenger.CanSend(now) {
		return "", false
	}
	q, ok := d.prompts.Next()
	if !ok {
		return "", false
	}
	if err := d.messenger.SendAlert(ctx, q, now); err != nil {
		d.logger.Warn("prompt send failed", zap.Error(err))
		d.prompts.Enqueue(q)
		return "", false
	}
	return q, true
}

// downgrade turns an undeliverable outbound action into an in-app insight.
func (d *Dispatcher) downgrade(action life.Action, now time.Time, reason string) Outcome {
	ins := life.Insight{
		ID:        life.InsightID(action.Area, life.InsightAlert, action.Text),
		Area:      action.Area,
		Type:      life.InsightAlert,
		Priority:  action.Priority,
		Title:     action.Text,
		Content:   fmt.Sprintf("Delivered in-app: %s.", reason),
		CreatedAt: now,
	}
	return Outcome{Kind: OutcomeDowngraded, Action: action, Insight: &ins}
}

func blockedInsight(action life.Action, now time.Time) life.Insight {
	return life.Insight{
		ID:        life.InsightID(action.Area, life.InsightAlert, "blocked: "+action.Text),
		Area:      action.Area,
		Type:      life.InsightAlert,
		Priority:  action.Priority,
		Title:     fmt.Sprintf("Action awaiting approval: %s", action.Text),
		Content:   action.BlockedReason,
		CreatedAt: now,
	}
}

func matchApprovalGate(text string) string {
	lower := strings.ToLower(text)
	for _, gate := range approvalGates {
		for _, kw := range gate.keywords {
			if containsWord(lower, kw) {
				return gate.name
			}
		}
	}
	return ""
}

// containsWord matches a keyword on word boundaries so "buy" does not match
// "buyer's guide" prefixes incorrectly but phrases still match verbatim.
func containsWord(text, kw string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func actionKey(a life.Action) string {
	return a.InsightRef + "|" + string(a.Type)
}

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sender is the raw outbound transport (SMS gateway, push service). The
// policy layer sits in front of it.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) Send(ctx context.Context, text string) error { return f(ctx, text) }

// Policy bounds the outbound channel. Reloadable at runtime.
type Policy struct {
	QuietStart time.Duration // offset from midnight, e.g. 22h
	QuietEnd   time.Duration // e.g. 8h
	DailyQuota int
	Verified   bool
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// PolicyMessenger enforces quiet hours, a daily quota, and phone
// verification in front of a raw Sender.
type PolicyMessenger struct {
	mu      sync.Mutex
	sender  Sender
	policy  Policy
	sentDay string // "2006-01-02" the counter belongs to
	sent    int
}

// NewPolicyMessenger wraps sender with the given policy.
func NewPolicyMessenger(sender Sender, policy Policy) *PolicyMessenger {
	return &PolicyMessenger{sender: sender, policy: policy}
}

// SetPolicy swaps the policy, typically on config reload. The daily counter
// is kept.
func (p *PolicyMessenger) SetPolicy(policy Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// PhoneVerified reports whether the outbound channel is usable at all.
func (p *PolicyMessenger) PhoneVerified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.policy.Verified
}

// CanSend reports whether policy allows a send at the given time.
func (p *PolicyMessenger) CanSend(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inQuietHours(now) {
		return false
	}
	return p.quotaRemaining(now) > 0
}

// SendAlert delivers one message at the given instant, counting it against
// the daily quota. now comes from the caller's clock so policy decisions
// here agree with the CanSend check that preceded them.
func (p *PolicyMessenger) SendAlert(ctx context.Context, text string, now time.Time) error {
	p.mu.Lock()
	if p.inQuietHours(now) {
		p.mu.Unlock()
		return fmt.Errorf("quiet hours in effect")
	}
	if p.quotaRemaining(now) <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("daily alert quota exhausted")
	}
	sender := p.sender
	p.mu.Unlock()

	if sender == nil {
		return fmt.Errorf("no outbound transport configured")
	}
	if err := sender.Send(ctx, text); err != nil {
		return err
	}

	p.mu.Lock()
	p.countSend(now)
	p.mu.Unlock()
	return nil
}

func (p *PolicyMessenger) inQuietHours(now time.Time) bool {
	start, end := p.policy.QuietStart, p.policy.QuietEnd
	if start == end {
		return false
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := now.Sub(midnight)
	if start < end {
		return offset >= start && offset < end
	}
	// Window wraps midnight (22:00-08:00).
	return offset >= start || offset < end
}

func (p *PolicyMessenger) quotaRemaining(now time.Time) int {
	day := now.Format("2006-01-02")
	if day != p.sentDay {
		p.sentDay = day
		p.sent = 0
	}
	return p.policy.DailyQuota - p.sent
}

func (p *PolicyMessenger) countSend(now time.Time) {
	day := now.Format("2006-01-02")
	if day != p.sentDay {
		p.sentDay = day
		p.sent = 0
	}
	p.sent++
}

// MemoryQueue is an in-process FIFO PromptQueue.
type MemoryQueue struct {
	mu    sync.Mutex
	items []string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(question string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, question)
}

func (q *MemoryQueue) Next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Pending reports the queue depth.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

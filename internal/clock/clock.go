// Package clock abstracts time for the engine so the scheduler can be
// driven by a fake clock in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the time primitives the engine depends on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker behind an interface.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System is the real clock.
type System struct{}

func NewSystem() *System { return &System{} }

func (s *System) Now() time.Time { return time.Now() }

func (s *System) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (s *System) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (st *systemTicker) C() <-chan time.Time { return st.t.C }
func (st *systemTicker) Stop()               { st.t.Stop() }

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
	tickers []*FakeTicker
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewFake returns a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.waiters = append(f.waiters, waiter{at: f.now.Add(d), ch: ch})
	return ch
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	ft := &FakeTicker{f: f, period: d, ch: make(chan time.Time)}
	f.mu.Lock()
	f.tickers = append(f.tickers, ft)
	f.mu.Unlock()
	return ft
}

// Tickers returns every ticker created so far, in creation order. Tests use
// this to reach the ticker a component created internally.
func (f *Fake) Tickers() []*FakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeTicker(nil), f.tickers...)
}

// Advance moves the fake clock forward and fires any due waiters and tickers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	remaining := f.waiters[:0]
	var due []chan time.Time
	for _, w := range f.waiters {
		if !w.at.After(now) {
			due = append(due, w.ch)
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining
	f.mu.Unlock()

	for _, ch := range due {
		ch <- now
	}
}

// FakeTicker is a ticker whose ticks are delivered manually via Tick.
type FakeTicker struct {
	f      *Fake
	period time.Duration
	ch     chan time.Time
	mu     sync.Mutex
	done   bool
}

func (ft *FakeTicker) C() <-chan time.Time { return ft.ch }

func (ft *FakeTicker) Stop() {
	ft.mu.Lock()
	ft.done = true
	ft.mu.Unlock()
}

// Tick fires the ticker once, regardless of the period. Tests use this to
// deliver scheduler ticks at precise points.
func (ft *FakeTicker) Tick() {
	ft.mu.Lock()
	done := ft.done
	ft.mu.Unlock()
	if done {
		return
	}
	ft.ch <- ft.f.Now()
}

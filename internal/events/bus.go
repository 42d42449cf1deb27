// Package events implements the in-process event bus the engine publishes
// to. Observers (UI panels, the heartbeat recorder, logs) subscribe by
// topic; payloads are opaque to the engine's correctness.
package events

import (
	"sync"
	"time"
)

// Topic identifies an event stream. The set is closed; new topics are added
// here, never invented at call sites.
type Topic string

const (
	TopicInitialized         Topic = "initialized"
	TopicBootStarted         Topic = "boot-started"
	TopicBootComplete        Topic = "boot-complete"
	TopicCoverageUpdated     Topic = "coverage-updated"
	TopicOptimizationStarted Topic = "optimization-started"
	TopicCycleStart          Topic = "cycle-start"
	TopicCycleComplete       Topic = "cycle-complete"
	TopicCycleError          Topic = "cycle-error"
	TopicCycleAborted        Topic = "cycle-aborted"
	TopicStepStarted         Topic = "step-started"
	TopicStepCompleted       Topic = "step-completed"
	TopicInsightAdded        Topic = "insight-added"
	TopicGoalChanged         Topic = "goal-changed"
	TopicGoalCompleted       Topic = "goal-completed"
	TopicMilestoneReached    Topic = "milestone-reached"
	TopicGoalOnHold          Topic = "goal-on-hold"
	TopicTaskOnHold          Topic = "task-on-hold"
	TopicAllTasksBlocked     Topic = "all-tasks-blocked"
	TopicCriteriaEvaluated   Topic = "criteria-evaluated"
	TopicCriticalFailure     Topic = "critical-failure"
)

// Event is a single published occurrence.
type Event struct {
	Topic     Topic     `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// Bus fans events out to per-subscriber channels. Publish never blocks the
// engine: a subscriber that falls behind loses events, it cannot wedge a
// cycle.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription
}

type subscription struct {
	topics map[Topic]bool // nil means all topics
	ch     chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers interest in the given topics and returns the delivery
// channel. With no topics the subscriber receives everything. Events are
// delivered in publish order per subscriber.
func (b *Bus) Subscribe(buffer int, topics ...Topic) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscription{ch: make(chan Event, buffer)}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub.ch
}

// Publish delivers the event to all matching subscribers without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[ev.Topic] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Subscriber backlog full, drop.
		}
	}
}

// Emit is shorthand for Publish with just a topic and message.
func (b *Bus) Emit(topic Topic, message string, payload any) {
	b.Publish(Event{Topic: topic, Message: message, Payload: payload})
}

package events

import (
	"testing"
	"time"
)

func TestBus_TopicFiltering(t *testing.T) {
	bus := NewBus()
	cycles := bus.Subscribe(4, TopicCycleStart, TopicCycleComplete)
	all := bus.Subscribe(4)

	bus.Emit(TopicCycleStart, "cycle 1", nil)
	bus.Emit(TopicInsightAdded, "noise", nil)
	bus.Emit(TopicCycleComplete, "cycle 1 done", nil)

	if got := drain(cycles); len(got) != 2 {
		t.Fatalf("filtered subscriber got %d events, want 2", len(got))
	} else if got[0].Topic != TopicCycleStart || got[1].Topic != TopicCycleComplete {
		t.Errorf("filtered order = %v, %v", got[0].Topic, got[1].Topic)
	}
	if got := drain(all); len(got) != 3 {
		t.Errorf("unfiltered subscriber got %d events, want 3", len(got))
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	slow := bus.Subscribe(1, TopicStepStarted)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Emit(TopicStepStarted, "step", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	// The laggard keeps whatever fit in its buffer, nothing more.
	if got := drain(slow); len(got) != 1 {
		t.Errorf("slow subscriber drained %d events, want 1", len(got))
	}
}

func TestBus_TimestampDefaulted(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)
	bus.Publish(Event{Topic: TopicBootStarted})
	ev := <-ch
	if ev.Timestamp.IsZero() {
		t.Error("Publish left the timestamp zero")
	}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

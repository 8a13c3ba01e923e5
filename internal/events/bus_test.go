package events_test

import (
	"testing"

	"adspilot/internal/events"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := events.NewBus()

	a, b := 0, 0
	bus.Subscribe(events.TopicPendingCount, func() { a++ })
	bus.Subscribe(events.TopicPendingCount, func() { b++ })

	bus.Publish(events.TopicPendingCount)
	bus.Publish(events.TopicPendingCount)

	if a != 2 || b != 2 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}

func TestBus_TopicsAreIndependent(t *testing.T) {
	bus := events.NewBus()

	n := 0
	bus.Subscribe(events.TopicPendingList, func() { n++ })

	bus.Publish(events.TopicApprovalsAll)
	if n != 0 {
		t.Fatal("handler fired for a different topic")
	}

	bus.Publish(events.TopicPendingList)
	if n != 1 {
		t.Fatalf("n=%d", n)
	}
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := events.NewBus()
	bus.Publish(events.TopicPendingList) // must not panic
}

func TestBus_SubscribeDuringPublish(t *testing.T) {
	bus := events.NewBus()

	fired := false
	bus.Subscribe(events.TopicPendingCount, func() {
		// Handlers may subscribe; the bus must not hold its lock while
		// invoking them.
		bus.Subscribe(events.TopicPendingList, func() { fired = true })
	})

	bus.Publish(events.TopicPendingCount)
	bus.Publish(events.TopicPendingList)

	if !fired {
		t.Fatal("late subscriber never fired")
	}
}

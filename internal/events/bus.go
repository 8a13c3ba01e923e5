package events

import "sync"

// Topic identifies a read-side cache that can be marked stale.
type Topic string

const (
	// TopicPendingList covers the cached list of pending proposals.
	TopicPendingList Topic = "pending-list"
	// TopicPendingCount covers the pending-proposal counter.
	TopicPendingCount Topic = "pending-count"
	// TopicApprovalsAll covers every per-status proposal list.
	TopicApprovalsAll Topic = "approvals-all"
)

// Bus is a synchronous invalidation bus. Mutating operations publish the
// topics they dirtied; caches subscribe and drop their state. Handlers run
// on the publishing goroutine and must not block.
type Bus struct {
	mu   sync.Mutex
	subs map[Topic][]func()
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]func())}
}

func (b *Bus) Subscribe(topic Topic, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], fn)
}

func (b *Bus) Publish(topic Topic) {
	b.mu.Lock()
	handlers := append([]func(){}, b.subs[topic]...)
	b.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

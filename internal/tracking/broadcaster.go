package tracking

import (
	"sync"

	"github.com/angelmondragon/paytrack/internal/poller"
)

const subscriberBuffer = 16

// broadcaster fans views out to subscribers. Slow subscribers drop views
// rather than block the poller.
type broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan poller.View
	last   poller.View
	closed bool
}

func newBroadcaster(initial poller.View) *broadcaster {
	return &broadcaster{subs: map[int]chan poller.View{}, last: initial}
}

func (b *broadcaster) publish(view poller.View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = view
	for _, ch := range b.subs {
		select {
		case ch <- view:
		default:
		}
	}
}

// subscribe registers a channel that starts with the latest view.
func (b *broadcaster) subscribe() (<-chan poller.View, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan poller.View, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	ch <- b.last

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broadcaster) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

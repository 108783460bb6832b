package identity

import (
	"sync"

	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
)

// Broker fans auth events out to subscribers. Publish never blocks: each
// subscriber has a buffered channel and events beyond its buffer are dropped
// with a warning. SIGNED_OUT is never dropped; it evicts older queued events.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan AuthEvent
	nextID int
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{subs: make(map[int]chan AuthEvent), buffer: buffer}
}

func (b *Broker) Subscribe() (<-chan AuthEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan AuthEvent, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broker) Publish(ev AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		if ev.Type == EventSignedOut {
			deliverSignOut(ch, ev)
			continue
		}
		select {
		case ch <- ev:
		default:
			logger.WarnEvent().Str("component", "identity").Str("event", string(ev.Type)).Msg("auth event dropped: subscriber buffer full")
		}
	}
}

// deliverSignOut makes room by discarding the oldest queued events. Sign-out
// supersedes anything queued before it.
func deliverSignOut(ch chan AuthEvent, ev AuthEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case old := <-ch:
			logger.WarnEvent().Str("component", "identity").Str("event", string(old.Type)).Msg("auth event superseded by sign-out")
		default:
		}
	}
}

package event

import (
	"sync"
	"time"
)

// Topic identifies a lifecycle event kind. Subscribers register per topic,
// so payloads stay typed instead of being dispatched on free-form strings.
type Topic string

const (
	DevStarted     Topic = "dev:started"
	DevError       Topic = "dev:error"
	BuildDone      Topic = "build:done"
	BuildError     Topic = "build:error"
	PreviewStarted Topic = "preview:started"
	PreviewError   Topic = "preview:error"
	Destroyed      Topic = "destroyed"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Topic   Topic
	Project string
	Engine  string
	Port    int
	Err     error
	At      time.Time
}

// Bus is an in-process publish/subscribe hub for launcher lifecycle events.
// Publish never blocks: slow subscribers lose events once their buffer is
// full, which is acceptable for advisory lifecycle notifications.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]chan Event)}
}

// Subscribe registers interest in a topic. The returned cancel func removes
// the subscription and closes the channel.
func (b *Bus) Subscribe(t Topic) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[t] = append(b.subs[t], ch)
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		list := b.subs[t]
		for i, c := range list {
			if c == ch {
				b.subs[t] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every subscriber of its topic.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	list := b.subs[e.Topic]
	b.mu.RUnlock()
	for _, ch := range list {
		select {
		case ch <- e:
		default:
		}
	}
}

// Package events fans orchestrator state changes and session events out to
// dashboard streams.
package events

import (
	"sync"
)

// Event types published by the orchestrator and the transport client.
const (
	TypeStateChanged   = "state.changed"
	TypeSessionExpired = "session.expired"
)

// TopicSession carries process-wide session events.
const TopicSession = "session"

type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Bus is implemented by the in-memory Broker and RedisBroker.
type Bus interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// Broker delivers events to in-process subscribers. Slow subscribers drop
// events rather than block publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Broker) Publish(topic string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}

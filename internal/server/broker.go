package server

import (
	"encoding/json"
	"sync"

	"github.com/huntworks/huntops/internal/team"
)

// RosterEvent is the payload pushed to dashboard subscribers after any team
// mutation. Dashboards are read-only observers: they receive the full
// re-fetched roster rather than maintaining local authority.
type RosterEvent struct {
	Type  string      `json:"type"`
	Teams []team.Team `json:"teams"`
}

// Broker is an in-process pub/sub for the dashboard SSE stream.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded roster events.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Publish sends an event to all subscribers.
func (b *Broker) Publish(event RosterEvent) {
	data, _ := json.Marshal(event)
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}

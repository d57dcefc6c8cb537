// Package events fans calibration progress out to daemon subscribers.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer is how many events a subscriber may lag behind before
// events are dropped for it.
const subscriberBuffer = 32

type subscriber struct {
	// names is nil when every event is wanted.
	names   map[string]struct{}
	dropped atomic.Int64
}

func (s *subscriber) wants(name string) bool {
	if s.names == nil {
		return true
	}
	_, ok := s.names[name]
	return ok
}

type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]*subscriber
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]*subscriber)} }

// Subscribe returns a channel that receives published events. When names are
// given only events with one of those names are delivered.
func (h *EventHub) Subscribe(names ...string) chan Event {
	s := &subscriber{}
	if len(names) > 0 {
		s.names = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.names[n] = struct{}{}
		}
	}

	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = s
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Calling it twice is a no-op.
func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	s, ok := h.subs[ch]
	if ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()

	if ok && s.dropped.Load() > 0 {
		logrus.WithField("dropped", s.dropped.Load()).Debug("subscriber lagged behind and missed events")
	}
}

// Len returns the number of subscribers.
func (h *EventHub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish sends payload to every interested subscriber without blocking. A
// nil hub discards everything.
func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Warn("failed to marshal event")
		return
	}
	msg := Event{Name: name, Data: b}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for ch, s := range h.subs {
		if !s.wants(name) {
			continue
		}
		select {
		case ch <- msg:
			delivered++
		default:
			s.dropped.Add(1)
		}
	}
	logrus.WithFields(logrus.Fields{
		"event":       name,
		"subscribers": delivered,
	}).Trace("event published")
}

// Package fanout mirrors dialer status changes to connected UI clients.
// Delivery is best effort: slow subscribers lose events instead of blocking publishers.
package fanout

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	EventCallStatus    = "call-status"
	EventIncomingCall  = "incoming-call"
	EventMessageStatus = "message-status"
)

// Event is one published notification.
type Event struct {
	Name string    `json:"event"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// CallStatus is the payload of the call-status event.
type CallStatus struct {
	SID    string `json:"sid"`
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status"`
}

type subscriber struct {
	ch chan Event
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	dropped atomic.Uint64
	log     *slog.Logger
	now     func() time.Time
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: map[*subscriber]struct{}{}, log: log, now: time.Now}
}

// Publish delivers to every subscriber without blocking.
func (h *Hub) Publish(name string, data any) {
	ev := Event{Name: name, Data: data, At: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
			h.log.Debug("fanout subscriber full, event dropped", "event", name)
		}
	}
}

// Subscribe returns a channel of events and a function that ends the subscription.
// The channel is closed when the subscription ends or the hub closes.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.ch)
			}
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts events lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close ends every subscription. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
}

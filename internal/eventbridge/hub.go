package eventbridge

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscription queue length used when HubOptions
// does not set one.
const DefaultBuffer = 64

// SubscriptionID identifies one subscription.
type SubscriptionID uint64

// Callback receives matching events on a notifier goroutine. The callee
// owns the event and must release it.
type Callback func(ev *Event)

// Service is the device notification service modules subscribe to.
type Service interface {
	Subscribe(f Filter, cb Callback) (SubscriptionID, error)
	Unsubscribe(id SubscriptionID) error
}

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// HubOptions configures a Hub.
type HubOptions struct {
	// Buffer is the queue length of each subscription.
	Buffer int
	Logger Logger
}

type subscriber struct {
	id       SubscriptionID
	filter   Filter
	callback Callback
	queue    chan *Event
	done     chan struct{}
	stopping atomic.Bool
}

// Hub is an in-process Service. Publish fans events out to matching
// subscriptions; each subscription has its own goroutine and bounded queue.
type Hub struct {
	mu     sync.RWMutex
	subs   map[SubscriptionID]*subscriber
	nextID SubscriptionID
	closed bool

	buffer      int
	logger      Logger
	outstanding atomic.Int64
	dropped     atomic.Uint64
}

// NewHub creates a Hub.
func NewHub(opts HubOptions) *Hub {
	h := &Hub{
		subs:   make(map[SubscriptionID]*subscriber),
		buffer: opts.Buffer,
		logger: opts.Logger,
	}
	if h.buffer <= 0 {
		h.buffer = DefaultBuffer
	}
	if h.logger == nil {
		h.logger = noopLogger{}
	}
	return h
}

// Subscribe registers cb for events matching f.
func (h *Hub) Subscribe(f Filter, cb Callback) (SubscriptionID, error) {
	if cb == nil {
		return 0, ErrNilCallback
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrHubClosed
	}

	h.nextID++
	sub := &subscriber{
		id:       h.nextID,
		filter:   f,
		callback: cb,
		queue:    make(chan *Event, h.buffer),
		done:     make(chan struct{}),
	}
	h.subs[sub.id] = sub
	go h.serve(sub)
	return sub.id, nil
}

// Unsubscribe removes a subscription and blocks until its goroutine has
// finished any in-flight callback. Undelivered events are released.
func (h *Hub) Unsubscribe(id SubscriptionID) error {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSubscription, id)
	}

	sub.stopping.Store(true)
	close(sub.queue)
	<-sub.done
	return nil
}

// Publish delivers an event to every matching subscription and returns how
// many accepted it. A subscription whose queue is full drops the event.
func (h *Hub) Publish(topic []string, values map[string]any) int {
	probe := &Event{Topic: topic, Values: values}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subs {
		if !sub.filter.Matches(probe) {
			continue
		}
		h.outstanding.Add(1)
		ev := NewEvent(topic, cloneValues(values), func() { h.outstanding.Add(-1) })
		select {
		case sub.queue <- ev:
			delivered++
		default:
			h.dropped.Add(1)
			ev.Release()
			h.logger.Warn("event queue full, dropping event",
				"subscription", sub.id,
				"topic", ev.TopicString(),
			)
		}
	}
	return delivered
}

// Close unsubscribes everything and rejects new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]SubscriptionID, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		_ = h.Unsubscribe(id)
	}
}

// SubscriptionCount returns the number of active subscriptions.
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Outstanding returns the number of delivered events not released yet.
func (h *Hub) Outstanding() int64 {
	return h.outstanding.Load()
}

// Dropped returns the number of events dropped because a queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) serve(sub *subscriber) {
	defer close(sub.done)
	for ev := range sub.queue {
		if sub.stopping.Load() {
			ev.Release()
			continue
		}
		h.deliver(sub, ev)
	}
}

func (h *Hub) deliver(sub *subscriber, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event callback panic recovered",
				"subscription", sub.id,
				"topic", ev.TopicString(),
				"panic", r,
			)
		}
	}()
	sub.callback(ev)
}

func cloneValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

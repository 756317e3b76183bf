package eventbridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
)

// Handler processes one event. Returning an error wrapping ErrMalformed
// drops the event with a warning.
type Handler func(ev *Event) error

// Poster hands engine work to the goroutine that owns the address space.
type Poster interface {
	Post(fn func(e addrspace.Engine)) error
}

// Observer is notified of event outcomes, for metrics.
type Observer interface {
	EventHandled(module string)
	EventDropped(module, reason string)
}

type noopObserver struct{}

func (noopObserver) EventHandled(string)         {}
func (noopObserver) EventDropped(string, string) {}

// Bridge manages the subscriptions of one module.
type Bridge struct {
	svc      Service
	module   string
	logger   Logger
	observer Observer

	mu  sync.Mutex
	ids []SubscriptionID
}

// NewBridge creates a bridge for module on svc.
func NewBridge(svc Service, module string, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{svc: svc, module: module, logger: logger, observer: noopObserver{}}
}

// SetObserver sets the metrics observer.
func (b *Bridge) SetObserver(o Observer) {
	if o != nil {
		b.observer = o
	}
}

// Subscribe registers h for events matching f. The event is always released
// after h returns.
func (b *Bridge) Subscribe(f Filter, h Handler) error {
	id, err := b.svc.Subscribe(f, b.wrap(h))
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", b.module, err)
	}
	b.mu.Lock()
	b.ids = append(b.ids, id)
	b.mu.Unlock()
	return nil
}

func (b *Bridge) wrap(h Handler) Callback {
	return func(ev *Event) {
		defer ev.Release()
		defer func() {
			if r := recover(); r != nil {
				b.observer.EventDropped(b.module, "panic")
				b.logger.Error("event handler panic recovered",
					"topic", ev.TopicString(),
					"panic", r,
				)
			}
		}()

		err := h(ev)
		switch {
		case err == nil:
			b.observer.EventHandled(b.module)
		case errors.Is(err, ErrMalformed):
			b.observer.EventDropped(b.module, "malformed")
			b.logger.Warn("dropping malformed event",
				"topic", ev.TopicString(),
				"error", err,
			)
		default:
			b.observer.EventDropped(b.module, "handler_error")
			b.logger.Warn("event handler failed",
				"topic", ev.TopicString(),
				"error", err,
			)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids)
}

// Close unsubscribes everything, blocking until in-flight handlers return.
func (b *Bridge) Close() error {
	b.mu.Lock()
	ids := b.ids
	b.ids = nil
	b.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := b.svc.Unsubscribe(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

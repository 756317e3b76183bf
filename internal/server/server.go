package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
)

// DefaultQueueSize is the handoff queue capacity when none is configured.
const DefaultQueueSize = 256

// Handoff outcomes reported to the Observer.
const (
	HandoffOK        = "ok"
	HandoffQueueFull = "queue_full"
	HandoffStopped   = "stopped"
)

// Observer is notified of handoff outcomes, for metrics.
type Observer interface {
	Handoff(outcome string)
	QueueDepth(n int)
}

type noopObserver struct{}

func (noopObserver) Handoff(string) {}
func (noopObserver) QueueDepth(int) {}

// eventSource is implemented by engines that deliver triggered events.
type eventSource interface {
	OnEvent(sink addrspace.EventSink)
}

// Options configures a Server.
type Options struct {
	// QueueSize bounds the handoff queue. Zero means DefaultQueueSize.
	QueueSize int

	// Logger is the component logger. Nil means logging.Default().
	Logger *logging.Logger

	// Observer receives handoff outcomes. Nil disables metrics.
	Observer Observer
}

// Server runs engine work on a single goroutine.
type Server struct {
	engine   addrspace.Engine
	logger   *logging.Logger
	observer Observer

	work chan func(addrspace.Engine)

	// mu guards started and stopped against Post and Do.
	mu      sync.RWMutex
	started bool
	stopped bool

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	sinksMu sync.RWMutex
	sinks   map[uint64]addrspace.EventSink
	nextID  uint64
}

// New creates a server around engine. The engine must not be used by any
// other goroutine once Start has been called.
func New(engine addrspace.Engine, opts Options) *Server {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	s := &Server{
		engine:   engine,
		logger:   opts.Logger.With("component", "server"),
		observer: opts.Observer,
		work:     make(chan func(addrspace.Engine), opts.QueueSize),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		sinks:    make(map[uint64]addrspace.EventSink),
	}

	if src, ok := engine.(eventSource); ok {
		src.OnEvent(s.dispatch)
	}
	return s
}

// Start launches the server goroutine. Work posted before Start is run
// once the loop begins.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("server started", "queue_size", cap(s.work))
	return nil
}

func (s *Server) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case fn := <-s.work:
			s.run(fn)
			s.observer.QueueDepth(len(s.work))
		}
	}
}

// run executes one unit of work. A panic is logged and swallowed so the
// server goroutine survives a faulty module.
func (s *Server) run(fn func(addrspace.Engine)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in server work", "panic", r)
		}
	}()
	fn(s.engine)
}

// Post hands fn to the server goroutine without blocking.
//
// Returns:
//   - ErrStopped: the server has been stopped
//   - ErrQueueFull: the queue is at capacity; fn was not queued
func (s *Server) Post(fn func(e addrspace.Engine)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		s.observer.Handoff(HandoffStopped)
		return ErrStopped
	}
	select {
	case s.work <- fn:
		s.observer.Handoff(HandoffOK)
		return nil
	default:
		s.observer.Handoff(HandoffQueueFull)
		return ErrQueueFull
	}
}

// Do runs fn on the server goroutine and waits for its result. It blocks
// while the queue is full, until ctx is done.
func (s *Server) Do(ctx context.Context, fn func(e addrspace.Engine) error) error {
	result := make(chan error, 1)
	wrapped := func(e addrspace.Engine) {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		result <- fn(e)
	}

	if err := s.enqueue(ctx, wrapped); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.exited:
		// The loop may have run the work just before exiting.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

func (s *Server) enqueue(ctx context.Context, fn func(addrspace.Engine)) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()

	if stopped {
		return ErrStopped
	}
	select {
	case s.work <- fn:
		return nil
	case <-s.exited:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new work, signals the loop and waits for it to exit.
// Safe to call multiple times.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.done)
		s.wg.Wait()

		s.logger.Info("server stopped", "discarded", len(s.work))
	})
}

// Subscribe registers sink for triggered events and returns a function
// that removes it. Sinks run on the server goroutine and must not block.
func (s *Server) Subscribe(sink addrspace.EventSink) (unsubscribe func()) {
	s.sinksMu.Lock()
	s.nextID++
	id := s.nextID
	s.sinks[id] = sink
	s.sinksMu.Unlock()

	return func() {
		s.sinksMu.Lock()
		delete(s.sinks, id)
		s.sinksMu.Unlock()
	}
}

func (s *Server) dispatch(ev addrspace.Event) {
	s.sinksMu.RLock()
	defer s.sinksMu.RUnlock()
	for _, sink := range s.sinks {
		sink(ev)
	}
}

// QueueLen returns the number of queued work items.
func (s *Server) QueueLen() int {
	return len(s.work)
}

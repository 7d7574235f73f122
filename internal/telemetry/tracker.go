package telemetry

import (
	"context"
	"sync"

	"github.com/koustreak/tablekit/internal/logger"
)

// Tracker accepts events for asynchronous delivery.
type Tracker interface {
	// Track enqueues ev. It never blocks and never fails the caller.
	Track(ev Event)

	// Close stops accepting events and waits for queued ones to be sent,
	// or for ctx to end.
	Close(ctx context.Context) error
}

// Queue is a Tracker backed by a bounded channel and a single worker.
type Queue struct {
	sink   Sink
	log    *logger.Logger
	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ Tracker = (*Queue)(nil)

// NewQueue starts a worker delivering events to sink. size bounds the
// number of events waiting; further events are dropped.
func NewQueue(sink Sink, size int, log *logger.Logger) *Queue {
	if size <= 0 {
		size = 100
	}
	if log == nil {
		log = logger.Nop()
	}
	q := &Queue{
		sink:   sink,
		log:    log,
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for ev := range q.events {
		if err := q.sink.Send(context.Background(), ev); err != nil {
			q.log.WarnWith("telemetry event not delivered", err, map[string]any{"action": ev.Action})
		}
	}
}

// Track enqueues ev, dropping it when the queue is full or closed.
func (q *Queue) Track(ev Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.events <- ev:
	default:
		q.log.WarnWith("telemetry queue full, event dropped", nil, map[string]any{"action": ev.Action})
	}
}

// Close drains the queue.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nop struct{}

func (nop) Track(Event)                 {}
func (nop) Close(context.Context) error { return nil }

// Nop returns a Tracker that discards every event.
func Nop() Tracker { return nop{} }

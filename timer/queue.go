package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ehsanranjbar/ordkeymap"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a timer does not exist in the queue.
	ErrNotFound = errors.New("timer not found")
)

// DefaultPollInterval is how long Run sleeps when the queue is empty.
const DefaultPollInterval = time.Second

// Timer is a value scheduled to fire at a point in time.
type Timer[V any] struct {
	ID    uuid.UUID
	At    time.Time
	Value V
}

// Queue is a set of timers ordered by deadline. It is safe for concurrent use.
type Queue[V any] struct {
	mu           sync.Mutex
	m            *ordkeymap.Map[uuid.UUID, time.Time, V]
	now          func() time.Time
	pollInterval time.Duration
	wake         chan struct{}
}

// NewQueue creates a new Queue.
func NewQueue[V any](opts ...func(*Queue[V])) *Queue[V] {
	q := &Queue[V]{
		m:            ordkeymap.NewFunc[uuid.UUID, time.Time, V](time.Time.Compare),
		now:          time.Now,
		pollInterval: DefaultPollInterval,
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// WithClock sets the function the queue uses to tell the current time.
func WithClock[V any](now func() time.Time) func(*Queue[V]) {
	return func(q *Queue[V]) {
		q.now = now
	}
}

// WithPollInterval sets how long Run waits for new timers when the queue is empty.
func WithPollInterval[V any](d time.Duration) func(*Queue[V]) {
	return func(q *Queue[V]) {
		q.pollInterval = d
	}
}

// Schedule adds a timer firing at the given time and returns its ID.
func (q *Queue[V]) Schedule(at time.Time, v V) uuid.UUID {
	id := uuid.New()

	q.mu.Lock()
	q.m.Add(id, at, v)
	q.mu.Unlock()

	q.notify()
	return id
}

// Reschedule moves an existing timer to a new deadline.
func (q *Queue[V]) Reschedule(id uuid.UUID, at time.Time) error {
	q.mu.Lock()
	_, v, ok := q.m.Get(id)
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	q.m.Add(id, at, v)
	q.mu.Unlock()

	q.notify()
	return nil
}

// Cancel removes a timer and returns its value.
func (q *Queue[V]) Cancel(id uuid.UUID) (V, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, v, ok := q.m.Remove(id)
	return v, ok
}

// Next returns the earliest deadline in the queue.
func (q *Queue[V]) Next() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	at, _, ok := q.m.PeekSmallest()
	return at, ok
}

// Len returns the number of pending timers.
func (q *Queue[V]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.m.Len()
}

// PopDue removes and returns every timer whose deadline has passed. Timers
// are returned earliest first; timers sharing a deadline come in no particular order.
func (q *Queue[V]) PopDue() []Timer[V] {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var due []Timer[V]
	for {
		at, _, ok := q.m.PeekSmallest()
		if !ok || at.After(now) {
			return due
		}

		at, entries, _ := q.m.RemoveSmallest()
		for _, e := range entries {
			due = append(due, Timer[V]{ID: e.Key, At: at, Value: e.Value})
		}
	}
}

// Run fires timers as they become due until ctx is done. fire is called
// from the goroutine running Run, outside of the queue's lock.
func (q *Queue[V]) Run(ctx context.Context, fire func(Timer[V])) error {
	for {
		for _, t := range q.PopDue() {
			fire(t)
		}

		wait := q.pollInterval
		if at, ok := q.Next(); ok {
			wait = at.Sub(q.now())
			if wait <= 0 {
				continue
			}
		}

		tm := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			tm.Stop()
			return ctx.Err()
		case <-q.wake:
			tm.Stop()
		case <-tm.C:
		}
	}
}

func (q *Queue[V]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

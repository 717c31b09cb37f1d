package engine

import (
	"sync"
	"time"
)

// RequestQueue is a thread-safe FIFO queue of requests.
//
// The queue is unbounded so the reader never blocks on a slow pool.
// Request ids are assigned inside the queue lock, which makes id order and
// dequeue order the same thing.
//
// Workers block in Take on a condition variable. Close wakes every waiter;
// a closed queue still hands out what it holds and reports exhaustion only
// once it is empty.
type RequestQueue struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	requests []Request
	closed   bool
	clock    *Clock
	now      func() time.Time
}

// NewRequestQueue creates an empty queue with ids starting at 1.
func NewRequestQueue() *RequestQueue {
	return newRequestQueue(NewClock(), time.Now)
}

func newRequestQueue(clock *Clock, now func() time.Time) *RequestQueue {
	q := &RequestQueue{
		requests: make([]Request, 0, 64),
		clock:    clock,
		now:      now,
	}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// Submit assigns the next id to cmd, stamps its arrival time and appends it.
// Thread-safe: may be called from any goroutine.
// Returns ErrQueueClosed if the queue is closed; no id is consumed then.
func (q *RequestQueue) Submit(cmd Command) (Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return Request{}, ErrQueueClosed
	}

	req := Request{
		ID:      q.clock.Next(),
		Arrival: q.now(),
		Command: cmd,
	}
	q.requests = append(q.requests, req)
	q.nonEmpty.Signal()

	return req, nil
}

// Take removes and returns the front request.
// Blocks until a request is available or the queue is closed.
// Returns (Request{}, false) once the queue is closed and empty.
func (q *RequestQueue) Take() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.requests) == 0 && !q.closed {
		q.nonEmpty.Wait()
	}
	if len(q.requests) == 0 {
		return Request{}, false
	}
	return q.popLocked(), true
}

// TryTake attempts to take without blocking.
// Returns (Request{}, false) if the queue is empty.
func (q *RequestQueue) TryTake() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return Request{}, false
	}
	return q.popLocked(), true
}

func (q *RequestQueue) popLocked() Request {
	req := q.requests[0]

	// Drop the slot so the Ops slice can be collected.
	q.requests[0] = Request{}

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return req
}

// Len returns the current queue length.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// LastID returns the highest id handed out so far, or 0.
func (q *RequestQueue) LastID() int64 {
	return q.clock.Current()
}

// Closed reports whether Close has been called.
func (q *RequestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more requests will be submitted.
// Wakes all blocked takers. Idempotent.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.nonEmpty.Broadcast()
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

// WorkerPool runs a fixed number of workers over a RequestQueue.
//
// Each worker takes the next request, executes it, stamps the end time and
// hands the Result to the recorder. Workers exit once the queue is closed
// and empty, so Wait returns only after every accepted request has a
// result.
type WorkerPool struct {
	workers  int
	queue    *RequestQueue
	executor *Executor
	recorder Recorder
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	wg      sync.WaitGroup
	started atomic.Bool

	// Atomic counters for thread-safe statistics
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	// pending counts submitted requests without a recorded result.
	mu      sync.Mutex
	idle    *sync.Cond
	pending int64
}

func newWorkerPool(workers int, q *RequestQueue, x *Executor, rec Recorder, obs Observer, logger *slog.Logger, now func() time.Time) *WorkerPool {
	p := &WorkerPool{
		workers:  workers,
		queue:    q,
		executor: x,
		recorder: rec,
		observer: obs,
		logger:   logger,
		now:      now,
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// start launches the workers. Calling it twice is a no-op.
func (p *WorkerPool) start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// worker is the goroutine that processes requests.
func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		req, ok := p.queue.Take()
		if !ok {
			p.logger.Debug("worker exiting", "worker", id)
			return
		}
		p.observer.QueueDepth(p.queue.Len())
		p.process(ctx, id, req)
	}
}

// process executes a single request and records its result.
func (p *WorkerPool) process(ctx context.Context, workerID int, req Request) {
	p.observer.WorkersActive(int(p.active.Add(1)))
	defer func() {
		p.observer.WorkersActive(int(p.active.Add(-1)))
	}()

	out := p.execute(ctx, req)

	res := Result{
		RequestID: req.ID,
		Kind:      req.Kind,
		Outcome:   out,
		Start:     req.Arrival,
		End:       p.now(),
	}

	if out.Status == StatusFailed {
		p.failed.Add(1)
		p.logger.Error("request failed",
			"id", req.ID,
			"kind", req.Kind.String(),
			"worker", workerID,
			"error", out.Err,
		)
	} else {
		p.completed.Add(1)
		p.logger.Debug("request done",
			"id", req.ID,
			"status", out.Status.String(),
			"worker", workerID,
			"duration", res.Duration(),
		)
	}

	if err := p.recorder.Record(res); err != nil {
		p.logger.Error("record result", "id", req.ID, "error", err)
	}
	p.observer.RequestCompleted(res)
	p.done()
}

// execute runs the executor and turns a panic into a failed outcome so one
// request cannot take down the pool.
func (p *WorkerPool) execute(ctx context.Context, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusFailed, Err: fmt.Errorf("panic executing request %d: %v", req.ID, r)}
		}
	}()
	return p.executor.Execute(ctx, req)
}

func (p *WorkerPool) add() {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
}

func (p *WorkerPool) done() {
	p.mu.Lock()
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
	p.mu.Unlock()
}

// waitIdle blocks until every submitted request has been recorded.
func (p *WorkerPool) waitIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending > 0 {
		p.idle.Wait()
	}
}

// wait blocks until every worker has exited.
func (p *WorkerPool) wait() {
	p.wg.Wait()
}

// Stats returns current pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	p.mu.Lock()
	pending := p.pending
	p.mu.Unlock()

	return PoolStats{
		Workers:   p.workers,
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Pending:   pending,
	}
}

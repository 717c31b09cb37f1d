package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/bankserver/internal/ledger"
)

// Recorder receives every Result exactly once.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(res Result) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(res Result) error

// Record calls f(res).
func (f RecorderFunc) Record(res Result) error {
	return f(res)
}

// Observer is notified of request lifecycle events, typically for metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	RequestSubmitted(kind Kind)
	RequestRejected(code CommandErrorCode)
	RequestCompleted(res Result)
	QueueDepth(n int)
	WorkersActive(n int)
}

type nopObserver struct{}

func (nopObserver) RequestSubmitted(Kind)            {}
func (nopObserver) RequestRejected(CommandErrorCode) {}
func (nopObserver) RequestCompleted(Result)          {}
func (nopObserver) QueueDepth(int)                   {}
func (nopObserver) WorkersActive(int)                {}

// DefaultWorkers is the pool size used when no WithWorkers option is given.
const DefaultWorkers = 10

// Engine accepts commands, queues them, and executes them on a fixed pool
// of workers against a ledger.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine, though ids follow call order only
//     for a single submitter
//   - Start(), Shutdown(), Wait(): safe to call from any goroutine
//
// Lifecycle: New, Start, any number of Submit calls, then END (or
// Shutdown) closes intake, and Wait returns after the queue has drained.
type Engine struct {
	store    ledger.Store
	locker   ledger.Locker
	lockMode ledger.LockMode
	workers  int
	recorder Recorder
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	clock    *Clock

	queue *RequestQueue
	pool  *WorkerPool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithWorkers sets the pool size.
//
// Default: 10 workers (DefaultWorkers)
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLockMode selects fine (per-account) or coarse (whole ledger) locking.
func WithLockMode(mode ledger.LockMode) EngineOption {
	return func(e *Engine) {
		e.lockMode = mode
	}
}

// WithLocker supplies a Locker directly; it overrides WithLockMode.
func WithLocker(l ledger.Locker) EngineOption {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithObserver registers an observer for metrics.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithNow replaces the wall clock used for arrival and completion times.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithClock sets the id clock. Used to continue an id sequence.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine over s that reports results to rec.
//
// The engine does not own s; the caller closes it after Wait returns.
func New(s ledger.Store, rec Recorder, opts ...EngineOption) (*Engine, error) {
	if s == nil {
		return nil, errors.New("engine: nil store")
	}
	if rec == nil {
		return nil, errors.New("engine: nil recorder")
	}

	e := &Engine{
		store:    s,
		lockMode: ledger.LockFine,
		workers:  DefaultWorkers,
		recorder: rec,
		observer: nopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
		clock:    NewClock(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.workers < 1 {
		return nil, fmt.Errorf("engine: workers must be at least 1, got %d", e.workers)
	}
	if e.locker == nil {
		l, err := ledger.NewLocker(e.lockMode, s.Accounts())
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.locker = l
	}

	e.queue = newRequestQueue(e.clock, e.now)
	e.pool = newWorkerPool(e.workers, e.queue, NewExecutor(s, e.locker), e.recorder, e.observer, e.logger, e.now)

	return e, nil
}

// Start launches the worker pool. ctx is passed to every storage call;
// cancelling it makes in-flight and remaining requests fail with ERR rather
// than stopping the drain.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("engine starting",
		"workers", e.workers,
		"accounts", e.store.Accounts(),
		"lock_mode", string(e.lockMode),
	)
	e.pool.start(ctx)
}

// Submit parses one input line and enqueues it.
//
// Blank lines return a CommandError with ErrCodeEmpty, which callers
// usually skip. Any other malformed line returns a CommandError and is
// neither enqueued nor given an id. END closes intake and returns a request
// with ID 0. After END every call returns ErrQueueClosed.
func (e *Engine) Submit(line string) (Request, error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		e.reject(err)
		return Request{}, err
	}
	req, err := e.SubmitCommand(cmd)
	var ce *CommandError
	if errors.As(err, &ce) && ce.Line == "" {
		ce.Line = line
	}
	return req, err
}

// SubmitCommand enqueues an already parsed command. A command with the
// wrong number of operations or an account outside 1..n is rejected like
// a malformed line.
func (e *Engine) SubmitCommand(cmd Command) (Request, error) {
	err := ValidateShape(cmd)
	if err == nil {
		err = ValidateAccounts(cmd, e.store.Accounts())
	}
	if err != nil {
		e.reject(err)
		return Request{}, err
	}

	if cmd.Kind == KindEnd {
		if e.queue.Closed() {
			return Request{}, ErrQueueClosed
		}
		e.Shutdown()
		return Request{Command: cmd}, nil
	}

	e.pool.add()
	req, err := e.queue.Submit(cmd)
	if err != nil {
		e.pool.done()
		return Request{}, err
	}

	e.observer.RequestSubmitted(req.Kind)
	e.observer.QueueDepth(e.queue.Len())
	e.logger.Debug("request queued", "id", req.ID, "kind", req.Kind.String())

	return req, nil
}

func (e *Engine) reject(err error) {
	code := CommandErrorCodeOf(err)
	if code == ErrCodeEmpty {
		return
	}
	e.observer.RequestRejected(code)
	e.logger.Warn("command rejected", "error", err)
}

// Drain blocks until every request submitted so far has a recorded result.
// Intake stays open.
func (e *Engine) Drain() {
	e.pool.waitIdle()
}

// Shutdown closes intake. Requests already queued still execute.
// Idempotent.
func (e *Engine) Shutdown() {
	if !e.queue.Closed() {
		e.logger.Info("engine stopping: intake closed", "last_id", e.queue.LastID())
	}
	e.queue.Close()
}

// Wait blocks until the queue is closed and every worker has exited.
// Every accepted request has been recorded when Wait returns.
func (e *Engine) Wait() {
	e.pool.wait()
	e.logger.Info("engine stopped", "completed", e.pool.completed.Load(), "failed", e.pool.failed.Load())
}

// Stats returns current pool statistics.
func (e *Engine) Stats() PoolStats {
	return e.pool.Stats()
}

// Accounts returns the number of accounts in the ledger.
func (e *Engine) Accounts() int {
	return e.store.Accounts()
}

// Package lifecycle runs cleanup tasks in reverse order of registration.
//
// A command registers one task per resource as it opens it (store, audit
// log, metrics server) and drains the stack once on the way out:
//
//	var stack lifecycle.Stack
//	defer func() { retErr = errors.Join(retErr, stack.Run(ctx)) }()
//
// Tasks run once, LIFO. Panics are recovered. Run is idempotent and returns
// an aggregated error via errors.Join.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a cleanup function. It should honor ctx and return an error if
// it can't finish.
type Task func(ctx context.Context) error

// Stack is a LIFO list of cleanup tasks. The zero value is ready to use.
type Stack struct {
	mu     sync.Mutex
	tasks  []namedTask
	closed bool
}

type namedTask struct {
	name string
	run  Task
}

// Add registers a task. If t is nil or Run has already started, Add does
// nothing.
func (s *Stack) Add(name string, t Task) {
	if t == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.tasks = append(s.tasks, namedTask{name: name, run: t})
}

// AddCloser registers a task that calls fn, ignoring ctx.
func (s *Stack) AddCloser(name string, fn func() error) {
	if fn == nil {
		return
	}
	s.Add(name, func(context.Context) error { return fn() })
}

// Len returns the number of pending tasks.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Run drains all registered tasks in LIFO order. Later calls are no-ops.
//
// If ctx is done mid-drain, Run stops early and returns the context error
// joined with any task errors so far.
func (s *Stack) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	var errs []error
	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("cleanup canceled before %s: %w", tasks[i].name, ctx.Err()))
			return errors.Join(errs...)
		default:
		}

		if err := runTask(ctx, tasks[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runTask(ctx context.Context, t namedTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in cleanup %s: %v", t.name, r)
		}
	}()

	if err := t.run(ctx); err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}
	return nil
}

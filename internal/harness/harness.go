package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/roach88/bankserver/internal/audit"
	"github.com/roach88/bankserver/internal/engine"
	"github.com/roach88/bankserver/internal/ledger"
	"github.com/roach88/bankserver/internal/testutil"
)

// CodeClosed marks a line refused because END was already accepted.
const CodeClosed = "CLOSED"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation of the scenario held.
	Pass bool `json:"pass"`

	// Lines are the result lines without TIME, sorted by request id.
	Lines []string `json:"lines"`

	// Rejects are the refused lines in input order. Blank lines are
	// skipped, not rejected.
	Rejects []Reject `json:"rejects,omitempty"`

	// Balances are the final account balances, account 1 first.
	Balances []int64 `json:"balances"`

	// Errors contains validation error messages.
	Errors []string `json:"errors,omitempty"`
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// entryCollector is an engine.Recorder that keeps audit entries.
type entryCollector struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *entryCollector) Record(res engine.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, audit.EntryOf(res))
	return nil
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh zero-latency memory ledger for isolation.
// Run returns an error only when the scenario cannot be executed at all;
// unmet expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	store, err := ledger.NewMemoryStore(scenario.Accounts, ledger.WithLatency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}
	defer store.Close()

	rec := &entryCollector{}
	workers := scenario.Workers
	if workers == 0 {
		workers = 1
	}
	eng, err := engine.New(store, rec,
		engine.WithWorkers(workers),
		engine.WithLockMode(ledger.LockMode(scenario.LockMode)),
		engine.WithLogger(testutil.DiscardLogger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	ctx := context.Background()
	eng.Start(ctx)

	result := &Result{Pass: true}
	accepted := 0
	for _, line := range scenario.Commands {
		req, err := eng.Submit(line)
		switch {
		case err == nil:
			if req.Kind != engine.KindEnd {
				accepted++
			}
		case engine.CommandErrorCodeOf(err) == engine.ErrCodeEmpty:
			continue
		case engine.IsCommandError(err):
			result.Rejects = append(result.Rejects, Reject{Line: line, Code: string(engine.CommandErrorCodeOf(err))})
		case errors.Is(err, engine.ErrQueueClosed):
			result.Rejects = append(result.Rejects, Reject{Line: line, Code: CodeClosed})
		default:
			eng.Shutdown()
			eng.Wait()
			return nil, fmt.Errorf("submit %q: %w", line, err)
		}
		if scenario.Sequential {
			eng.Drain()
		}
	}
	eng.Shutdown()
	eng.Wait()

	entries := slices.Clone(rec.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].RequestID < entries[j].RequestID })
	result.Lines = make([]string, 0, len(entries))
	for _, e := range entries {
		result.Lines = append(result.Lines, e.Stripped())
	}

	result.Balances, err = ledger.Snapshot(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("failed to read balances: %w", err)
	}

	checkIDs(result, entries, accepted)
	checkExpectations(result, scenario)

	return result, nil
}

// checkIDs asserts that result ids are exactly 1..accepted.
func checkIDs(result *Result, entries []audit.Entry, accepted int) {
	if len(entries) != accepted {
		result.AddError("got %d results for %d accepted requests", len(entries), accepted)
		return
	}
	for i, e := range entries {
		if e.RequestID != int64(i+1) {
			result.AddError("result ids are not 1..%d: position %d has id %d", accepted, i+1, e.RequestID)
			return
		}
	}
}

func checkExpectations(result *Result, scenario *Scenario) {
	if scenario.Expect != nil && !slices.Equal(scenario.Expect, result.Lines) {
		result.AddError("results mismatch:\n  want %q\n  got  %q", scenario.Expect, result.Lines)
	}
	if scenario.Rejects != nil && !slices.Equal(scenario.Rejects, result.Rejects) {
		result.AddError("rejects mismatch:\n  want %v\n  got  %v", scenario.Rejects, result.Rejects)
	}
	if scenario.Balances != nil && !slices.Equal(scenario.Balances, result.Balances) {
		result.AddError("balances mismatch: want %v, got %v", scenario.Balances, result.Balances)
	}
}

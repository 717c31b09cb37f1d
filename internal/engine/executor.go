package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/bankserver/internal/ledger"
)

// Executor applies requests to a ledger under its account locks.
//
// Safe for concurrent use: every read-modify-write happens while the
// request's whole LockSet is held.
type Executor struct {
	store  ledger.Store
	locker ledger.Locker
}

// NewExecutor binds an executor to a store and a locker covering the same
// accounts.
func NewExecutor(s ledger.Store, l ledger.Locker) *Executor {
	return &Executor{store: s, locker: l}
}

// Execute runs one CHECK or TRANS to completion and reports its outcome.
//
// A TRANS is all-or-nothing. Each distinct account is read once, the deltas
// are folded into running balances in command order, and the final
// balances are written only if no running balance went negative or
// overflowed. The first offending operation names the account reported in
// the outcome. A done ctx fails the request before any lock is taken.
func (x *Executor) Execute(ctx context.Context, req Request) Outcome {
	switch req.Kind {
	case KindCheck:
		return x.check(ctx, req)
	case KindTrans:
		return x.trans(ctx, req)
	default:
		return Outcome{
			Status: StatusFailed,
			Err:    fmt.Errorf("request %d: cannot execute %s", req.ID, req.Kind),
		}
	}
}

func (x *Executor) check(ctx context.Context, req Request) Outcome {
	if len(req.Ops) != 1 {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("request %d: CHECK needs one account", req.ID)}
	}
	if err := ctx.Err(); err != nil {
		return canceled(req, err)
	}
	account := req.Ops[0].Account
	set := ledger.NewLockSet(account)

	x.locker.Lock(set)
	defer x.locker.Unlock(set)

	bal, err := x.store.ReadAccount(ctx, account)
	if err != nil {
		return Outcome{Status: StatusFailed, Account: account, Err: fmt.Errorf("read account %d: %w", account, err)}
	}
	return Outcome{Status: StatusBalance, Balance: bal}
}

func (x *Executor) trans(ctx context.Context, req Request) Outcome {
	if err := ctx.Err(); err != nil {
		return canceled(req, err)
	}
	set := ledger.NewLockSet(req.Accounts()...)

	x.locker.Lock(set)
	defer x.locker.Unlock(set)

	running := make(map[int]int64, set.Len())
	for _, id := range set.IDs() {
		bal, err := x.store.ReadAccount(ctx, id)
		if err != nil {
			return Outcome{Status: StatusFailed, Account: id, Err: fmt.Errorf("read account %d: %w", id, err)}
		}
		running[id] = bal
	}

	for _, op := range req.Ops {
		next, ok := addChecked(running[op.Account], op.Delta)
		if !ok {
			return Outcome{Status: StatusOverflow, Account: op.Account}
		}
		if next < 0 {
			return Outcome{Status: StatusInsufficient, Account: op.Account}
		}
		running[op.Account] = next
	}

	final := make([]ledger.Balance, 0, set.Len())
	for _, id := range set.IDs() {
		final = append(final, ledger.Balance{Account: id, Amount: running[id]})
	}
	if err := x.write(ctx, final); err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	return Outcome{Status: StatusOK}
}

// write persists final balances, in one batch when the store supports it.
func (x *Executor) write(ctx context.Context, final []ledger.Balance) error {
	if bw, ok := x.store.(ledger.BatchWriter); ok {
		if err := bw.WriteAccounts(ctx, final); err != nil {
			return fmt.Errorf("write accounts: %w", err)
		}
		return nil
	}
	for _, b := range final {
		if err := x.store.WriteAccount(ctx, b.Account, b.Amount); err != nil {
			return fmt.Errorf("write account %d: %w", b.Account, err)
		}
	}
	return nil
}

func canceled(req Request, err error) Outcome {
	return Outcome{Status: StatusFailed, Err: fmt.Errorf("request %d: %w", req.ID, err)}
}

// addChecked returns a+b and false if the sum overflows int64.
func addChecked(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, false
	}
	return a + b, true
}

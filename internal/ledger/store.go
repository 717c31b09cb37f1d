// Package ledger holds the account storage media and the lock table the
// transaction executor uses to guard them.
//
// A Store is a fixed array of signed balances indexed 1..N. Every read and
// write may carry artificial latency to model a slow storage medium. Stores
// do no locking of their own: callers must hold the account's lock (see
// LockSet and Locker) for the whole read-modify-write.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidAccountCount is returned when a store is opened with n <= 0.
	ErrInvalidAccountCount = errors.New("account count must be positive")

	// ErrUnknownAccount is returned for ids outside 1..N.
	ErrUnknownAccount = errors.New("unknown account")
)

// Store is the account storage primitive.
//
// Constructors play the role of initialize_accounts(n): every account starts
// at zero. Close releases the medium (free_accounts).
type Store interface {
	// Accounts returns N, the number of accounts.
	Accounts() int

	// ReadAccount returns the balance of account id.
	ReadAccount(ctx context.Context, id int) (int64, error)

	// WriteAccount replaces the balance of account id.
	WriteAccount(ctx context.Context, id int, balance int64) error

	// Close releases the medium.
	Close() error
}

// Balance is one account value, used by batch writes and snapshots.
type Balance struct {
	Account int
	Amount  int64
}

// BatchWriter is implemented by stores that can apply several writes as one
// unit. The executor prefers it so a medium failure cannot leave a
// transaction half applied.
type BatchWriter interface {
	WriteAccounts(ctx context.Context, balances []Balance) error
}

// Snapshot reads every account in id order. Callers must ensure no
// transaction is in flight (e.g. after the worker pool has drained).
func Snapshot(ctx context.Context, s Store) ([]int64, error) {
	out := make([]int64, s.Accounts())
	for id := 1; id <= s.Accounts(); id++ {
		v, err := s.ReadAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("snapshot account %d: %w", id, err)
		}
		out[id-1] = v
	}
	return out, nil
}

// checkID validates an account id against n.
func checkID(id, n int) error {
	if id < 1 || id > n {
		return fmt.Errorf("%w: %d (have 1..%d)", ErrUnknownAccount, id, n)
	}
	return nil
}

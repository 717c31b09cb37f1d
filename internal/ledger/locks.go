package ledger

import (
	"fmt"
	"slices"
	"sync"
)

// LockSet is a set of account ids in ascending order with no duplicates.
//
// Every Locker acquires a LockSet front to back and releases it back to
// front. Because all workers agree on ascending order, two transactions
// that overlap on any accounts can never each hold a lock the other waits
// for.
type LockSet struct {
	ids []int
}

// NewLockSet sorts and deduplicates ids.
func NewLockSet(ids ...int) LockSet {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return LockSet{ids: slices.Compact(sorted)}
}

// IDs returns the ids in acquisition order.
func (s LockSet) IDs() []int {
	return s.ids
}

// Len returns the number of distinct accounts.
func (s LockSet) Len() int {
	return len(s.ids)
}

// Locker grants exclusive access to the accounts of a LockSet.
type Locker interface {
	Lock(set LockSet)
	Unlock(set LockSet)
}

// LockMode selects the lock granularity.
type LockMode string

const (
	// LockFine uses one mutex per account. Transactions on disjoint
	// accounts run in parallel.
	LockFine LockMode = "fine"

	// LockCoarse uses one mutex for the whole ledger. Every CHECK and
	// TRANS runs in a single critical section.
	LockCoarse LockMode = "coarse"
)

// NewLocker returns the Locker for mode over n accounts.
func NewLocker(mode LockMode, n int) (Locker, error) {
	switch mode {
	case LockFine, "":
		return NewAccountLocks(n), nil
	case LockCoarse:
		return &LedgerLock{}, nil
	default:
		return nil, fmt.Errorf("unknown lock mode %q", mode)
	}
}

// AccountLocks holds one mutex per account.
type AccountLocks struct {
	mus []sync.Mutex
}

// NewAccountLocks allocates locks for accounts 1..n.
func NewAccountLocks(n int) *AccountLocks {
	return &AccountLocks{mus: make([]sync.Mutex, n)}
}

// Lock acquires every account in the set in ascending id order.
func (l *AccountLocks) Lock(set LockSet) {
	for _, id := range set.ids {
		l.mus[id-1].Lock()
	}
}

// Unlock releases the set in reverse order.
func (l *AccountLocks) Unlock(set LockSet) {
	for i := len(set.ids) - 1; i >= 0; i-- {
		l.mus[set.ids[i]-1].Unlock()
	}
}

// LedgerLock is a single mutex covering every account.
type LedgerLock struct {
	mu sync.Mutex
}

// Lock acquires the ledger regardless of the set.
func (l *LedgerLock) Lock(LockSet) {
	l.mu.Lock()
}

// Unlock releases the ledger.
func (l *LedgerLock) Unlock(LockSet) {
	l.mu.Unlock()
}

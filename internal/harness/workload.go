package harness

import (
	"fmt"
	"math/rand"
	"strings"
)

// Workload defaults.
const (
	DefaultInitialDeposit  = 10000
	DefaultAccountsPerTx   = 10
	DefaultSeed            = 1
	MinRandomTransactions  = 300
	MaxRandomTransactions  = 1000
	maxPairsPerTransaction = 6
	isfPair                = 2
)

// WorkloadConfig parameterizes GenerateWorkload.
type WorkloadConfig struct {
	Accounts int
	Workers  int

	// Transactions is the number of random TRANS. Zero picks
	// DefaultTransactions(Accounts, Workers).
	Transactions int

	// Seed makes the workload reproducible.
	Seed int64

	// InitialDeposit is credited to every account before the random phase.
	// Zero means DefaultInitialDeposit.
	InitialDeposit int64
}

// Workload is a three-phase command stream. Request ids follow phase
// order: deposits first, then transfers, then checks.
type Workload struct {
	// Deposits credit InitialDeposit to every account, up to ten accounts
	// per TRANS.
	Deposits []string

	// Transfers are the random TRANS. Roughly 1% of them are built to fail
	// with ISF on their third pair.
	Transfers []string

	// Checks issue one CHECK per account.
	Checks []string

	// ExpectedBalances are the balances after sequential execution,
	// account 1 first.
	ExpectedBalances []int64

	// ISFTransfers are indexes into Transfers that must fail with ISF.
	ISFTransfers []int
}

// Requests returns the total number of requests in the workload.
func (w *Workload) Requests() int {
	return len(w.Deposits) + len(w.Transfers) + len(w.Checks)
}

// ExpectedISFIDs returns the request ids of the forced ISF transfers.
func (w *Workload) ExpectedISFIDs() []int64 {
	ids := make([]int64, len(w.ISFTransfers))
	for i, idx := range w.ISFTransfers {
		ids[i] = int64(len(w.Deposits) + idx + 1)
	}
	return ids
}

// ExpectedSum returns the sum of ExpectedBalances.
func (w *Workload) ExpectedSum() int64 {
	var sum int64
	for _, b := range w.ExpectedBalances {
		sum += b
	}
	return sum
}

// DefaultTransactions returns accounts/workers*3 clamped to
// [MinRandomTransactions, MaxRandomTransactions].
func DefaultTransactions(accounts, workers int) int {
	if workers < 1 {
		workers = 1
	}
	n := accounts / workers * 3
	return min(max(n, MinRandomTransactions), MaxRandomTransactions)
}

// GenerateWorkload builds a reproducible workload.
//
// Each random TRANS touches 1 to 6 distinct accounts; forced-ISF transfers
// always touch 6. Every amount lies in [-balance, balance] of the expected
// balance and is never zero. The third pair of a forced-ISF transfer
// debits more than the account holds.
func GenerateWorkload(cfg WorkloadConfig) (*Workload, error) {
	if cfg.Accounts < 1 {
		return nil, fmt.Errorf("workload: accounts must be at least 1, got %d", cfg.Accounts)
	}
	deposit := cfg.InitialDeposit
	if deposit == 0 {
		deposit = DefaultInitialDeposit
	}
	numTrans := cfg.Transactions
	if numTrans == 0 {
		numTrans = DefaultTransactions(cfg.Accounts, cfg.Workers)
	}
	if numTrans < 0 {
		return nil, fmt.Errorf("workload: transactions must not be negative, got %d", numTrans)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	w := &Workload{ExpectedBalances: make([]int64, cfg.Accounts)}

	// Phase 1: initial deposits.
	for start := 0; start < cfg.Accounts; start += DefaultAccountsPerTx {
		var b strings.Builder
		b.WriteString("TRANS")
		for id := start; id < min(start+DefaultAccountsPerTx, cfg.Accounts); id++ {
			fmt.Fprintf(&b, " %d %d", id+1, deposit)
			w.ExpectedBalances[id] = deposit
		}
		w.Deposits = append(w.Deposits, b.String())
	}

	// Phase 2: random transfers. ISF needs six distinct accounts.
	forced := pickISF(rng, numTrans)
	if cfg.Accounts < maxPairsPerTransaction {
		forced = map[int]bool{}
	}
	for i := 0; i < numTrans; i++ {
		isISF := forced[i]
		pairs := rng.Intn(maxPairsPerTransaction) + 1
		if isISF {
			pairs = maxPairsPerTransaction
			w.ISFTransfers = append(w.ISFTransfers, i)
		}
		pairs = min(pairs, cfg.Accounts)

		var b strings.Builder
		b.WriteString("TRANS")
		used := make(map[int]bool, pairs)
		for j := 0; j < pairs; j++ {
			id := rng.Intn(cfg.Accounts)
			for used[id] {
				id = rng.Intn(cfg.Accounts)
			}
			used[id] = true

			bal := w.ExpectedBalances[id]
			amount := bal - 2*rng.Int63n(bal+1)
			if amount == 0 {
				amount = rng.Int63n(max(deposit/2, 2)-1) + 1
			}
			switch {
			case !isISF:
				w.ExpectedBalances[id] += amount
			case j == isfPair:
				amount = -(10*bal + 1)
			}
			fmt.Fprintf(&b, " %d %d", id+1, amount)
		}
		w.Transfers = append(w.Transfers, b.String())
	}

	// Phase 3: final checks.
	for id := 1; id <= cfg.Accounts; id++ {
		w.Checks = append(w.Checks, fmt.Sprintf("CHECK %d", id))
	}

	return w, nil
}

// pickISF chooses 1% of n transfers (at least one when n > 1).
func pickISF(rng *rand.Rand, n int) map[int]bool {
	count := n / 100
	if n > 1 && count == 0 {
		count = 1
	}
	picked := make(map[int]bool, count)
	for len(picked) < count {
		picked[rng.Intn(n)] = true
	}
	return picked
}

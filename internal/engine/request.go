package engine

import (
	"time"
)

// Kind distinguishes request kinds.
type Kind int

const (
	// KindCheck reads one account's balance.
	KindCheck Kind = iota + 1
	// KindTrans applies one or more deltas atomically.
	KindTrans
	// KindEnd stops intake and lets the queue drain.
	KindEnd
)

// String returns the command keyword for k.
func (k Kind) String() string {
	switch k {
	case KindCheck:
		return "CHECK"
	case KindTrans:
		return "TRANS"
	case KindEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// Operation is one (account, delta) pair of a command.
// CHECK carries exactly one operation with a zero delta.
type Operation struct {
	Account int
	Delta   int64
}

// Command is a parsed input line, before it is assigned an id.
type Command struct {
	Kind Kind
	Ops  []Operation
}

// Accounts returns the account ids touched by the command, in command order
// and possibly repeated.
func (c Command) Accounts() []int {
	ids := make([]int, len(c.Ops))
	for i, op := range c.Ops {
		ids[i] = op.Account
	}
	return ids
}

// Request is a command accepted into the queue.
// It is immutable once enqueued and consumed by exactly one worker.
type Request struct {
	ID      int64
	Arrival time.Time
	Command
}

// Status is the outcome of executing a request.
type Status int

const (
	// StatusOK means every delta of a TRANS was applied.
	StatusOK Status = iota + 1
	// StatusBalance carries the balance read by a CHECK.
	StatusBalance
	// StatusInsufficient means a TRANS aborted because an account would go negative.
	StatusInsufficient
	// StatusOverflow means a TRANS aborted because a balance would overflow int64.
	StatusOverflow
	// StatusFailed means the storage medium failed; nothing was applied.
	StatusFailed
)

// String returns the keyword used in the audit log.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBalance:
		return "BAL"
	case StatusInsufficient:
		return "ISF"
	case StatusOverflow:
		return "OVF"
	case StatusFailed:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}

// Outcome is what the executor reports for one request.
//
// Balance is set for StatusBalance. Account is the offending account for
// StatusInsufficient and StatusOverflow.
type Outcome struct {
	Status  Status
	Balance int64
	Account int
	Err     error
}

// Result is the record of one completed request. Produced once, never
// mutated.
type Result struct {
	RequestID int64
	Kind      Kind
	Outcome
	Start time.Time
	End   time.Time
}

// Duration returns the time between arrival and completion.
func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

package ledger

import (
	"context"
	"fmt"
	"time"
)

// DefaultLatency is the simulated per-operation delay of the memory medium.
const DefaultLatency = 10 * time.Millisecond

// MemoryStore keeps balances in a plain slice and sleeps on every access.
type MemoryStore struct {
	balances []int64
	latency  time.Duration
}

// Option configures any store.
type Option func(*options)

type options struct {
	latency time.Duration
}

// WithLatency sets the simulated delay applied to every read and write.
// Zero disables the delay (tests).
func WithLatency(d time.Duration) Option {
	return func(o *options) {
		o.latency = d
	}
}

func buildOptions(opts []Option) options {
	o := options{latency: DefaultLatency}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewMemoryStore allocates n zeroed accounts.
func NewMemoryStore(n int, opts ...Option) (*MemoryStore, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountCount, n)
	}

	o := buildOptions(opts)
	return &MemoryStore{
		balances: make([]int64, n),
		latency:  o.latency,
	}, nil
}

// Accounts returns the number of accounts.
func (s *MemoryStore) Accounts() int {
	return len(s.balances)
}

// ReadAccount returns the balance of id after the simulated delay.
func (s *MemoryStore) ReadAccount(_ context.Context, id int) (int64, error) {
	if err := checkID(id, len(s.balances)); err != nil {
		return 0, err
	}
	s.wait()
	return s.balances[id-1], nil
}

// WriteAccount stores balance for id after the simulated delay.
func (s *MemoryStore) WriteAccount(_ context.Context, id int, balance int64) error {
	if err := checkID(id, len(s.balances)); err != nil {
		return err
	}
	s.wait()
	s.balances[id-1] = balance
	return nil
}

// Close drops the balances.
func (s *MemoryStore) Close() error {
	s.balances = nil
	return nil
}

func (s *MemoryStore) wait() {
	sleep(s.latency)
}

func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

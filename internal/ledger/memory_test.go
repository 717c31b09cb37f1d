package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryStore_StartsAtZero(t *testing.T) {
	s, err := NewMemoryStore(5, WithLatency(0))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 5, s.Accounts())

	balances, err := Snapshot(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0, 0, 0}, balances)
}

func TestNewMemoryStore_RejectsNonPositiveCount(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := NewMemoryStore(n)
		require.ErrorIs(t, err, ErrInvalidAccountCount)
	}
}

func TestMemoryStore_ReadWrite(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(3, WithLatency(0))
	require.NoError(t, err)

	require.NoError(t, s.WriteAccount(ctx, 2, 150))

	v, err := s.ReadAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(150), v)

	v, err = s.ReadAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestMemoryStore_UnknownAccount(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(3, WithLatency(0))
	require.NoError(t, err)

	tests := []struct {
		name string
		id   int
	}{
		{"zero", 0},
		{"negative", -1},
		{"past end", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ReadAccount(ctx, tt.id)
			assert.ErrorIs(t, err, ErrUnknownAccount)

			err = s.WriteAccount(ctx, tt.id, 1)
			assert.ErrorIs(t, err, ErrUnknownAccount)
		})
	}
}

func TestMemoryStore_SimulatesLatency(t *testing.T) {
	s, err := NewMemoryStore(1, WithLatency(5*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = s.ReadAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

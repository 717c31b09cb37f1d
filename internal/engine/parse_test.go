package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand_Valid(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{
			name: "check",
			line: "CHECK 3",
			want: Command{Kind: KindCheck, Ops: []Operation{{Account: 3}}},
		},
		{
			name: "trans single pair",
			line: "TRANS 1 100",
			want: Command{Kind: KindTrans, Ops: []Operation{{Account: 1, Delta: 100}}},
		},
		{
			name: "trans many pairs keeps order and duplicates",
			line: "TRANS 4 -50 2 50 4 10",
			want: Command{Kind: KindTrans, Ops: []Operation{
				{Account: 4, Delta: -50},
				{Account: 2, Delta: 50},
				{Account: 4, Delta: 10},
			}},
		},
		{
			name: "whitespace runs and trailing newline",
			line: "  TRANS\t1   -5 \r\n",
			want: Command{Kind: KindTrans, Ops: []Operation{{Account: 1, Delta: -5}}},
		},
		{
			name: "explicit plus sign",
			line: "TRANS 2 +7",
			want: Command{Kind: KindTrans, Ops: []Operation{{Account: 2, Delta: 7}}},
		},
		{
			name: "end",
			line: "END",
			want: Command{Kind: KindEnd},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Rejects(t *testing.T) {
	tests := []struct {
		line string
		code CommandErrorCode
	}{
		{"", ErrCodeEmpty},
		{"   \t ", ErrCodeEmpty},
		{"check 1", ErrCodeUnknownKeyword},
		{"DEPOSIT 1 5", ErrCodeUnknownKeyword},
		{"CHECK", ErrCodeArity},
		{"CHECK 1 2", ErrCodeArity},
		{"TRANS", ErrCodeArity},
		{"TRANS 1", ErrCodeArity},
		{"TRANS 1 5 2", ErrCodeArity},
		{"END now", ErrCodeArity},
		{"CHECK x", ErrCodeBadAccount},
		{"CHECK 0", ErrCodeBadAccount},
		{"CHECK -3", ErrCodeBadAccount},
		{"TRANS 1 ten", ErrCodeBadAmount},
		{"TRANS 1 1.5", ErrCodeBadAmount},
		{"TRANS 1 9223372036854775808", ErrCodeBadAmount},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := ParseCommand(tt.line)
			require.Error(t, err)
			assert.True(t, IsCommandError(err))
			assert.Equal(t, tt.code, CommandErrorCodeOf(err))
		})
	}
}

func TestValidateAccounts(t *testing.T) {
	cmd, err := ParseCommand("TRANS 1 5 3 -5")
	require.NoError(t, err)

	assert.NoError(t, ValidateAccounts(cmd, 3))

	err = ValidateAccounts(cmd, 2)
	require.Error(t, err)
	assert.Equal(t, ErrCodeBadAccount, CommandErrorCodeOf(err))

	for _, account := range []int{0, -1} {
		err = ValidateAccounts(Command{Kind: KindTrans, Ops: []Operation{{Account: account, Delta: 5}}}, 3)
		require.Error(t, err, "account %d", account)
		assert.Equal(t, ErrCodeBadAccount, CommandErrorCodeOf(err))
	}
}

func TestValidateShape(t *testing.T) {
	one := []Operation{{Account: 1}}
	two := []Operation{{Account: 1, Delta: 5}, {Account: 2, Delta: -5}}

	tests := []struct {
		name string
		cmd  Command
		code CommandErrorCode
	}{
		{"check", Command{Kind: KindCheck, Ops: one}, ""},
		{"trans", Command{Kind: KindTrans, Ops: two}, ""},
		{"end", Command{Kind: KindEnd}, ""},
		{"check without account", Command{Kind: KindCheck}, ErrCodeArity},
		{"check with two accounts", Command{Kind: KindCheck, Ops: two}, ErrCodeArity},
		{"trans without pairs", Command{Kind: KindTrans}, ErrCodeArity},
		{"end with ops", Command{Kind: KindEnd, Ops: one}, ErrCodeArity},
		{"zero kind", Command{Ops: one}, ErrCodeUnknownKeyword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateShape(tt.cmd)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, CommandErrorCodeOf(err))
		})
	}
}

func TestCommandError_Wrapped(t *testing.T) {
	_, err := ParseCommand("NOPE")
	wrapped := errors.Join(errors.New("line 4"), err)

	assert.True(t, IsCommandError(wrapped))
	assert.Equal(t, ErrCodeUnknownKeyword, CommandErrorCodeOf(wrapped))
	assert.Equal(t, CommandErrorCode(""), CommandErrorCodeOf(errors.New("plain")))
	assert.Contains(t, err.Error(), `line="NOPE"`)
}

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: small
description: "two commands"
accounts: 2
commands:
  - TRANS 1 5
  - CHECK 1
balances: [5, 0]
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "small", s.Name)
	assert.Equal(t, 2, s.Accounts)
	assert.Equal(t, 1, s.Workers, "workers defaults to 1")
	assert.Equal(t, []string{"TRANS 1 5", "CHECK 1"}, s.Commands)
	assert.Equal(t, []int64{5, 0}, s.Balances)
	assert.Nil(t, s.Expect)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: y\naccounts: 1\ncommands: [END]\nbalance: [0]\n",
			errMsg:  "failed to parse YAML",
		},
		{
			name:    "missing name",
			content: "description: y\naccounts: 1\ncommands: [END]\n",
			errMsg:  "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\naccounts: 1\ncommands: [END]\n",
			errMsg:  "description is required",
		},
		{
			name:    "no accounts",
			content: "name: x\ndescription: y\ncommands: [END]\n",
			errMsg:  "accounts must be at least 1",
		},
		{
			name:    "no commands",
			content: "name: x\ndescription: y\naccounts: 1\n",
			errMsg:  "commands list is required",
		},
		{
			name:    "bad lock mode",
			content: "name: x\ndescription: y\naccounts: 1\nlock_mode: striped\ncommands: [END]\n",
			errMsg:  "unknown lock_mode",
		},
		{
			name:    "balances length",
			content: "name: x\ndescription: y\naccounts: 2\ncommands: [END]\nbalances: [1]\n",
			errMsg:  "balances has 1 entries",
		},
		{
			name:    "reject without code",
			content: "name: x\ndescription: y\naccounts: 1\ncommands: [END]\nrejects: [{line: foo}]\n",
			errMsg:  "rejects[0]: code is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

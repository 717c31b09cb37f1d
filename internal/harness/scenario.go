package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bankserver/internal/ledger"
)

// Scenario defines a conformance test scenario.
// A scenario feeds command lines to a fresh engine over a zero-latency
// in-memory ledger and checks the results, the rejected lines and the
// final balances.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Accounts is the ledger size. Required.
	Accounts int `yaml:"accounts"`

	// Workers is the pool size. Defaults to 1.
	Workers int `yaml:"workers,omitempty"`

	// LockMode is "fine" (default) or "coarse".
	LockMode string `yaml:"lock_mode,omitempty"`

	// Sequential waits for each request's result before submitting the
	// next one, which makes CHECK results deterministic with any pool size.
	Sequential bool `yaml:"sequential,omitempty"`

	// Commands are the input lines, END included if the scenario tests it.
	// Without END the harness closes intake after the last line.
	Commands []string `yaml:"commands"`

	// Expect lists result lines without the TIME suffix, in id order.
	// Omitted means results are not compared line by line.
	Expect []string `yaml:"expect,omitempty"`

	// Rejects lists the lines the engine must refuse, in input order.
	Rejects []Reject `yaml:"rejects,omitempty"`

	// Balances is the expected final balance of every account.
	Balances []int64 `yaml:"balances,omitempty"`
}

// Reject is one refused input line and its error code.
type Reject struct {
	Line string `yaml:"line"`
	Code string `yaml:"code"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "balance:" vs "balances:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks required fields and fills defaults.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Accounts < 1 {
		return fmt.Errorf("accounts must be at least 1, got %d", s.Accounts)
	}

	if s.Workers == 0 {
		s.Workers = 1
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}

	switch ledger.LockMode(s.LockMode) {
	case "", ledger.LockFine, ledger.LockCoarse:
	default:
		return fmt.Errorf("unknown lock_mode %q", s.LockMode)
	}

	if len(s.Commands) == 0 {
		return fmt.Errorf("commands list is required and must be non-empty")
	}

	if s.Balances != nil && len(s.Balances) != s.Accounts {
		return fmt.Errorf("balances has %d entries, want %d", len(s.Balances), s.Accounts)
	}

	for i, r := range s.Rejects {
		if r.Code == "" {
			return fmt.Errorf("rejects[%d]: code is required", i)
		}
	}

	return nil
}

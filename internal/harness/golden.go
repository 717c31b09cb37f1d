package harness

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Transcript renders a scenario result as deterministic text for golden
// comparison: results in id order, then rejected lines, then final
// balances. Wall-clock times are never included.
func Transcript(name string, result *Result) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# scenario %s\n", name)

	b.WriteString("# results\n")
	for _, line := range result.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if len(result.Rejects) > 0 {
		b.WriteString("# rejects\n")
		for _, r := range result.Rejects {
			fmt.Fprintf(&b, "%s %q\n", r.Code, r.Line)
		}
	}

	b.WriteString("# balances\n")
	for i, bal := range result.Balances {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(bal, 10))
	}
	b.WriteByte('\n')

	return b.Bytes()
}

// RunWithGolden executes a scenario and compares its transcript against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the transcript doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Transcript(name, result))
}

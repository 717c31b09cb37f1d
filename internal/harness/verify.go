package harness

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/roach88/bankserver/internal/audit"
)

// VerifyOptions bounds the checks done by Verify. Zero values disable the
// corresponding range check.
type VerifyOptions struct {
	// Accounts bounds ISF/OVF account ids to 1..Accounts.
	Accounts int

	// Requests is the number of requests submitted. Ids must fall in
	// 1..Requests and every one of them must be present. Zero infers the
	// range from the highest id seen.
	Requests int
}

// Problem is one audit line that failed a check.
type Problem struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Report summarizes an audit log.
type Report struct {
	Lines      int            `json:"lines"`
	Counts     map[string]int `json:"counts"`
	Problems   []Problem      `json:"problems,omitempty"`
	Missing    []int64        `json:"missing,omitempty"`
	BalanceSum int64          `json:"balance_sum"`
	ISFIDs     []int64        `json:"isf_ids,omitempty"`

	// First arrival and last completion across all lines.
	Start audit.Timestamp `json:"start"`
	End   audit.Timestamp `json:"end"`

	// Summed arrival-to-completion time per request class.
	TransWait time.Duration `json:"trans_wait"`
	CheckWait time.Duration `json:"check_wait"`

	Entries []audit.Entry `json:"-"`
}

// OK reports whether every line passed and no id is missing.
func (r *Report) OK() bool {
	return len(r.Problems) == 0 && len(r.Missing) == 0
}

// Elapsed returns the span from the first arrival to the last completion.
func (r *Report) Elapsed() time.Duration {
	if r.Lines == 0 {
		return 0
	}
	return time.Duration(r.End.Micros()-r.Start.Micros()) * time.Microsecond
}

// VerifyFile opens path and runs Verify on it.
func VerifyFile(path string, opts VerifyOptions) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	return Verify(f, opts)
}

// Verify checks every line of an audit log:
//   - layout: 5 fields for OK/ERR, 6 for BAL/ISF/OVF, known keyword
//   - request id in range and not duplicated
//   - ISF/OVF account in range
//   - BAL not negative
//   - end time not before start time
//
// Bad lines are reported and skipped; checking continues. The error is
// non-nil only when r cannot be read.
func Verify(r io.Reader, opts VerifyOptions) (*Report, error) {
	rep := &Report{Counts: make(map[string]int)}
	seen := make(map[int64]bool)
	var maxID int64

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		bad := func(format string, args ...any) {
			rep.Problems = append(rep.Problems, Problem{Line: lineNo, Text: text, Reason: fmt.Sprintf(format, args...)})
		}

		e, err := audit.ParseLine(text)
		if err != nil {
			bad("%v", err)
			continue
		}
		if opts.Requests > 0 && e.RequestID > int64(opts.Requests) {
			bad("request id %d out of range 1..%d", e.RequestID, opts.Requests)
			continue
		}
		if seen[e.RequestID] {
			bad("duplicate request id %d", e.RequestID)
			continue
		}
		if (e.Status == "ISF" || e.Status == "OVF") && opts.Accounts > 0 && (e.Value < 1 || e.Value > int64(opts.Accounts)) {
			bad("%s account %d out of range 1..%d", e.Status, e.Value, opts.Accounts)
			continue
		}
		if e.Status == "BAL" && e.Value < 0 {
			bad("negative balance %d", e.Value)
			continue
		}
		if e.End.Before(e.Start) {
			bad("end time %s before start time %s", e.End, e.Start)
			continue
		}

		seen[e.RequestID] = true
		maxID = max(maxID, e.RequestID)
		rep.Lines++
		rep.Counts[e.Status]++
		rep.Entries = append(rep.Entries, e)

		wait := time.Duration(e.End.Micros()-e.Start.Micros()) * time.Microsecond
		switch e.Status {
		case "BAL":
			rep.BalanceSum += e.Value
			rep.CheckWait += wait
		case "ISF":
			rep.ISFIDs = append(rep.ISFIDs, e.RequestID)
			rep.TransWait += wait
		default:
			rep.TransWait += wait
		}

		if rep.Lines == 1 || e.Start.Before(rep.Start) {
			rep.Start = e.Start
		}
		if rep.Lines == 1 || rep.End.Before(e.End) {
			rep.End = e.End
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	want := maxID
	if opts.Requests > 0 {
		want = int64(opts.Requests)
	}
	for id := int64(1); id <= want; id++ {
		if !seen[id] {
			rep.Missing = append(rep.Missing, id)
		}
	}
	slices.Sort(rep.ISFIDs)

	return rep, nil
}

package harness

import (
	"fmt"
	"time"

	"github.com/roach88/bankserver/internal/engine"
)

// Submitter is the part of *engine.Engine a workload driver needs.
type Submitter interface {
	Submit(line string) (engine.Request, error)
	Drain()
}

// PhaseTiming is how long one workload phase took to submit and drain.
type PhaseTiming struct {
	Name     string
	Requests int
	Elapsed  time.Duration
}

// Drive submits a workload phase by phase, waiting for every result of a
// phase before starting the next, and finishes with END. onAccept, if not
// nil, is called for every accepted request.
func Drive(s Submitter, w *Workload, onAccept func(engine.Request)) ([]PhaseTiming, error) {
	phases := []struct {
		name  string
		lines []string
	}{
		{"deposits", w.Deposits},
		{"transfers", w.Transfers},
		{"checks", w.Checks},
	}

	timings := make([]PhaseTiming, 0, len(phases))
	for _, p := range phases {
		start := time.Now()
		for _, line := range p.lines {
			req, err := s.Submit(line)
			if err != nil {
				return timings, fmt.Errorf("%s phase: submit %q: %w", p.name, line, err)
			}
			if onAccept != nil {
				onAccept(req)
			}
		}
		s.Drain()
		timings = append(timings, PhaseTiming{Name: p.name, Requests: len(p.lines), Elapsed: time.Since(start)})
	}

	if _, err := s.Submit("END"); err != nil {
		return timings, fmt.Errorf("submit END: %w", err)
	}
	return timings, nil
}

// Package audit writes and reads the per-request result log.
//
// Line layout, fields separated by single spaces:
//
//	<id> BAL <balance> TIME <start> <end>
//	<id> OK TIME <start> <end>
//	<id> ISF <account> TIME <start> <end>
//	<id> OVF <account> TIME <start> <end>
//	<id> ERR TIME <start> <end>
//
// Timestamps are wall-clock seconds with a six-digit microsecond part,
// e.g. 1700000000.000042.
package audit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/bankserver/internal/engine"
)

// ErrMalformedLine is wrapped by every ParseLine failure.
var ErrMalformedLine = errors.New("malformed audit line")

// Timestamp is a seconds/microseconds pair as printed in the log.
type Timestamp struct {
	Sec  int64
	Usec int64
}

// TimestampOf truncates t to microseconds.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Usec: int64(t.Nanosecond() / 1000)}
}

// String formats ts as sec.usec with six usec digits.
func (ts Timestamp) String() string {
	return fmt.Sprintf("%d.%06d", ts.Sec, ts.Usec)
}

// Micros returns ts as microseconds since the epoch.
func (ts Timestamp) Micros() int64 {
	return ts.Sec*1_000_000 + ts.Usec
}

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.Micros() < other.Micros()
}

// Entry is one parsed audit line.
//
// Value holds the balance for BAL and the offending account for ISF and
// OVF; HasValue is false for OK and ERR.
type Entry struct {
	RequestID int64
	Status    string
	Value     int64
	HasValue  bool
	Start     Timestamp
	End       Timestamp
}

// FormatResult renders res as one audit line without the trailing newline.
func FormatResult(res engine.Result) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(res.RequestID, 10))
	b.WriteByte(' ')
	b.WriteString(res.Status.String())

	switch res.Status {
	case engine.StatusBalance:
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(res.Balance, 10))
	case engine.StatusInsufficient, engine.StatusOverflow:
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(res.Account))
	}

	b.WriteString(" TIME ")
	b.WriteString(TimestampOf(res.Start).String())
	b.WriteByte(' ')
	b.WriteString(TimestampOf(res.End).String())
	return b.String()
}

// EntryOf converts a result to the entry its audit line parses back to.
func EntryOf(res engine.Result) Entry {
	e := Entry{
		RequestID: res.RequestID,
		Status:    res.Status.String(),
		Start:     TimestampOf(res.Start),
		End:       TimestampOf(res.End),
	}
	switch res.Status {
	case engine.StatusBalance:
		e.Value, e.HasValue = res.Balance, true
	case engine.StatusInsufficient, engine.StatusOverflow:
		e.Value, e.HasValue = int64(res.Account), true
	}
	return e
}

// String renders e in audit line layout.
func (e Entry) String() string {
	head := strconv.FormatInt(e.RequestID, 10) + " " + e.Status
	if e.HasValue {
		head += " " + strconv.FormatInt(e.Value, 10)
	}
	return head + " TIME " + e.Start.String() + " " + e.End.String()
}

// Stripped renders e without the TIME suffix. Used for comparisons that
// must not depend on wall-clock time.
func (e Entry) Stripped() string {
	s := strconv.FormatInt(e.RequestID, 10) + " " + e.Status
	if e.HasValue {
		s += " " + strconv.FormatInt(e.Value, 10)
	}
	return s
}

// ParseLine parses one audit line. Surrounding whitespace is ignored.
func ParseLine(line string) (Entry, error) {
	fields := strings.Fields(line)

	var e Entry
	var rest []string
	switch len(fields) {
	case 5:
		rest = fields[2:]
	case 6:
		rest = fields[3:]
	default:
		return Entry{}, fmt.Errorf("%w: expected 5 or 6 fields, got %d", ErrMalformedLine, len(fields))
	}

	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id < 1 {
		return Entry{}, fmt.Errorf("%w: bad request id %q", ErrMalformedLine, fields[0])
	}
	e.RequestID = id
	e.Status = fields[1]

	switch {
	case len(fields) == 5 && (e.Status == "OK" || e.Status == "ERR"):
	case len(fields) == 6 && (e.Status == "BAL" || e.Status == "ISF" || e.Status == "OVF"):
		v, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: bad %s value %q", ErrMalformedLine, e.Status, fields[2])
		}
		e.Value, e.HasValue = v, true
	default:
		return Entry{}, fmt.Errorf("%w: status %q with %d fields", ErrMalformedLine, e.Status, len(fields))
	}

	if rest[0] != "TIME" {
		return Entry{}, fmt.Errorf("%w: expected TIME, got %q", ErrMalformedLine, rest[0])
	}
	if e.Start, err = parseTimestamp(rest[1]); err != nil {
		return Entry{}, err
	}
	if e.End, err = parseTimestamp(rest[2]); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func parseTimestamp(tok string) (Timestamp, error) {
	secPart, usecPart, ok := strings.Cut(tok, ".")
	if !ok || len(usecPart) != 6 {
		return Timestamp{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedLine, tok)
	}
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil || sec < 0 {
		return Timestamp{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedLine, tok)
	}
	usec, err := strconv.ParseInt(usecPart, 10, 64)
	if err != nil || usec < 0 {
		return Timestamp{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedLine, tok)
	}
	return Timestamp{Sec: sec, Usec: usec}, nil
}

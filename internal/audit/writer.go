package audit

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/roach88/bankserver/internal/engine"
)

// Writer appends one line per result to a shared sink.
//
// Formatting and the write happen under one mutex, and each line is handed
// to the sink in a single Write call, so concurrent records never
// interleave. Lines appear in completion order.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	lines  int64
	buf    []byte
}

// NewWriter wraps w. The caller keeps ownership of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Create truncates or creates the file at path and writes to it.
// Close closes the file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create audit log %s: %w", path, err)
	}
	return &Writer{w: f, closer: f}, nil
}

// Record implements engine.Recorder.
func (aw *Writer) Record(res engine.Result) error {
	line := FormatResult(res)

	aw.mu.Lock()
	defer aw.mu.Unlock()

	aw.buf = append(aw.buf[:0], line...)
	aw.buf = append(aw.buf, '\n')
	if _, err := aw.w.Write(aw.buf); err != nil {
		return fmt.Errorf("write audit line for request %d: %w", res.RequestID, err)
	}
	aw.lines++
	return nil
}

// Lines returns how many lines have been written.
func (aw *Writer) Lines() int64 {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.lines
}

// Close syncs and closes the underlying file if the writer owns one.
func (aw *Writer) Close() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if aw.closer == nil {
		return nil
	}
	if f, ok := aw.closer.(*os.File); ok {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			aw.closer = nil
			return fmt.Errorf("sync audit log: %w", err)
		}
	}
	err := aw.closer.Close()
	aw.closer = nil
	return err
}

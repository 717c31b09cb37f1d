package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bankserver/internal/engine"
	"github.com/roach88/bankserver/internal/harness"
	"github.com/roach88/bankserver/internal/ledger"
	"github.com/roach88/bankserver/internal/testutil"
)

// syncBuffer is a bytes.Buffer safe for the logger and echo to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type serveRun struct {
	stdout string
	stderr string
	err    error
}

// executeServe runs serve with the given input and no real signal source.
func executeServe(t *testing.T, format string, input io.Reader, sigs chan os.Signal, args ...string) serveRun {
	t.Helper()
	if sigs == nil {
		sigs = make(chan os.Signal)
	}
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	cmd := newServeCommand(&ServeOptions{
		RootOptions: &RootOptions{Format: format, LogFormat: "text"},
		Stdin:       input,
		Signals:     sigs,
	})
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return serveRun{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestServe_EchoAndResults(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.txt")
	input := strings.NewReader("TRANS 1 100\nCHECK 1\nbogus\n\nTRANS 1 -200\nEND\nCHECK 1\n")

	run := executeServe(t, "text", input, nil, "1", "3", out, "--latency", "0")
	require.NoError(t, run.err, run.stderr)

	lines := strings.Split(strings.TrimSpace(run.stdout), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "< ID 1", lines[0])
	assert.Equal(t, "< ID 2", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "< ERR UNKNOWN_KEYWORD"), lines[2])
	assert.Equal(t, "< ID 3", lines[3])
	assert.Contains(t, run.stderr, "rejected command")

	rep, err := harness.VerifyFile(out, harness.VerifyOptions{Accounts: 3, Requests: 3})
	require.NoError(t, err)
	require.True(t, rep.OK(), "problems: %v missing: %v", rep.Problems, rep.Missing)

	got := make([]string, len(rep.Entries))
	for i, e := range rep.Entries {
		got[i] = e.Stripped()
	}
	assert.Equal(t, []string{"1 OK", "2 BAL 100", "3 ISF 1"}, got)
}

func TestServe_EOFDrains(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.txt")
	var input strings.Builder
	for i := 0; i < 50; i++ {
		input.WriteString("TRANS 1 1 2 1\n")
	}

	run := executeServe(t, "json", strings.NewReader(input.String()), nil, "4", "2", out, "--latency", "0")
	require.NoError(t, run.err, run.stderr)

	var resp struct {
		Status string       `json:"status"`
		RunID  string       `json:"run_id"`
		Data   ServeSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(run.stdout), &resp), run.stdout)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, resp.RunID, resp.Data.RunID)
	assert.Equal(t, stopEOF, resp.Data.StopCause)
	assert.Equal(t, int64(50), resp.Data.Accepted)
	assert.Equal(t, int64(50), resp.Data.Lines)
	assert.Equal(t, int64(50), resp.Data.Pool.Completed)

	// JSON mode moves the echo off stdout.
	assert.Contains(t, run.stderr, "< ID 50")

	rep, err := harness.VerifyFile(out, harness.VerifyOptions{Accounts: 2, Requests: 50})
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, 50, rep.Counts["OK"])
}

func TestServe_SignalStops(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.txt")
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGTERM

	run := executeServe(t, "json", pr, sigs, "2", "2", out, "--latency", "0")
	require.NoError(t, run.err, run.stderr)
	assert.Contains(t, run.stdout, `"stop_cause":"signal"`)
	assert.Contains(t, run.stderr, "received signal")
}

func TestServe_NoEchoFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bankserver.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("latency: 0s\necho: false\nlock_mode: coarse\n"), 0644))
	out := filepath.Join(dir, "results.txt")

	run := executeServe(t, "text", strings.NewReader("TRANS 2 7\nCHECK 2\nEND\n"), nil, "2", "2", out, "--config", cfgPath)
	require.NoError(t, run.err, run.stderr)
	assert.Empty(t, run.stdout)

	rep, err := harness.VerifyFile(out, harness.VerifyOptions{Requests: 2})
	require.NoError(t, err)
	assert.True(t, rep.OK())
}

func TestServe_SQLiteStoreAndMetrics(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "results.txt")

	run := executeServe(t, "text", strings.NewReader("TRANS 1 5 2 5\nTRANS 1 -5 2 -6\nCHECK 2\n"), nil,
		"1", "2", out,
		"--latency", "0",
		"--store", "sqlite",
		"--db", filepath.Join(dir, "bank.db"),
		"--metrics-addr", "127.0.0.1:0",
	)
	require.NoError(t, run.err, run.stderr)
	assert.Contains(t, run.stderr, "metrics server listening")

	rep, err := harness.VerifyFile(out, harness.VerifyOptions{Accounts: 2, Requests: 3})
	require.NoError(t, err)
	require.True(t, rep.OK())
	got := make([]string, len(rep.Entries))
	for i, e := range rep.Entries {
		got[i] = e.Stripped()
	}
	assert.Equal(t, []string{"1 OK", "2 ISF 2", "3 BAL 5"}, got)
}

func TestServe_StartupErrors(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "results.txt")
	badTimeout := filepath.Join(dir, "timeout.yaml")
	require.NoError(t, os.WriteFile(badTimeout, []byte("shutdown_timeout: -1s\n"), 0644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"workers not a number", []string{"x", "2", out}, "workers \"x\" is not an integer"},
		{"accounts not a number", []string{"2", "y", out}, "accounts \"y\" is not an integer"},
		{"zero workers", []string{"0", "2", out}, "workers must be at least 1"},
		{"zero accounts", []string{"2", "0", out}, "accounts must be at least 1"},
		{"bad lock mode", []string{"2", "2", out, "--lock-mode", "striped"}, "unknown lock_mode"},
		{"postgres without dsn", []string{"2", "2", out, "--store", "postgres"}, "store.dsn is required"},
		{"zero shutdown timeout", []string{"2", "2", out, "--shutdown-timeout", "0"}, "shutdown_timeout must be positive"},
		{"negative shutdown timeout in config", []string{"2", "2", out, "--config", badTimeout}, "shutdown_timeout must be positive"},
		{"missing config", []string{"2", "2", out, "--config", filepath.Join(dir, "nope.yaml")}, "read config"},
		{"unwritable output", []string{"2", "2", filepath.Join(dir, "no", "such", "dir", "out.txt"), "--latency", "0"}, "failed to open output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := executeServe(t, "text", strings.NewReader(""), nil, tt.args...)
			require.Error(t, run.err)
			assert.Equal(t, ExitCommandError, GetExitCode(run.err))
			assert.Contains(t, run.err.Error(), tt.want)
		})
	}
}

func TestServe_WrongArgCount(t *testing.T) {
	run := executeServe(t, "text", strings.NewReader(""), nil, "2", "2")
	require.Error(t, run.err)
	assert.Contains(t, run.err.Error(), "accepts 3 arg")
}

func TestSession_Prompt(t *testing.T) {
	st, err := ledger.NewMemoryStore(2, ledger.WithLatency(0))
	require.NoError(t, err)
	eng, err := engine.New(st, engine.RecorderFunc(func(engine.Result) error { return nil }),
		engine.WithWorkers(1), engine.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	eng.Start(context.Background())

	echo := &bytes.Buffer{}
	s := &session{eng: eng, logger: testutil.DiscardLogger(), echo: echo, prompt: true}
	cause := s.serve(context.Background(), strings.NewReader("CHECK 1\nEND\n"), nil)
	eng.Wait()

	assert.Equal(t, stopEnd, cause)
	assert.Equal(t, "> < ID 1\n> ", echo.String())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(strings.NewReader("CHECK 1\n")))

	f, err := os.Create(filepath.Join(t.TempDir(), "input.txt"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f))
}

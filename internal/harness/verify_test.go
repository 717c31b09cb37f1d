package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bankserver/internal/audit"
)

func TestVerify_CleanLog(t *testing.T) {
	log := strings.Join([]string{
		"1 OK TIME 1.000000 1.000010",
		"3 ISF 2 TIME 1.000002 1.000030",
		"2 BAL 50 TIME 1.000001 1.000020",
	}, "\n") + "\n"

	rep, err := Verify(strings.NewReader(log), VerifyOptions{Accounts: 3, Requests: 3})
	require.NoError(t, err)

	assert.True(t, rep.OK(), rep.Problems)
	assert.Equal(t, 3, rep.Lines)
	assert.Equal(t, map[string]int{"OK": 1, "BAL": 1, "ISF": 1}, rep.Counts)
	assert.Equal(t, int64(50), rep.BalanceSum)
	assert.Equal(t, []int64{3}, rep.ISFIDs)
	assert.Equal(t, audit.Timestamp{Sec: 1, Usec: 0}, rep.Start)
	assert.Equal(t, audit.Timestamp{Sec: 1, Usec: 30}, rep.End)
	assert.Equal(t, 30*time.Microsecond, rep.Elapsed())
	assert.Equal(t, 19*time.Microsecond, rep.CheckWait)
	assert.Equal(t, 38*time.Microsecond, rep.TransWait)
	assert.Len(t, rep.Entries, 3)
}

func TestVerify_ReportsEveryProblem(t *testing.T) {
	log := strings.Join([]string{
		"1 OK TIME 1.000000 1.000010",
		"1 OK TIME 1.000000 1.000010",
		"2 BAL -1 TIME 1.000000 1.000010",
		"3 ISF 9 TIME 1.000000 1.000010",
		"6 OK TIME 1.000000 1.000010",
		"4 OK TIME 2.000000 1.000000",
		"hello",
	}, "\n")

	rep, err := Verify(strings.NewReader(log), VerifyOptions{Accounts: 3, Requests: 5})
	require.NoError(t, err)

	assert.False(t, rep.OK())
	assert.Equal(t, 1, rep.Lines)
	assert.Equal(t, []int64{2, 3, 4, 5}, rep.Missing)

	require.Len(t, rep.Problems, 6)
	want := []struct {
		line   int
		reason string
	}{
		{2, "duplicate request id 1"},
		{3, "negative balance -1"},
		{4, "ISF account 9 out of range 1..3"},
		{5, "request id 6 out of range 1..5"},
		{6, "end time 1.000000 before start time 2.000000"},
		{7, "malformed"},
	}
	for i, w := range want {
		assert.Equal(t, w.line, rep.Problems[i].Line)
		assert.Contains(t, rep.Problems[i].Reason, w.reason)
	}
}

func TestVerify_InfersRangeFromHighestID(t *testing.T) {
	log := "1 OK TIME 1.000000 1.000001\n4 OK TIME 1.000000 1.000001\n"

	rep, err := Verify(strings.NewReader(log), VerifyOptions{})
	require.NoError(t, err)
	assert.Empty(t, rep.Problems)
	assert.Equal(t, []int64{2, 3}, rep.Missing)
}

func TestVerify_EmptyLog(t *testing.T) {
	rep, err := Verify(strings.NewReader(""), VerifyOptions{})
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Zero(t, rep.Elapsed())
}

func TestVerifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(path, []byte("1 BAL 7 TIME 5.000000 5.000100\n"), 0644))

	rep, err := VerifyFile(path, VerifyOptions{Requests: 1})
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, int64(7), rep.BalanceSum)

	_, err = VerifyFile(filepath.Join(t.TempDir(), "missing.log"), VerifyOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open audit log")
}

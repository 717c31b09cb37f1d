package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bankserver/internal/audit"
)

const cleanLog = `1 OK TIME 10.000000 10.000500
2 BAL 100 TIME 10.000100 10.000900
3 ISF 1 TIME 10.000200 10.001000
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func executeVerify(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewVerifyCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVerifyCommand_Clean(t *testing.T) {
	path := writeLog(t, cleanLog)

	out, err := executeVerify(t, "text", path, "--accounts", "2", "--requests", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Lines: 3 (OK 1, BAL 1, ISF 1, OVF 0, ERR 0)")
	assert.Contains(t, out, "Balance sum: 100")
	assert.Contains(t, out, "ISF ids: 3")
	assert.Contains(t, out, "✓ audit log verified")
}

func TestVerifyCommand_Problems(t *testing.T) {
	path := writeLog(t, cleanLog+"2 OK TIME 10.000000 10.000001\n")

	out, err := executeVerify(t, "text", path, "--requests", "4")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ line 4: duplicate request id 2")
	assert.Contains(t, out, "✗ missing ids: 4")
	assert.NotContains(t, out, "✓ audit log verified")
}

func TestVerifyCommand_JSON(t *testing.T) {
	path := writeLog(t, cleanLog)

	out, err := executeVerify(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Lines      int     `json:"lines"`
			BalanceSum int64   `json:"balance_sum"`
			ISFIDs     []int64 `json:"isf_ids"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Lines)
	assert.Equal(t, int64(100), resp.Data.BalanceSum)
	assert.Equal(t, []int64{3}, resp.Data.ISFIDs)
}

func TestVerifyCommand_JSONFailure(t *testing.T) {
	path := writeLog(t, "garbage\n")

	out, err := executeVerify(t, "json", path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_VERIFY_FAILED", resp.Error.Code)
	assert.Equal(t, "1 bad line(s), 0 missing id(s)", resp.Error.Message)
}

func TestVerifyCommand_ArrowOut(t *testing.T) {
	path := writeLog(t, cleanLog)
	arrowPath := filepath.Join(t.TempDir(), "results.arrow")

	_, err := executeVerify(t, "text", path, "--arrow-out", arrowPath)
	require.NoError(t, err)

	f, err := os.Open(arrowPath)
	require.NoError(t, err)
	defer f.Close()

	entries, err := audit.ImportArrow(f)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "1 OK", entries[0].Stripped())
	assert.Equal(t, "2 BAL 100", entries[1].Stripped())
	assert.Equal(t, "3 ISF 1", entries[2].Stripped())
}

func TestVerifyCommand_Errors(t *testing.T) {
	_, err := executeVerify(t, "text", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = executeVerify(t, "text", writeLog(t, cleanLog), "--accounts", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFormatIDs(t *testing.T) {
	assert.Equal(t, "", formatIDs(nil))
	assert.Equal(t, "4 9", formatIDs([]int64{4, 9}))

	long := make([]int64, 25)
	for i := range long {
		long[i] = int64(i + 1)
	}
	assert.Equal(t, "1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16 17 18 19 20 ... (25 total)", formatIDs(long))
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bankserver/internal/audit"
	"github.com/roach88/bankserver/internal/harness"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Accounts int
	Requests int
	ArrowOut string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check an audit log written by serve",
		Long: `Check every line of an audit log: layout, keywords, request id
range, duplicates, missing ids, ISF/OVF account range, non-negative
balances and end time not before start time.

Exit codes:
  0 - Log is well formed
  1 - Problems found
  2 - Command error (file not found, etc.)

Examples:
  bankserver verify results.txt
  bankserver verify results.txt --accounts 1000 --requests 1425
  bankserver verify results.txt --arrow-out results.arrow`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Accounts, "accounts", 0, "number of accounts (0 skips the account range check)")
	cmd.Flags().IntVar(&opts.Requests, "requests", 0, "number of accepted requests (0 infers it from the highest id)")
	cmd.Flags().StringVar(&opts.ArrowOut, "arrow-out", "", "write parsed results as an Arrow IPC stream")

	return cmd
}

func runVerify(cmd *cobra.Command, opts *VerifyOptions, path string) error {
	if opts.Accounts < 0 || opts.Requests < 0 {
		return NewExitError(ExitCommandError, "--accounts and --requests must not be negative")
	}

	rep, err := harness.VerifyFile(path, harness.VerifyOptions{Accounts: opts.Accounts, Requests: opts.Requests})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read audit log", err)
	}

	if opts.ArrowOut != "" {
		if err := writeArrow(opts.ArrowOut, rep.Entries); err != nil {
			return WrapExitError(ExitCommandError, "failed to write arrow output", err)
		}
	}

	formatter := newFormatter(cmd, opts.RootOptions, "")
	if opts.Format == "json" {
		if rep.OK() {
			if err := formatter.Success(rep); err != nil {
				return err
			}
		} else if err := formatter.Error("E_VERIFY_FAILED", verifyFailure(rep), rep); err != nil {
			return err
		}
	} else {
		printReport(cmd, rep)
	}

	if !rep.OK() {
		return NewExitError(ExitFailure, verifyFailure(rep))
	}
	return nil
}

func verifyFailure(rep *harness.Report) string {
	return fmt.Sprintf("%d bad line(s), %d missing id(s)", len(rep.Problems), len(rep.Missing))
}

func writeArrow(path string, entries []audit.Entry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return audit.ExportArrow(f, entries)
}

// printReport writes a human-readable audit report.
func printReport(cmd *cobra.Command, rep *harness.Report) {
	w := cmd.OutOrStdout()

	for _, p := range rep.Problems {
		fmt.Fprintf(w, "✗ line %d: %s\n    %s\n", p.Line, p.Reason, p.Text)
	}
	if len(rep.Missing) > 0 {
		fmt.Fprintf(w, "✗ missing ids: %s\n", formatIDs(rep.Missing))
	}

	fmt.Fprintf(w, "Lines: %d (OK %d, BAL %d, ISF %d, OVF %d, ERR %d)\n",
		rep.Lines, rep.Counts["OK"], rep.Counts["BAL"], rep.Counts["ISF"], rep.Counts["OVF"], rep.Counts["ERR"])
	fmt.Fprintf(w, "Balance sum: %d\n", rep.BalanceSum)
	if len(rep.ISFIDs) > 0 {
		fmt.Fprintf(w, "ISF ids: %s\n", formatIDs(rep.ISFIDs))
	}
	fmt.Fprintf(w, "Elapsed: %s (TRANS wait %s, CHECK wait %s)\n", rep.Elapsed(), rep.TransWait, rep.CheckWait)

	if rep.OK() {
		fmt.Fprintln(w, "✓ audit log verified")
	}
}

// formatIDs renders ids space separated, truncated after the first twenty.
func formatIDs(ids []int64) string {
	const limit = 20
	s := ""
	for i, id := range ids {
		if i == limit {
			return s + fmt.Sprintf(" ... (%d total)", len(ids))
		}
		if i > 0 {
			s += " "
		}
		s += fmt.Sprint(id)
	}
	return s
}

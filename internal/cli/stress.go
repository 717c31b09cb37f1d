package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/bankserver/internal/audit"
	"github.com/roach88/bankserver/internal/config"
	"github.com/roach88/bankserver/internal/engine"
	"github.com/roach88/bankserver/internal/harness"
	"github.com/roach88/bankserver/internal/ledger"
	"github.com/roach88/bankserver/internal/lifecycle"
)

// StressOptions holds flags for the stress command.
type StressOptions struct {
	*RootOptions
	Accounts     int
	Workers      int
	Transactions int
	Seed         int64
	Latency      time.Duration
	LockMode     string
	Store        string
	DBPath       string
	DSN          string
	Output       string
	Strict       bool
}

// StressReport is the outcome of a stress run.
type StressReport struct {
	RunID          string                `json:"run_id"`
	Accounts       int                   `json:"accounts"`
	Workers        int                   `json:"workers"`
	LockMode       string                `json:"lock_mode"`
	Requests       int                   `json:"requests"`
	Phases         []harness.PhaseTiming `json:"phases"`
	Audit          *harness.Report       `json:"audit"`
	ExpectedSum    int64                 `json:"expected_sum"`
	ExpectedISFIDs []int64               `json:"expected_isf_ids"`
	SumMatches     bool                  `json:"sum_matches"`
	ISFMatches     bool                  `json:"isf_matches"`
	Elapsed        time.Duration         `json:"elapsed"`
	RequestsPerSec float64               `json:"requests_per_sec"`
}

// NewStressCommand creates the stress command.
func NewStressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Drive a generated workload through the server and check the log",
		Long: `Generate a reproducible workload and run it through the engine.

Phases, separated by drain barriers:
  1. deposit 10000 into every account, ten accounts per TRANS
  2. random TRANS of 1-6 distinct accounts, 1% built to fail with ISF
  3. CHECK every account
then END. The audit log is verified and the CHECK sum and ISF ids are
compared with a sequential execution of the same workload. With more
than one worker a random transfer may legitimately see a different
balance, so mismatches only fail the run with --strict.

Exit codes:
  0 - Run completed and the audit log verified
  1 - Audit log problems, or a mismatch with --strict
  2 - Command error

Examples:
  bankserver stress
  bankserver stress --accounts 1000 --workers 10 --latency 1ms
  bankserver stress --workers 1 --strict --seed 7
  bankserver stress --lock-mode coarse --output stress.txt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Accounts, "accounts", 100, "number of accounts")
	cmd.Flags().IntVar(&opts.Workers, "workers", engine.DefaultWorkers, "worker pool size")
	cmd.Flags().IntVar(&opts.Transactions, "transactions", 0, "random TRANS count (0 = clamp(accounts/workers*3, 300, 1000))")
	cmd.Flags().Int64Var(&opts.Seed, "seed", harness.DefaultSeed, "workload seed")
	cmd.Flags().DurationVar(&opts.Latency, "latency", 0, "simulated storage latency per account access")
	cmd.Flags().StringVar(&opts.LockMode, "lock-mode", string(ledger.LockFine), "lock granularity (fine|coarse)")
	cmd.Flags().StringVar(&opts.Store, "store", config.DriverMemory, "account store (memory|sqlite|postgres)")
	cmd.Flags().StringVar(&opts.DBPath, "db", ":memory:", "SQLite database path")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "Postgres connection string")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "also write the audit log to this file")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when the CHECK sum or ISF ids differ from sequential execution")

	return cmd
}

func runStress(cmd *cobra.Command, opts *StressOptions) (err error) {
	cfg := config.Default()
	cfg.Accounts = opts.Accounts
	cfg.Workers = opts.Workers
	cfg.Latency = opts.Latency
	cfg.LockMode = opts.LockMode
	cfg.Store = config.StoreConfig{Driver: opts.Store, Path: opts.DBPath, DSN: opts.DSN}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Transactions < 0 {
		return NewExitError(ExitCommandError, "--transactions must not be negative")
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate run id", err)
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr()).With("run", runID.String())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	w, err := harness.GenerateWorkload(harness.WorkloadConfig{
		Accounts:     cfg.Accounts,
		Workers:      cfg.Workers,
		Transactions: opts.Transactions,
		Seed:         opts.Seed,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate workload", err)
	}

	var cleanup lifecycle.Stack
	defer func() {
		if cerr := cleanup.Run(context.Background()); cerr != nil && err == nil {
			err = WrapExitError(ExitFailure, "cleanup failed", cerr)
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	cleanup.AddCloser("store", st.Close)

	var buf bytes.Buffer
	var sink io.Writer = &buf
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open output", err)
		}
		cleanup.AddCloser("output", f.Close)
		sink = io.MultiWriter(&buf, f)
	}
	aw := audit.NewWriter(sink)

	eng, err := engine.New(st, aw,
		engine.WithWorkers(cfg.Workers),
		engine.WithLockMode(ledger.LockMode(cfg.LockMode)),
		engine.WithLogger(logger),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	logger.Info("stress starting",
		"accounts", cfg.Accounts,
		"workers", cfg.Workers,
		"requests", w.Requests(),
		"seed", opts.Seed,
	)
	started := time.Now()
	eng.Start(ctx)
	phases, driveErr := harness.Drive(eng, w, nil)
	if driveErr != nil {
		eng.Shutdown()
	}
	eng.Wait()
	elapsed := time.Since(started)
	if driveErr != nil {
		return WrapExitError(ExitFailure, "workload submission failed", driveErr)
	}

	rep, err := harness.Verify(&buf, harness.VerifyOptions{Accounts: cfg.Accounts, Requests: w.Requests()})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to verify audit log", err)
	}

	report := StressReport{
		RunID:          runID.String(),
		Accounts:       cfg.Accounts,
		Workers:        cfg.Workers,
		LockMode:       cfg.LockMode,
		Requests:       w.Requests(),
		Phases:         phases,
		Audit:          rep,
		ExpectedSum:    w.ExpectedSum(),
		ExpectedISFIDs: w.ExpectedISFIDs(),
		SumMatches:     rep.BalanceSum == w.ExpectedSum(),
		ISFMatches:     slices.Equal(rep.ISFIDs, w.ExpectedISFIDs()),
		Elapsed:        elapsed,
	}
	if elapsed > 0 {
		report.RequestsPerSec = float64(report.Requests) / elapsed.Seconds()
	}

	if opts.Format == "json" {
		formatter := newFormatter(cmd, opts.RootOptions, report.RunID)
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		printStressReport(cmd, report)
	}

	if !rep.OK() {
		return NewExitError(ExitFailure, verifyFailure(rep))
	}
	if opts.Strict && (!report.SumMatches || !report.ISFMatches) {
		return NewExitError(ExitFailure, "results differ from sequential execution")
	}
	return nil
}

func printStressReport(cmd *cobra.Command, r StressReport) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Run %s: %d accounts, %d workers, %s locking\n", r.RunID, r.Accounts, r.Workers, r.LockMode)
	for _, p := range r.Phases {
		fmt.Fprintf(w, "  %-10s %6d requests in %s\n", p.Name, p.Requests, p.Elapsed)
	}
	fmt.Fprintf(w, "Total: %d requests in %s (%.0f req/s)\n", r.Requests, r.Elapsed, r.RequestsPerSec)

	printReport(cmd, r.Audit)

	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}
	fmt.Fprintf(w, "%s balance sum: expected %d, got %d\n", mark(r.SumMatches), r.ExpectedSum, r.Audit.BalanceSum)
	fmt.Fprintf(w, "%s ISF ids: expected %s, got %s\n", mark(r.ISFMatches), formatIDs(r.ExpectedISFIDs), formatIDs(r.Audit.ISFIDs))
}

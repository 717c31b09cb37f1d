package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/bankserver/internal/audit"
	"github.com/roach88/bankserver/internal/config"
	"github.com/roach88/bankserver/internal/engine"
	"github.com/roach88/bankserver/internal/ledger"
	"github.com/roach88/bankserver/internal/lifecycle"
	"github.com/roach88/bankserver/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath      string
	Latency         time.Duration
	LockMode        string
	Store           string
	DBPath          string
	DSN             string
	MetricsAddr     string
	NoEcho          bool
	ShutdownTimeout time.Duration

	// Stdin overrides the command input (for testing).
	// If nil, the command's input stream is used.
	Stdin io.Reader

	// Signals overrides the shutdown signal source (for testing).
	// If nil, SIGINT and SIGTERM are watched.
	Signals <-chan os.Signal
}

// ServeSummary is reported when serve exits.
type ServeSummary struct {
	RunID     string           `json:"run_id"`
	Output    string           `json:"output"`
	Lines     int64            `json:"lines"`
	Accepted  int64            `json:"accepted"`
	Rejected  int64            `json:"rejected"`
	Pool      engine.PoolStats `json:"pool"`
	Elapsed   time.Duration    `json:"elapsed"`
	StopCause string           `json:"stop_cause"`
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <workers> <accounts> <output>",
		Short: "Run the bank server on stdin",
		Long: `Run the bank server.

Reads one command per line from stdin:
  CHECK <account>
  TRANS <account> <amount> [<account> <amount> ...]
  END

Each accepted request is echoed as "< ID <n>", each rejected line as
"< ERR <reason>". Results are written to <output>. The server drains
every accepted request and exits after END, end of input, or
SIGINT/SIGTERM.

Exit codes:
  0 - Clean shutdown
  1 - Cleanup failed after draining
  2 - Startup error (bad arguments, store or output cannot be opened)

Examples:
  bankserver serve 10 1000 results.txt
  bankserver serve 4 100 out.txt --latency 0 --lock-mode coarse
  bankserver serve 8 500 out.txt --store sqlite --db bank.db
  bankserver serve 10 1000 out.txt --metrics-addr :9090`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildServeConfig(cmd, opts, args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			return runServe(cmd, opts, cfg, args[2])
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.Flags().DurationVar(&opts.Latency, "latency", 0, "simulated storage latency per account access")
	cmd.Flags().StringVar(&opts.LockMode, "lock-mode", "", "lock granularity (fine|coarse)")
	cmd.Flags().StringVar(&opts.Store, "store", "", "account store (memory|sqlite|postgres)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "Postgres connection string")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /stats on this address")
	cmd.Flags().BoolVar(&opts.NoEcho, "no-echo", false, "do not echo request ids to stdout")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 0, "time allowed for cleanup after draining")

	return cmd
}

// buildServeConfig layers defaults, the config file, positional arguments
// and explicitly set flags, then validates the result.
func buildServeConfig(cmd *cobra.Command, opts *ServeOptions, args []string) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	workers, err := strconv.Atoi(args[0])
	if err != nil {
		return config.Config{}, fmt.Errorf("workers %q is not an integer", args[0])
	}
	accounts, err := strconv.Atoi(args[1])
	if err != nil {
		return config.Config{}, fmt.Errorf("accounts %q is not an integer", args[1])
	}
	cfg.Workers = workers
	cfg.Accounts = accounts

	flags := cmd.Flags()
	if flags.Changed("latency") {
		cfg.Latency = opts.Latency
	}
	if flags.Changed("lock-mode") {
		cfg.LockMode = opts.LockMode
	}
	if flags.Changed("store") {
		cfg.Store.Driver = opts.Store
	}
	if flags.Changed("db") {
		cfg.Store.Path = opts.DBPath
	}
	if flags.Changed("dsn") {
		cfg.Store.DSN = opts.DSN
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if flags.Changed("no-echo") {
		cfg.Echo = !opts.NoEcho
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = opts.ShutdownTimeout
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *ServeOptions, cfg config.Config, output string) (err error) {
	started := time.Now()

	runID, err := uuid.NewV7()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate run id", err)
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr()).With("run", runID.String())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var cleanup lifecycle.Stack
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if cerr := cleanup.Run(cctx); cerr != nil {
			logger.Error("cleanup failed", "error", cerr)
			if err == nil {
				err = WrapExitError(ExitFailure, "cleanup failed", cerr)
			}
		}
	}()

	logger.Info("opening store", "driver", cfg.Store.Driver, "accounts", cfg.Accounts)
	st, err := openStore(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	cleanup.AddCloser("store", st.Close)

	aw, err := audit.Create(output)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open output", err)
	}
	cleanup.AddCloser("audit log", aw.Close)

	engOpts := []engine.EngineOption{
		engine.WithWorkers(cfg.Workers),
		engine.WithLockMode(ledger.LockMode(cfg.LockMode)),
		engine.WithLogger(logger),
	}
	reg := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		engOpts = append(engOpts, engine.WithObserver(metrics.New(reg)))
	}

	eng, err := engine.New(st, aw, engOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr, metrics.NewRouter(reg, eng.Stats))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		srv.ServeAsync(logger)
		cleanup.Add("metrics server", srv.Shutdown)
		logger.Info("metrics server listening", "addr", srv.Addr())
	}

	eng.Start(ctx)

	echo := cmd.OutOrStdout()
	if opts.Format == "json" {
		echo = cmd.ErrOrStderr()
	}
	s := &session{
		eng:    eng,
		logger: logger,
		echo:   echo,
		quiet:  !cfg.Echo,
	}

	in := opts.Stdin
	if in == nil {
		in = cmd.InOrStdin()
	}
	s.prompt = cfg.Echo && isTerminal(in)
	sigs := opts.Signals
	if sigs == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigs = ch
	}

	cause := s.serve(ctx, in, sigs)
	logger.Info("draining", "cause", cause, "accepted", s.accepted)
	eng.Shutdown()
	eng.Wait()

	summary := ServeSummary{
		RunID:     runID.String(),
		Output:    output,
		Lines:     aw.Lines(),
		Accepted:  s.accepted,
		Rejected:  s.rejected,
		Pool:      eng.Stats(),
		Elapsed:   time.Since(started),
		StopCause: cause,
	}
	logger.Info("server stopped",
		"lines", summary.Lines,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"failed", summary.Pool.Failed,
		"elapsed", summary.Elapsed,
	)

	if opts.Format == "json" {
		formatter := newFormatter(cmd, opts.RootOptions, summary.RunID)
		return formatter.Success(summary)
	}
	return nil
}

// session feeds input lines to the engine and echoes what happened to each.
type session struct {
	eng      *engine.Engine
	logger   *slog.Logger
	echo     io.Writer
	quiet    bool
	prompt   bool // print "> " before each read
	accepted int64
	rejected int64
}

// Stop causes reported by serve.
const (
	stopEnd    = "end"
	stopEOF    = "eof"
	stopSignal = "signal"
	stopCancel = "cancel"
)

// serve submits lines until END, end of input, a signal, or ctx is done,
// and returns which of those stopped it.
func (s *session) serve(ctx context.Context, in io.Reader, sigs <-chan os.Signal) string {
	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(in, done)

	for {
		if s.prompt {
			fmt.Fprint(s.echo, "> ")
		}
		select {
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					s.logger.Error("reading input failed", "error", err)
				}
				return stopEOF
			}
			if s.handle(line) {
				return stopEnd
			}
		case sig := <-sigs:
			s.logger.Info("received signal, shutting down", "signal", sig)
			return stopSignal
		case <-ctx.Done():
			return stopCancel
		}
	}
}

// handle submits one line and reports whether intake is now closed.
func (s *session) handle(line string) bool {
	req, err := s.eng.Submit(line)
	switch {
	case err == nil:
		if req.Kind == engine.KindEnd {
			return true
		}
		s.accepted++
		s.say("< ID %d", req.ID)
	case engine.CommandErrorCodeOf(err) == engine.ErrCodeEmpty:
	case engine.IsCommandError(err):
		s.rejected++
		s.logger.Warn("rejected command", "line", line, "code", string(engine.CommandErrorCodeOf(err)), "error", err)
		s.say("< ERR %s", err)
	case errors.Is(err, engine.ErrQueueClosed):
		return true
	default:
		s.rejected++
		s.logger.Error("submit failed", "line", line, "error", err)
		s.say("< ERR %s", err)
	}
	return false
}

func (s *session) say(format string, args ...any) {
	if s.quiet {
		return
	}
	fmt.Fprintf(s.echo, format+"\n", args...)
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readLines scans r on its own goroutine so a blocked read never delays
// shutdown. The error channel yields the scan error once lines is closed.
func readLines(r io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				errc <- nil
				return
			}
		}
		errc <- sc.Err()
	}()
	return lines, errc
}

package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// dialect carries the SQL that differs between drivers.
type dialect struct {
	name    string // migrate database name
	dir     string // migrations subdirectory
	read    string
	write   string
	reset   string
	initRow string
}

// SQLStore keeps balances in an "accounts" table.
//
// Accounts are reset to zero on open; the table is a storage medium for the
// lifetime of one process, not a durable ledger.
type SQLStore struct {
	db      *sql.DB
	n       int
	latency time.Duration
	d       dialect
}

func newSQLStore(ctx context.Context, db *sql.DB, driver database.Driver, d dialect, n int, opts []Option) (*SQLStore, error) {
	if err := migrateUp(driver, d); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	s := &SQLStore{db: db, n: n, latency: o.latency, d: d}
	if err := s.initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func migrateUp(driver database.Driver, d dialect) error {
	src, err := iofs.New(migrationsFS, "migrations/"+d.dir)
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.name, driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// initialize zeroes accounts 1..n in one transaction.
func (s *SQLStore) initialize(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("initialize accounts: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, s.d.reset); err != nil {
		return fmt.Errorf("initialize accounts: reset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.d.initRow)
	if err != nil {
		return fmt.Errorf("initialize accounts: prepare: %w", err)
	}
	defer stmt.Close()

	for id := 1; id <= s.n; id++ {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("initialize account %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("initialize accounts: commit: %w", err)
	}
	return nil
}

// Accounts returns the number of accounts.
func (s *SQLStore) Accounts() int {
	return s.n
}

// ReadAccount selects the balance of id.
func (s *SQLStore) ReadAccount(ctx context.Context, id int) (int64, error) {
	if err := checkID(id, s.n); err != nil {
		return 0, err
	}
	sleep(s.latency)

	var balance int64
	err := s.db.QueryRowContext(ctx, s.d.read, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownAccount, id)
	}
	if err != nil {
		return 0, fmt.Errorf("read account %d: %w", id, err)
	}
	return balance, nil
}

// WriteAccount updates the balance of id.
func (s *SQLStore) WriteAccount(ctx context.Context, id int, balance int64) error {
	if err := checkID(id, s.n); err != nil {
		return err
	}
	sleep(s.latency)

	if _, err := s.db.ExecContext(ctx, s.d.write, balance, id); err != nil {
		return fmt.Errorf("write account %d: %w", id, err)
	}
	return nil
}

// WriteAccounts applies all balances in one SQL transaction.
func (s *SQLStore) WriteAccounts(ctx context.Context, balances []Balance) error {
	for _, b := range balances {
		if err := checkID(b.Account, s.n); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write accounts: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, b := range balances {
		sleep(s.latency)
		if _, err := tx.ExecContext(ctx, s.d.write, b.Amount, b.Account); err != nil {
			return fmt.Errorf("write account %d: %w", b.Account, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write accounts: commit: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name:    "sqlite3",
	dir:     "sqlite",
	read:    `SELECT balance FROM accounts WHERE id = ?`,
	write:   `UPDATE accounts SET balance = ? WHERE id = ?`,
	reset:   `DELETE FROM accounts`,
	initRow: `INSERT INTO accounts (id, balance) VALUES (?, 0)`,
}

// OpenSQLite opens (or creates) a SQLite database at path and initializes n
// zeroed accounts. Use ":memory:" for a private in-process medium.
//
// The pool is limited to one connection: SQLite allows a single writer, and
// an in-memory database exists only on the connection that created it.
func OpenSQLite(ctx context.Context, path string, n int, opts ...Option) (*SQLStore, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountCount, n)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite3 migrate driver: %w", err)
	}

	s, err := newSQLStore(ctx, db, driver, sqliteDialect, n, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

var postgresDialect = dialect{
	name:    "postgres",
	dir:     "postgres",
	read:    `SELECT balance FROM accounts WHERE id = $1`,
	write:   `UPDATE accounts SET balance = $1 WHERE id = $2`,
	reset:   `DELETE FROM accounts`,
	initRow: `INSERT INTO accounts (id, balance) VALUES ($1, 0)`,
}

// OpenPostgres connects to dsn, migrates the schema and initializes n zeroed
// accounts. Existing rows are discarded.
func OpenPostgres(ctx context.Context, dsn string, n int, opts ...Option) (*SQLStore, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountCount, n)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init postgres migrate driver: %w", err)
	}

	s, err := newSQLStore(ctx, db, driver, postgresDialect, n, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

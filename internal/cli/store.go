package cli

import (
	"context"
	"fmt"

	"github.com/roach88/bankserver/internal/config"
	"github.com/roach88/bankserver/internal/ledger"
)

// openStore opens the account medium named by cfg.Store with every account
// at zero.
func openStore(ctx context.Context, cfg config.Config) (ledger.Store, error) {
	latency := ledger.WithLatency(cfg.Latency)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		return ledger.NewMemoryStore(cfg.Accounts, latency)
	case config.DriverSQLite:
		return ledger.OpenSQLite(ctx, cfg.Store.Path, cfg.Accounts, latency)
	case config.DriverPostgres:
		return ledger.OpenPostgres(ctx, cfg.Store.DSN, cfg.Accounts, latency)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

package interfaces

import (
	"context"

	trading "main/internal/domain/entity/trading"
)

// PersistenceGateway is the durable sink for accounts, trades and position
// snapshots. Every call is atomic from the gateway's perspective; the engine
// treats failures as non-fatal and keeps processing other trades.
type PersistenceGateway interface {
	// UpsertAccount is idempotent and must succeed before any trade or
	// position referencing the account is written.
	UpsertAccount(ctx context.Context, accountID int64, name string) error

	// PersistTrade writes a trade with its final status and rejection reason.
	PersistTrade(ctx context.Context, trade *trading.Trade) error

	// UpsertPosition writes the current snapshot for (account, symbol).
	UpsertPosition(ctx context.Context, snapshot trading.Snapshot) error

	Close()
}

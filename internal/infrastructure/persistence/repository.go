package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	trading "main/internal/domain/entity/trading"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the Postgres persistence gateway for accounts, trades and
// position snapshots. Individual writes are serialized with a repository-wide
// mutex so at most one write is in flight at a time; each statement commits
// or fails atomically on its own. Durability is a side channel: callers keep
// the in-memory ledger authoritative and treat failures here as non-fatal.
type Repository struct {
	pool *pgxpool.Pool
	mu   sync.Mutex
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	repo := &Repository{pool: pool}
	if err := repo.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return repo, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// Schema: accounts (1) -> trades (N), accounts (1) -> positions (N).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id   BIGINT PRIMARY KEY,
		account_name VARCHAR(64) NOT NULL,
		created_at   TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		trade_id         BIGINT PRIMARY KEY,
		account_id       BIGINT        NOT NULL REFERENCES accounts(account_id) ON DELETE CASCADE,
		symbol           VARCHAR(20)   NOT NULL,
		quantity         BIGINT        NOT NULL CHECK (quantity > 0),
		price            NUMERIC(18,6) NOT NULL CHECK (price > 0),
		side             VARCHAR(4)    NOT NULL,
		status           VARCHAR(10)   NOT NULL,
		rejection_reason VARCHAR(256),
		trade_timestamp  TIMESTAMPTZ   NOT NULL,
		processed_at     TIMESTAMPTZ   DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		account_id   BIGINT        NOT NULL REFERENCES accounts(account_id) ON DELETE CASCADE,
		symbol       VARCHAR(20)   NOT NULL,
		net_quantity BIGINT        NOT NULL DEFAULT 0,
		average_cost NUMERIC(18,6) NOT NULL DEFAULT 0,
		realized_pnl NUMERIC(18,6) NOT NULL DEFAULT 0,
		updated_at   TIMESTAMPTZ   DEFAULT now(),
		PRIMARY KEY (account_id, symbol)
	)`,
}

func (r *Repository) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const upsertAccountQuery = `
	INSERT INTO accounts (account_id, account_name)
	VALUES ($1, $2)
	ON CONFLICT (account_id) DO UPDATE SET account_name = EXCLUDED.account_name`

func (r *Repository) UpsertAccount(ctx context.Context, accountID int64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.pool.Exec(ctx, upsertAccountQuery, accountID, name)
	return err
}

const insertTradeQuery = `
	INSERT INTO trades
		(trade_id, account_id, symbol, quantity, price, side, status, rejection_reason, trade_timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (trade_id) DO UPDATE SET
		status           = EXCLUDED.status,
		rejection_reason = EXCLUDED.rejection_reason,
		processed_at     = now()`

func (r *Repository) PersistTrade(ctx context.Context, trade *trading.Trade) error {
	if trade == nil {
		return errors.New("nil trade")
	}
	var reason *string
	if text := trade.Reason(); text != "" {
		reason = &text
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.pool.Exec(ctx, insertTradeQuery,
		trade.ID,
		trade.AccountID,
		trade.Symbol,
		trade.Quantity,
		trade.Price.String(),
		string(trade.Side),
		trade.Status().String(),
		reason,
		trade.Timestamp,
	)
	return err
}

const upsertPositionQuery = `
	INSERT INTO positions (account_id, symbol, net_quantity, average_cost, realized_pnl, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (account_id, symbol) DO UPDATE SET
		net_quantity = EXCLUDED.net_quantity,
		average_cost = EXCLUDED.average_cost,
		realized_pnl = EXCLUDED.realized_pnl,
		updated_at   = now()`

func (r *Repository) UpsertPosition(ctx context.Context, snapshot trading.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.pool.Exec(ctx, upsertPositionQuery,
		snapshot.AccountID,
		snapshot.Symbol,
		snapshot.NetQuantity,
		snapshot.AverageCost.String(),
		snapshot.RealizedPnL.String(),
	)
	return err
}

package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// CreateTrade appends a trade to the journal. Replaying the same ID is a no-op.
func (r *Repository) CreateTrade(ctx context.Context, trade *TradeRecord) error {
	query := `
		INSERT INTO paper_trades (id, executed_at, symbol, side, price, quantity, balance_after, pnl_percent, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		trade.ID, trade.ExecutedAt, trade.Symbol, trade.Side, trade.Price,
		trade.Quantity, trade.BalanceAfter, trade.PnLPercent, trade.Reason,
	).Scan(&trade.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil
	}
	return err
}

// ListRecentTrades returns up to limit trades, newest first, optionally
// filtered by symbol
func (r *Repository) ListRecentTrades(ctx context.Context, symbol string, limit int) ([]*TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, executed_at, symbol, side, price, quantity, balance_after, pnl_percent, reason, created_at
		FROM paper_trades
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY executed_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*TradeRecord
	for rows.Next() {
		t := &TradeRecord{}
		if err := rows.Scan(
			&t.ID, &t.ExecutedAt, &t.Symbol, &t.Side, &t.Price, &t.Quantity,
			&t.BalanceAfter, &t.PnLPercent, &t.Reason, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/rijin-bot/internal/domain"
)

// TradeRepository журнал закрытых бумажных сделок
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый репозиторий сделок
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// SaveClosed сохраняет закрытую сделку
func (r *TradeRepository) SaveClosed(ctx context.Context, instrument string, c *domain.ClosedTrade) error {
	query := `
		INSERT INTO closed_trades (trade_id, instrument, category, direction, entry, stop, target,
			quantity, regime, entry_time, exit_type, exit_price, exit_time, pnl_r, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (trade_id) DO NOTHING
	`
	s := c.Trade.Signal
	_, err := r.db.ExecContext(ctx, query,
		c.Trade.ID,
		instrument,
		s.Category,
		string(s.Direction),
		s.Entry,
		s.Stop,
		s.Target,
		c.Trade.Quantity,
		c.Trade.Regime.String(),
		c.Trade.EntryTime,
		string(c.Exit),
		c.ExitPrice,
		c.ExitTime,
		c.PnLR,
		c.PnL,
	)
	return err
}

// DailySummary итог сессии по инструменту
type DailySummary struct {
	Trades int
	Losses int
	PnLR   float64
	PnL    decimal.Decimal
}

// Summary считает итог закрытых сделок за сессию day
func (r *TradeRepository) Summary(ctx context.Context, instrument string, day time.Time) (*DailySummary, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE exit_type = 'SL'),
		       COALESCE(SUM(pnl_r), 0),
		       COALESCE(SUM(pnl), 0)
		FROM closed_trades
		WHERE instrument = $1 AND exit_time >= $2 AND exit_time < $3
	`
	start := domain.SessionDate(day)
	var s DailySummary
	err := r.db.QueryRowContext(ctx, query, instrument, start, start.AddDate(0, 0, 1)).
		Scan(&s.Trades, &s.Losses, &s.PnLR, &s.PnL)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

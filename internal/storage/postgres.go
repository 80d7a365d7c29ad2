package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/storage/repository"
)

// PostgresStorage является фасадом журнала аудита поверх репозиториев
type PostgresStorage struct {
	db       *sql.DB
	events   *repository.EventRepository
	trades   *repository.TradeRepository
	breakers *repository.CircuitBreakerRepository
}

// NewPostgresStorage подключается к PostgreSQL и применяет миграции
func NewPostgresStorage(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDatabaseConnection, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", domain.ErrDatabaseConnection, err)
	}

	// Настройка connection pool из конфигурации
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s, err := NewWithDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB оборачивает готовое соединение и применяет миграции
func NewWithDB(ctx context.Context, db *sql.DB) (*PostgresStorage, error) {
	s := &PostgresStorage{
		db:       db,
		events:   repository.NewEventRepository(db),
		trades:   repository.NewTradeRepository(db),
		breakers: repository.NewCircuitBreakerRepository(db),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStorage) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			kind VARCHAR(32) NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			regime VARCHAR(32) NOT NULL,
			gate VARCHAR(32) NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_instrument_at ON events(instrument, at DESC)`,
		`CREATE TABLE IF NOT EXISTS closed_trades (
			trade_id UUID PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			category VARCHAR(32) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			entry DOUBLE PRECISION NOT NULL,
			stop DOUBLE PRECISION NOT NULL,
			target DOUBLE PRECISION NOT NULL,
			quantity DECIMAL(20, 4) NOT NULL,
			regime VARCHAR(32) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_type VARCHAR(8) NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			pnl_r DOUBLE PRECISION NOT NULL,
			pnl DECIMAL(20, 4) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_instrument_exit ON closed_trades(instrument, exit_time)`,
		`CREATE TABLE IF NOT EXISTS circuit_breaker_events (
			id SERIAL PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			breaker VARCHAR(32) NOT NULL,
			reason TEXT NOT NULL,
			triggered_at TIMESTAMPTZ NOT NULL,
			resumed_at TIMESTAMPTZ
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

// ==================== EVENTS ====================

// SaveEvent пишет событие; срабатывания и снятия защит дублируются в историю защит
func (s *PostgresStorage) SaveEvent(ctx context.Context, e *domain.Event) error {
	if err := s.events.Save(ctx, e); err != nil {
		return fmt.Errorf("save event: %w", err)
	}

	switch e.Kind {
	case domain.EventBreakerTriggered:
		reason := e.Reason
		if reason == "" {
			reason = e.Message
		}
		if _, err := s.breakers.Trigger(ctx, e.Instrument, e.Gate, reason, e.At); err != nil {
			return fmt.Errorf("save breaker trigger: %w", err)
		}
	case domain.EventBreakerCleared:
		if err := s.breakers.Resume(ctx, e.Instrument, e.Gate, e.At); err != nil {
			return fmt.Errorf("save breaker resume: %w", err)
		}
	case domain.EventSessionStopped:
		if _, err := s.breakers.Trigger(ctx, e.Instrument, domain.GateSessionStop, e.Reason, e.At); err != nil {
			return fmt.Errorf("save session stop: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) RecentEvents(ctx context.Context, instrument string, since time.Time, limit int) ([]domain.Event, error) {
	return s.events.Recent(ctx, instrument, since, limit)
}

// ==================== TRADES ====================

func (s *PostgresStorage) SaveClosedTrade(ctx context.Context, instrument string, trade *domain.ClosedTrade) error {
	if err := s.trades.SaveClosed(ctx, instrument, trade); err != nil {
		return fmt.Errorf("save closed trade: %w", err)
	}
	return nil
}

func (s *PostgresStorage) DailySummary(ctx context.Context, instrument string, day time.Time) (*repository.DailySummary, error) {
	return s.trades.Summary(ctx, instrument, day)
}

// ==================== BREAKERS ====================

func (s *PostgresStorage) BreakerTripsSince(ctx context.Context, instrument string, since time.Time) (int, error) {
	return s.breakers.CountSince(ctx, instrument, since)
}

// Close закрывает соединение с базой данных
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// DB возвращает указатель на *sql.DB
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}

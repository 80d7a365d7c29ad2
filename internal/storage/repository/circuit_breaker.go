package repository

import (
	"context"
	"database/sql"
	"time"
)

// CircuitBreakerRepository история срабатываний защит
type CircuitBreakerRepository struct {
	db *sql.DB
}

// NewCircuitBreakerRepository создает новый репозиторий
func NewCircuitBreakerRepository(db *sql.DB) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{db: db}
}

// Trigger сохраняет срабатывание защиты
func (r *CircuitBreakerRepository) Trigger(ctx context.Context, instrument, breaker, reason string, at time.Time) (int64, error) {
	query := `
		INSERT INTO circuit_breaker_events (instrument, breaker, reason, triggered_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, instrument, breaker, reason, at).Scan(&id)
	return id, err
}

// Resume отмечает активные срабатывания защиты как снятые
func (r *CircuitBreakerRepository) Resume(ctx context.Context, instrument, breaker string, at time.Time) error {
	query := `
		UPDATE circuit_breaker_events
		SET resumed_at = $1
		WHERE instrument = $2 AND breaker = $3 AND resumed_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, at, instrument, breaker)
	return err
}

// CountSince число срабатываний с момента since
func (r *CircuitBreakerRepository) CountSince(ctx context.Context, instrument string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM circuit_breaker_events
		WHERE instrument = $1 AND triggered_at >= $2
	`
	var n int
	err := r.db.QueryRowContext(ctx, query, instrument, since).Scan(&n)
	return n, err
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillm/rijin-bot/internal/domain"
)

// EventRepository журнал событий ядра
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository создает новый репозиторий событий
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Save сохраняет событие; повторный ID игнорируется
func (r *EventRepository) Save(ctx context.Context, e *domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	query := `
		INSERT INTO events (id, kind, instrument, at, regime, gate, reason, message, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID,
		string(e.Kind),
		e.Instrument,
		e.At,
		e.Regime.String(),
		e.Gate,
		e.Reason,
		e.Message,
		payload,
	)
	return err
}

// Recent последние события инструмента начиная с since
func (r *EventRepository) Recent(ctx context.Context, instrument string, since time.Time, limit int) ([]domain.Event, error) {
	query := `
		SELECT payload
		FROM events
		WHERE instrument = $1 AND at >= $2
		ORDER BY at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, instrument, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e domain.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

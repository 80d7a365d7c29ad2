package notify

import (
	"context"
	"fmt"

	"github.com/kirillm/rijin-bot/internal/domain"
)

// JournalSink пишет события и закрытые сделки в журнал аудита
type JournalSink struct {
	events domain.EventJournal
	trades domain.TradeJournal
}

// NewJournalSink создает получатель-журнал; trades может быть nil
func NewJournalSink(events domain.EventJournal, trades domain.TradeJournal) *JournalSink {
	return &JournalSink{events: events, trades: trades}
}

func (j *JournalSink) Notify(ctx context.Context, e domain.Event) error {
	if err := j.events.SaveEvent(ctx, &e); err != nil {
		return fmt.Errorf("journal event %s: %w", e.ID, err)
	}
	if e.Kind == domain.EventTradeClosed && e.Closed != nil && j.trades != nil {
		if err := j.trades.SaveClosedTrade(ctx, e.Instrument, e.Closed); err != nil {
			return fmt.Errorf("journal trade %s: %w", e.Closed.Trade.ID, err)
		}
	}
	return nil
}

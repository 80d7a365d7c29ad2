package domain

import "context"

// EventJournal определяет интерфейс журнала событий
type EventJournal interface {
	SaveEvent(ctx context.Context, event *Event) error
}

// TradeJournal определяет интерфейс журнала закрытых сделок
type TradeJournal interface {
	SaveClosedTrade(ctx context.Context, instrument string, trade *ClosedTrade) error
}

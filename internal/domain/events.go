package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind тип события для уведомлений и журнала
type EventKind string

const (
	EventEngineStarted    EventKind = "engine_started"
	EventEngineStopped    EventKind = "engine_stopped"
	EventSessionStarted   EventKind = "session_started"
	EventRegimeDowngraded EventKind = "regime_downgraded"
	EventImpulseDetected  EventKind = "impulse_detected"
	EventSignalAdmitted   EventKind = "signal_admitted"
	EventSignalRejected   EventKind = "signal_rejected"
	EventTradeClosed      EventKind = "trade_closed"
	EventBreakerTriggered EventKind = "breaker_triggered"
	EventBreakerCleared   EventKind = "breaker_cleared"
	EventSessionStopped   EventKind = "session_stopped"
)

// Event структурированное событие ядра
type Event struct {
	ID         string       `json:"id"`
	Kind       EventKind    `json:"kind"`
	Instrument string       `json:"instrument"`
	At         time.Time    `json:"at"`
	Regime     RegimeLabel  `json:"regime"`
	Signal     *Signal      `json:"signal,omitempty"`
	Trade      *ActiveTrade `json:"trade,omitempty"`
	Closed     *ClosedTrade `json:"closed,omitempty"`
	Gate       string       `json:"gate,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Message    string       `json:"message,omitempty"`
	SpecialDay bool         `json:"special_day,omitempty"`
	DailyR     float64      `json:"daily_r,omitempty"`
}

// NewEvent создает событие с новым ID
func NewEvent(kind EventKind, instrument string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Instrument: instrument,
		At:         at,
	}
}

package engine

import (
	"time"

	"github.com/kirillm/rijin-bot/internal/breakers"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/impulse"
	"github.com/kirillm/rijin-bot/internal/regime"
)

// Status снимок состояния инструмента для API и тестов
type Status struct {
	Instrument        string                     `json:"instrument"`
	Session           time.Time                  `json:"session"`
	SpecialDay        bool                       `json:"special_day"`
	LastBar           time.Time                  `json:"last_bar,omitempty"`
	Regime            domain.RegimeLabel         `json:"regime"`
	RegimeState       regime.SessionState        `json:"regime_state"`
	Transitions       []regime.Transition        `json:"transitions,omitempty"`
	Impulse           *impulse.State             `json:"impulse,omitempty"`
	ActiveTrade       *domain.ActiveTrade        `json:"active_trade,omitempty"`
	Loss              breakers.LossStatus        `json:"loss_breaker"`
	Stop              breakers.SessionStopStatus `json:"session_stop"`
	ConsecutiveBlocks int                        `json:"consecutive_blocks"`
	DailyR            float64                    `json:"daily_r"`
	TradesClosed      int                        `json:"trades_closed"`
	Admitted          int                        `json:"admitted"`
	Rejected          int                        `json:"rejected"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// Status последний опубликованный снимок; безопасен из других горутин
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.status
}

func (e *Engine) publish(now time.Time) {
	st := Status{
		Instrument:        e.instrument,
		Session:           e.session,
		SpecialDay:        e.specialDay,
		LastBar:           e.lastBar,
		Regime:            e.machine.Current(),
		RegimeState:       e.machine.State(),
		Transitions:       e.machine.History(),
		Loss:              e.loss.Status(),
		Stop:              e.stop.Stop().Status(),
		ConsecutiveBlocks: e.stop.ConsecutiveBlocks(),
		DailyR:            e.dailyR,
		TradesClosed:      e.closed,
		Admitted:          e.admissions.Total(),
		Rejected:          e.rejected,
		UpdatedAt:         now,
	}
	if s, ok := e.tracker.State(); ok {
		st.Impulse = &s
	}
	if e.trade != nil {
		t := *e.trade
		st.ActiveTrade = &t
	}

	e.mu.Lock()
	e.status = st
	e.mu.Unlock()
}

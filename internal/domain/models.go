package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar представляет свечу фиксированного интервала
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range возвращает high-low
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body возвращает абсолютный размер тела свечи
func (b Bar) Body() float64 {
	if b.Close > b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

func (b Bar) IsBullish() bool { return b.Close > b.Open }

func (b Bar) IsBearish() bool { return b.Close < b.Open }

// Valid проверяет согласованность OHLC
func (b Bar) Valid() bool {
	if b.Time.IsZero() {
		return false
	}
	if b.High < b.Low || b.Open <= 0 || b.Close <= 0 {
		return false
	}
	return b.High >= b.Open && b.High >= b.Close && b.Low <= b.Open && b.Low <= b.Close
}

// Direction направление сигнала или импульса
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionNone Direction = "NONE"
)

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	default:
		return DirectionNone
	}
}

// Signal кандидат на вход, сформированный внешним источником
type Signal struct {
	Instrument string    `json:"instrument"`
	Category   string    `json:"category"` // MODE_F, MODE_S_CORE, MODE_S_LIQUIDITY, OPENING_IMPULSE
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entry"`
	Stop       float64   `json:"stop"`
	Target     float64   `json:"target"`
	Pattern    string    `json:"pattern,omitempty"`
	RiskR      float64   `json:"risk_r"` // доля стандартного риска, 1.0 = 1R
	ProposedAt time.Time `json:"proposed_at"`
}

// Risk расстояние от входа до стопа
func (s Signal) Risk() float64 {
	r := s.Entry - s.Stop
	if r < 0 {
		return -r
	}
	return r
}

// GateVerdict результат одной проверки допуска
type GateVerdict struct {
	Allowed  bool   `json:"allowed"`
	Gate     string `json:"gate,omitempty"`
	Reason   string `json:"reason,omitempty"`
	FailOpen bool   `json:"fail_open,omitempty"`
}

// Allow разрешающий вердикт
func Allow() GateVerdict {
	return GateVerdict{Allowed: true}
}

// AllowFailOpen разрешение из-за нехватки данных
func AllowFailOpen(gate, reason string) GateVerdict {
	return GateVerdict{Allowed: true, Gate: gate, Reason: reason, FailOpen: true}
}

// Reject запрещающий вердикт с причиной
func Reject(gate, reason string) GateVerdict {
	return GateVerdict{Allowed: false, Gate: gate, Reason: reason}
}

// ActiveTrade открытая бумажная позиция
type ActiveTrade struct {
	ID        string          `json:"id"`
	Signal    Signal          `json:"signal"`
	EntryTime time.Time       `json:"entry_time"`
	Quantity  decimal.Decimal `json:"quantity"`
	Regime    RegimeLabel     `json:"regime"`
}

// ExitType тип выхода из сделки
type ExitType string

const (
	ExitTarget   ExitType = "TARGET"
	ExitStopLoss ExitType = "SL"
)

// ClosedTrade результат закрытой сделки
type ClosedTrade struct {
	Trade     ActiveTrade     `json:"trade"`
	Exit      ExitType        `json:"exit"`
	ExitPrice float64         `json:"exit_price"`
	ExitTime  time.Time       `json:"exit_time"`
	PnLR      float64         `json:"pnl_r"`
	PnL       decimal.Decimal `json:"pnl"`
}

// IsLoss сделка закрыта по стопу
func (c ClosedTrade) IsLoss() bool {
	return c.Exit == ExitStopLoss
}

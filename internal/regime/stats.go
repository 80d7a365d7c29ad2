package regime

import (
	"math"
	"time"

	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/indicators"
)

// SessionStats накопленная статистика текущей сессии
type SessionStats struct {
	OpenTime time.Time
	FirstATR float64 // ATR на первом баре сессии
	DayHigh  float64
	DayLow   float64
	VWAP     float64
}

// Update обновляет статистику по барам текущей сессии
func (s *SessionStats) Update(session []domain.Bar, snap *indicators.Snapshot) {
	if len(session) == 0 {
		return
	}

	if s.OpenTime.IsZero() {
		s.OpenTime = session[0].Time
	}
	if s.FirstATR == 0 && snap != nil && snap.ATR > 0 {
		s.FirstATR = snap.ATR
	}

	s.DayHigh, s.DayLow = session[0].High, session[0].Low
	for _, b := range session[1:] {
		s.DayHigh = math.Max(s.DayHigh, b.High)
		s.DayLow = math.Min(s.DayLow, b.Low)
	}
	s.VWAP = indicators.VWAP(session)
}

// Range дневной диапазон
func (s *SessionStats) Range() float64 {
	return s.DayHigh - s.DayLow
}

// ATRRatio отношение текущего ATR к ATR начала дня; 0 если начальный ATR неизвестен
func (s *SessionStats) ATRRatio(atr float64) float64 {
	if s.FirstATR <= 0 {
		return 0
	}
	return atr / s.FirstATR
}

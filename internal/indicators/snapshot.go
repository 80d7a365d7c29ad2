package indicators

import (
	"fmt"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// Snapshot текущие значения индикаторов и короткая история для проверок наклона и пил
type Snapshot struct {
	EMA   float64 // EMA20 последнего бара
	ATR   float64
	RSI   float64
	Slope float64 // изменение EMA за SlopeLookback баров

	EMASeries []float64
	ATRSeries []float64
	RSISeries []float64
}

// RecentRSI последние n значений RSI (или меньше, если ряд короче)
func (s *Snapshot) RecentRSI(n int) []float64 {
	if n >= len(s.RSISeries) {
		return s.RSISeries
	}
	return s.RSISeries[len(s.RSISeries)-n:]
}

// MinBars минимальное число баров для расчета снимка
func MinBars(cfg config.IndicatorThresholds) int {
	n := cfg.RSIPeriod + 1
	if cfg.ATRPeriod > n {
		n = cfg.ATRPeriod
	}
	if cfg.SlopeLookback+1 > n {
		n = cfg.SlopeLookback + 1
	}
	return n
}

// Compute рассчитывает снимок индикаторов по упорядоченному ряду баров
func Compute(bars []domain.Bar, cfg config.IndicatorThresholds) (*Snapshot, error) {
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}
	if need := MinBars(cfg); len(bars) < need {
		return nil, fmt.Errorf("%w: have %d bars, need %d", domain.ErrInsufficientData, len(bars), need)
	}

	closes := Closes(bars)
	ema := EMA(closes, cfg.EMAPeriod)
	atr := ATR(bars, cfg.ATRPeriod)
	rsi := RSI(closes, cfg.RSIPeriod)

	last := len(bars) - 1
	return &Snapshot{
		EMA:       ema[last],
		ATR:       atr[last],
		RSI:       rsi[last],
		Slope:     Slope(ema, cfg.SlopeLookback),
		EMASeries: ema,
		ATRSeries: atr,
		RSISeries: rsi,
	}, nil
}

// ValidateBars проверяет согласованность OHLC и строгий порядок времени
func ValidateBars(bars []domain.Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty bar sequence", domain.ErrInsufficientData)
	}
	for i, b := range bars {
		if !b.Valid() {
			return fmt.Errorf("%w: bar %d at %s", domain.ErrMalformedBars, i, b.Time.Format("2006-01-02 15:04"))
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return fmt.Errorf("%w: bar %d out of order", domain.ErrMalformedBars, i)
		}
	}
	return nil
}

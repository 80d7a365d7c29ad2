package signal

import (
	"math"

	"github.com/creasty/defaults"

	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/indicators"
)

// Gear логика, выбранная по волатильности
type Gear string

const (
	GearTrend    Gear = "GEAR_1_TREND"
	GearRotation Gear = "GEAR_2_ROTATION"
	GearMomentum Gear = "GEAR_3_MOMENTUM"
)

// Volatility уровень волатильности по ATR в процентах от цены
type Volatility string

const (
	VolatilityLow     Volatility = "LOW"
	VolatilityNormal  Volatility = "NORMAL"
	VolatilityHigh    Volatility = "HIGH"
	VolatilityExtreme Volatility = "EXTREME"
)

// ModeFConfig параметры эталонного генератора MODE_F
type ModeFConfig struct {
	MinBars       int     `default:"50"`
	FastPeriod    int     `default:"20"`
	SlowPeriod    int     `default:"50"`
	ATRPeriod     int     `default:"14"`
	LowATRPct     float64 `default:"0.10"`
	NormalATRPct  float64 `default:"0.25"`
	HighATRPct    float64 `default:"0.40"`
	PullbackBand  float64 `default:"0.0005"` // допуск касания EMA20
	FlatSlopeATR  float64 `default:"0.5"`
	FlatLookback  int     `default:"4"`
	BandATR       float64 `default:"2"`
	ImpulseATR    float64 `default:"1.5"`
	DominanceBars int     `default:"3"`
}

// ModeF трехскоростной генератор сигналов: тренд, ротация, импульс волатильности
type ModeF struct {
	cfg ModeFConfig
}

// NewModeF создает генератор с параметрами по умолчанию
func NewModeF() *ModeF {
	var cfg ModeFConfig
	_ = defaults.Set(&cfg)
	return &ModeF{cfg: cfg}
}

// NewModeFWithConfig создает генератор; незаполненные поля берутся по умолчанию
func NewModeFWithConfig(cfg ModeFConfig) (*ModeF, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, err
	}
	return &ModeF{cfg: cfg}, nil
}

func (m *ModeF) Propose(bars []domain.Bar, mctx Context) *domain.Signal {
	if len(bars) < m.cfg.MinBars {
		return nil
	}

	closes := indicators.Closes(bars)
	fast := indicators.EMA(closes, m.cfg.FastPeriod)
	slow := indicators.EMA(closes, m.cfg.SlowPeriod)
	atr := m.meanTrueRange(bars)
	if atr <= 0 {
		return nil
	}

	last := bars[len(bars)-1]
	price := last.Close
	e20, e50 := fast[len(fast)-1], slow[len(slow)-1]
	vol := m.volatility(atr, price)
	buyers := m.buyersDominate(bars)

	sig := func(dir domain.Direction, gear Gear, pattern string, stop, target float64) *domain.Signal {
		return &domain.Signal{
			Instrument: mctx.Instrument,
			Category:   domain.CategoryModeF,
			Direction:  dir,
			Entry:      price,
			Stop:       stop,
			Target:     target,
			Pattern:    string(gear) + ": " + pattern,
			RiskR:      1,
			ProposedAt: mctx.Now,
		}
	}

	if vol == VolatilityLow || vol == VolatilityNormal {
		if price > e20 && e20 > e50 && buyers && last.Low <= e20*(1+m.cfg.PullbackBand) {
			return sig(domain.DirectionBuy, GearTrend, "Trend Pullback", math.Min(last.Low, e20-atr), price+2*atr)
		}
		if price < e20 && e20 < e50 && !buyers && last.High >= e20*(1-m.cfg.PullbackBand) {
			return sig(domain.DirectionSell, GearTrend, "Trend Pullback", math.Max(last.High, e20+atr), price-2*atr)
		}
	}

	if vol == VolatilityNormal || vol == VolatilityHigh {
		ref := fast[len(fast)-1-m.cfg.FlatLookback]
		if math.Abs(e20-ref) < m.cfg.FlatSlopeATR*atr {
			upper, lower := e20+m.cfg.BandATR*atr, e20-m.cfg.BandATR*atr
			if last.Low < lower && price > lower && buyers {
				return sig(domain.DirectionBuy, GearRotation, "Range Rotation Low", last.Low-0.2*atr, e20)
			}
			if last.High > upper && price < upper && !buyers {
				return sig(domain.DirectionSell, GearRotation, "Range Rotation High", last.High+0.2*atr, e20)
			}
		}
	}

	if vol == VolatilityHigh || vol == VolatilityExtreme {
		if last.Body() > m.cfg.ImpulseATR*atr {
			if last.IsBullish() && buyers {
				return sig(domain.DirectionBuy, GearMomentum, "Volatility Impulse", price-atr, price+1.5*atr)
			}
			if last.IsBearish() && !buyers {
				return sig(domain.DirectionSell, GearMomentum, "Volatility Impulse", price+atr, price-1.5*atr)
			}
		}
	}

	return nil
}

func (m *ModeF) volatility(atr, price float64) Volatility {
	pct := atr / price * 100
	switch {
	case pct < m.cfg.LowATRPct:
		return VolatilityLow
	case pct < m.cfg.NormalATRPct:
		return VolatilityNormal
	case pct < m.cfg.HighATRPct:
		return VolatilityHigh
	default:
		return VolatilityExtreme
	}
}

// meanTrueRange простое среднее истинного диапазона последних ATRPeriod баров
func (m *ModeF) meanTrueRange(bars []domain.Bar) float64 {
	tr := indicators.TrueRange(bars)[1:]
	if len(tr) > m.cfg.ATRPeriod {
		tr = tr[len(tr)-m.cfg.ATRPeriod:]
	}
	if len(tr) == 0 {
		return 0
	}
	var sum float64
	for _, v := range tr {
		sum += v
	}
	return sum / float64(len(tr))
}

func (m *ModeF) buyersDominate(bars []domain.Bar) bool {
	recent := bars[len(bars)-m.cfg.DominanceBars:]
	bulls := 0
	for _, b := range recent {
		if b.IsBullish() {
			bulls++
		}
	}
	return bulls > len(recent)-bulls
}

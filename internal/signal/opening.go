package signal

import (
	"fmt"
	"math"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// OpeningImpulse сигнал сильного движения в первые минуты сессии
type OpeningImpulse struct {
	cfg config.OpeningImpulseThresholds
}

// NewOpeningImpulse создает детектор открытия
func NewOpeningImpulse(cfg config.OpeningImpulseThresholds) *OpeningImpulse {
	return &OpeningImpulse{cfg: cfg}
}

func (o *OpeningImpulse) Propose(_ []domain.Bar, mctx Context) *domain.Signal {
	if !config.Enabled(o.cfg.Enabled) || mctx.SpecialDay || mctx.Snapshot == nil || mctx.Snapshot.ATR <= 0 {
		return nil
	}

	now := domain.TimeOfDayOf(mctx.Now)
	if now < o.cfg.Start || now > o.cfg.End {
		return nil
	}
	if mctx.Admissions != nil && mctx.Admissions.Admitted(domain.CategoryOpeningImpulse) >= o.cfg.MaxPerInstrument {
		return nil
	}

	session := mctx.Session
	if len(session) < o.cfg.OpeningBars {
		return nil
	}

	opening := session[:o.cfg.OpeningBars]
	high, low := opening[0].High, opening[0].Low
	for _, b := range opening[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}

	atr := mctx.Snapshot.ATR
	move := (high - low) / atr
	if move < o.cfg.MinMoveATR {
		return nil
	}

	last := session[len(session)-1]
	if r := last.Range(); r > 0 && last.Body()/r < o.cfg.MinBodyPct {
		return nil
	}

	rsi := mctx.Snapshot.RSI
	if rsi <= o.cfg.RSIAbove && rsi >= o.cfg.RSIBelow {
		return nil
	}

	sig := &domain.Signal{
		Instrument: mctx.Instrument,
		Category:   domain.CategoryOpeningImpulse,
		Entry:      last.Close,
		Pattern:    fmt.Sprintf("Opening Impulse (%.2f× ATR)", move),
		RiskR:      o.cfg.RiskR,
		ProposedAt: mctx.Now,
	}
	if last.IsBullish() {
		sig.Direction = domain.DirectionBuy
		sig.Stop = last.Close - o.cfg.StopATR*atr
		sig.Target = last.Close + o.cfg.TargetATR*atr
	} else {
		sig.Direction = domain.DirectionSell
		sig.Stop = last.Close + o.cfg.StopATR*atr
		sig.Target = last.Close - o.cfg.TargetATR*atr
	}
	return sig
}

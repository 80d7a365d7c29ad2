package phase

import (
	"fmt"
	"math"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/indicators"
)

// Phase стадия движения относительно начала импульса
type Phase string

const (
	PhaseEarly     Phase = "EARLY"
	PhaseMid       Phase = "MID"
	PhaseLate      Phase = "LATE"
	PhaseNoImpulse Phase = "NO_IMPULSE"
)

// ExpansionSource источник расстояния от начала импульса
type ExpansionSource interface {
	Active() bool
	ExpansionFromOrigin(price float64) float64
}

// Result решение фазового фильтра
type Result struct {
	Phase     Phase
	Expansion float64
	Verdict   domain.GateVerdict
}

// Classifier фазовый фильтр сигналов
type Classifier struct {
	cfg config.PhaseThresholds
}

// NewClassifier создает фазовый фильтр
func NewClassifier(cfg config.PhaseThresholds) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify переводит расширение в фазу
func (c *Classifier) Classify(expansion float64) Phase {
	switch {
	case expansion < c.cfg.EarlyMaxExpansion:
		return PhaseEarly
	case expansion <= c.cfg.MidMaxExpansion:
		return PhaseMid
	default:
		return PhaseLate
	}
}

// Evaluate проверяет сигнал по фазе движения
func (c *Classifier) Evaluate(signal domain.Signal, bars []domain.Bar, snap *indicators.Snapshot, impulse ExpansionSource) Result {
	if impulse == nil || !impulse.Active() || len(bars) == 0 {
		return Result{
			Phase:   PhaseNoImpulse,
			Verdict: domain.AllowFailOpen(domain.GatePhase, "No impulse detected yet"),
		}
	}

	price := bars[len(bars)-1].Close
	expansion := impulse.ExpansionFromOrigin(price)
	phase := c.Classify(expansion)
	res := Result{Phase: phase, Expansion: expansion, Verdict: domain.Allow()}

	switch phase {
	case PhaseMid:
		if reason, ok := c.midConditions(signal.Direction, bars, snap); !ok {
			res.Verdict = domain.Reject(domain.GatePhase, reason)
		}
	case PhaseLate:
		res.Verdict = domain.Reject(domain.GatePhase,
			fmt.Sprintf("LATE phase (%.1f× ATR from impulse): %s", expansion, c.cfg.LateReason))
	}

	return res
}

func (c *Classifier) midConditions(dir domain.Direction, bars []domain.Bar, snap *indicators.Snapshot) (string, bool) {
	if snap == nil {
		return "MID phase: indicators unavailable", false
	}

	price := bars[len(bars)-1].Close
	recent := tail(bars, c.cfg.PullbackLookback)
	high, low := recent[0].High, recent[0].Low
	for _, b := range recent[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}

	pullback := high - price
	if dir == domain.DirectionSell {
		pullback = price - low
	}
	maxPullback := c.cfg.MaxPullbackATR * snap.ATR
	if pullback > maxPullback {
		return fmt.Sprintf("MID phase: Pullback too deep (%.1f > %.1f)", pullback, maxPullback), false
	}

	switch dir {
	case domain.DirectionBuy:
		if snap.RSI < c.cfg.MinRSI {
			return fmt.Sprintf("MID phase: RSI not confirming (%.1f < %.0f)", snap.RSI, c.cfg.MinRSI), false
		}
	case domain.DirectionSell:
		if ceiling := 100 - c.cfg.MinRSI; snap.RSI > ceiling {
			return fmt.Sprintf("MID phase: RSI not confirming (%.1f > %.0f)", snap.RSI, ceiling), false
		}
	}

	structure := tail(bars, c.cfg.StructureBars)
	for i := 1; i < len(structure); i++ {
		if dir == domain.DirectionBuy && structure[i].Low < structure[i-1].Low {
			return "MID phase: Structure broken (no HH-HL)", false
		}
		if dir == domain.DirectionSell && structure[i].High > structure[i-1].High {
			return "MID phase: Structure broken (no LH-LL)", false
		}
	}

	return "", true
}

func tail(bars []domain.Bar, n int) []domain.Bar {
	if n >= len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}

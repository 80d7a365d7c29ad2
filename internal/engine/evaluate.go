package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kirillm/rijin-bot/internal/ai"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/gates"
	"github.com/kirillm/rijin-bot/internal/phase"
)

// Decision полный итог проверки кандидата
type Decision struct {
	Signal    domain.Signal       `json:"signal"`
	Regime    domain.RegimeLabel  `json:"regime"`
	Phase     phase.Phase         `json:"phase,omitempty"`
	Expansion float64             `json:"expansion,omitempty"`
	Verdict   domain.GateVerdict  `json:"verdict"`
	Evaluated []string            `json:"evaluated"`
	Notes     []string            `json:"notes,omitempty"`
	AI        *ai.QualityVerdict  `json:"ai,omitempty"`
	Admitted  bool                `json:"admitted"`
	Trade     *domain.ActiveTrade `json:"trade,omitempty"`
}

// Evaluate проверяет кандидата по порядку: активная сделка, session stop, фаза,
// цепочка гейтов, пауза убытков, тормоз корреляции, AI фильтр.
// Первый отказ прекращает проверку.
func (e *Engine) Evaluate(ctx context.Context, sig domain.Signal, now time.Time) (*Decision, error) {
	if e.snap == nil || len(e.bars) == 0 {
		return nil, fmt.Errorf("%w: no bars processed for %s", domain.ErrInsufficientData, e.instrument)
	}
	if sig.Instrument == "" {
		sig.Instrument = e.instrument
	}
	if sig.ProposedAt.IsZero() {
		sig.ProposedAt = now
	}

	d := &Decision{Signal: sig, Regime: e.machine.Current()}

	if e.trade != nil {
		return e.reject(ctx, d, domain.Reject(domain.GateActiveTrade,
			fmt.Sprintf("Trade %s already active", e.trade.ID)), now, false), nil
	}

	d.Evaluated = append(d.Evaluated, domain.GateSessionStop)
	if v := e.stop.Check(); !v.Allowed {
		return e.reject(ctx, d, v, now, false), nil
	}

	if reason := validateSignal(sig); reason != "" {
		return e.reject(ctx, d, domain.Reject(domain.GateSignal, reason), now, false), nil
	}

	d.Evaluated = append(d.Evaluated, domain.GatePhase)
	ph := e.phase.Evaluate(sig, e.bars, e.snap, e.tracker)
	d.Phase, d.Expansion = ph.Phase, ph.Expansion
	if !ph.Verdict.Allowed {
		return e.reject(ctx, d, ph.Verdict, now, true), nil
	}
	if ph.Verdict.Reason != "" {
		d.Notes = append(d.Notes, ph.Verdict.Reason)
	}

	chain := e.chain.Evaluate(gates.Input{
		Signal:     sig,
		Bars:       e.bars,
		Session:    e.sessionBars,
		Snapshot:   e.snap,
		Impulse:    e.tracker,
		Regime:     d.Regime,
		Now:        now,
		SpecialDay: e.specialDay,
		Admissions: e.admissions,
	})
	d.Evaluated = append(d.Evaluated, chain.Evaluated...)
	d.Notes = append(d.Notes, chain.Notes...)
	if !chain.Verdict.Allowed {
		return e.reject(ctx, d, chain.Verdict, now, true), nil
	}

	d.Evaluated = append(d.Evaluated, domain.GateLossPause)
	if v := e.checkLoss(ctx, now); !v.Allowed {
		return e.reject(ctx, d, v, now, false), nil
	}

	d.Evaluated = append(d.Evaluated, domain.GateCorrelation)
	v := e.checkCorrelation(ctx, now)
	if !v.Allowed {
		return e.reject(ctx, d, v, now, true), nil
	}
	if v.FailOpen {
		e.logger.Warn("⚠️ %s", v.Reason)
		d.Notes = append(d.Notes, v.Reason)
	}

	if e.filter != nil {
		d.Evaluated = append(d.Evaluated, domain.GateAIFilter)
		verdict, err := e.filter.Evaluate(ctx, e.marketContext(d, now), sig)
		switch {
		case err != nil || verdict == nil:
			if err != nil {
				e.logger.Warn("⚠️ AI filter failed, admitting: %v", err)
			}
			d.Notes = append(d.Notes, "AI filter unavailable (fail-open)")
		case verdict.Restricts():
			d.AI = verdict
			return e.reject(ctx, d, domain.Reject(domain.GateAIFilter,
				fmt.Sprintf("AI RESTRICT (%d%%): %s", verdict.Confidence, strings.Join(verdict.Reasons, "; "))), now, true), nil
		default:
			d.AI = verdict
		}
	}

	e.admit(ctx, d, now)
	return d, nil
}

// reject фиксирует отказ; counted учитывается в счетчике отказов подряд
func (e *Engine) reject(ctx context.Context, d *Decision, v domain.GateVerdict, now time.Time, counted bool) *Decision {
	d.Verdict = v
	e.rejected++
	e.metrics.GateRejected(e.instrument, v.Gate)
	e.logger.Info("🚫 %s %s rejected by %s: %s", d.Signal.Category, d.Signal.Direction, v.Gate, v.Reason)

	ev := e.event(domain.EventSignalRejected, now)
	sig := d.Signal
	ev.Signal = &sig
	ev.Gate = v.Gate
	ev.Reason = v.Reason
	e.emit(ctx, ev)

	if counted {
		if triggered, reason := e.stop.RegisterBlock(now); triggered {
			e.sessionStopped(ctx, reason, now)
		}
	}
	return d
}

// admit открывает бумажную сделку по кандидату
func (e *Engine) admit(ctx context.Context, d *Decision, now time.Time) {
	sig := d.Signal
	trade := &domain.ActiveTrade{
		ID:        uuid.NewString(),
		Signal:    sig,
		EntryTime: now,
		Quantity:  e.quantity(sig),
		Regime:    d.Regime,
	}

	e.trade = trade
	e.tradeBar = e.lastBar
	e.admissions.Record(sig.Category, d.Regime)
	e.stop.RegisterAdmission()
	e.metrics.SignalAdmitted(e.instrument, sig.Category)

	d.Verdict = domain.Allow()
	d.Admitted = true
	d.Trade = trade

	e.logger.Info("✅ %s %s admitted at %.2f (SL %.2f, target %.2f, qty %s)",
		sig.Category, sig.Direction, sig.Entry, sig.Stop, sig.Target, trade.Quantity)

	ev := e.event(domain.EventSignalAdmitted, now)
	ev.Signal = &sig
	ev.Trade = trade
	ev.Message = strings.Join(d.Notes, "; ")
	e.emit(ctx, ev)
}

// quantity размер позиции: капитал × риск × доля R / расстояние до стопа
func (e *Engine) quantity(sig domain.Signal) decimal.Decimal {
	risk := sig.Risk()
	if risk <= 0 {
		return decimal.Zero
	}
	r := sig.RiskR
	if r <= 0 {
		r = 1
	}
	amount := e.capital.Mul(e.risk).Mul(decimal.NewFromFloat(r))
	return amount.Div(decimal.NewFromFloat(risk)).Floor()
}

// validateSignal проверяет согласованность уровней сигнала
func validateSignal(sig domain.Signal) string {
	for _, v := range []float64{sig.Entry, sig.Stop, sig.Target} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return "Invalid signal levels"
		}
	}
	switch sig.Direction {
	case domain.DirectionBuy:
		if !(sig.Stop < sig.Entry && sig.Entry < sig.Target) {
			return "BUY signal requires stop < entry < target"
		}
	case domain.DirectionSell:
		if !(sig.Target < sig.Entry && sig.Entry < sig.Stop) {
			return "SELL signal requires target < entry < stop"
		}
	default:
		return fmt.Sprintf("Unknown direction %q", sig.Direction)
	}
	if sig.Category == "" {
		return "Signal category is required"
	}
	return ""
}

// marketContext контекст для AI фильтра
func (e *Engine) marketContext(d *Decision, now time.Time) ai.MarketContext {
	price := e.bars[len(e.bars)-1].Close
	mc := ai.MarketContext{
		Instrument:    e.instrument,
		Time:          now.In(domain.IST).Format("15:04"),
		Price:         price,
		Regime:        d.Regime.String(),
		Phase:         string(d.Phase),
		Expansion:     math.Round(d.Expansion*100) / 100,
		RSI:           e.snap.RSI,
		ATR:           e.snap.ATR,
		EMA20:         e.snap.EMA,
		VWAP:          e.stats.VWAP,
		SessionHigh:   e.stats.DayHigh,
		SessionLow:    e.stats.DayLow,
		Structure:     ai.DescribeStructure(tail(e.sessionBars, 5)),
		SpecialDay:    e.specialDay,
		SessionTrades: e.admissions.Total(),
	}
	mc.PriceVsEMA = "below"
	if price >= e.snap.EMA {
		mc.PriceVsEMA = "above"
	}
	if e.stats.VWAP > 0 {
		mc.VWAPDistPct = math.Round((price-e.stats.VWAP)/e.stats.VWAP*10000) / 100
	}
	return mc
}

func tail(bars []domain.Bar, n int) []domain.Bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/rijin-bot/internal/breakers"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// checkExit ищет касание цели или стопа в новых барах; цель проверяется первой
func (e *Engine) checkExit(ctx context.Context, fresh []domain.Bar, now time.Time) *domain.ClosedTrade {
	t := e.trade
	sig := t.Signal

	for _, b := range fresh {
		if !b.Time.After(e.tradeBar) {
			continue
		}

		var exit domain.ExitType
		var price float64
		switch sig.Direction {
		case domain.DirectionBuy:
			if b.High >= sig.Target {
				exit, price = domain.ExitTarget, sig.Target
			} else if b.Low <= sig.Stop {
				exit, price = domain.ExitStopLoss, sig.Stop
			}
		case domain.DirectionSell:
			if b.Low <= sig.Target {
				exit, price = domain.ExitTarget, sig.Target
			} else if b.High >= sig.Stop {
				exit, price = domain.ExitStopLoss, sig.Stop
			}
		}
		if exit == "" {
			continue
		}

		closed := e.closeTrade(exit, price, b.Time)
		e.afterClose(ctx, closed, now)
		return &closed
	}
	return nil
}

func (e *Engine) closeTrade(exit domain.ExitType, price float64, at time.Time) domain.ClosedTrade {
	t := *e.trade
	sig := t.Signal

	points := price - sig.Entry
	if sig.Direction == domain.DirectionSell {
		points = sig.Entry - price
	}
	var pnlR float64
	if risk := sig.Risk(); risk > 0 {
		pnlR = points / risk
	}

	e.trade = nil
	e.tradeBar = time.Time{}
	e.dailyR += pnlR
	e.closed++

	return domain.ClosedTrade{
		Trade:     t,
		Exit:      exit,
		ExitPrice: price,
		ExitTime:  at,
		PnLR:      pnlR,
		PnL:       t.Quantity.Mul(decimal.NewFromFloat(points)),
	}
}

// afterClose обновляет breakers по закрытой сделке
func (e *Engine) afterClose(ctx context.Context, c domain.ClosedTrade, now time.Time) {
	e.metrics.TradeClosed(e.instrument, string(c.Exit))
	icon := "🎯"
	if c.IsLoss() {
		icon = "🛑"
	}
	e.logger.Info("%s Trade %s closed by %s at %.2f (%.2fR)", icon, c.Trade.ID, c.Exit, c.ExitPrice, c.PnLR)

	ev := e.event(domain.EventTradeClosed, now)
	ev.Closed = &c
	e.emit(ctx, ev)

	if e.loss.RecordClose(c, now) {
		st := e.loss.Status()
		e.metrics.BreakerTripped(e.instrument, domain.GateLossPause)
		e.logger.Warn("⏸️ %d consecutive losses, paused until %s", st.ConsecutiveLosses, st.PausedUntil.In(domain.IST).Format("15:04"))

		ev := e.event(domain.EventBreakerTriggered, now)
		ev.Gate = domain.GateLossPause
		ev.Reason = fmt.Sprintf("%d consecutive losses, paused until %s IST",
			st.ConsecutiveLosses, st.PausedUntil.In(domain.IST).Format("15:04"))
		e.emit(ctx, ev)
	}

	if !c.IsLoss() {
		return
	}

	peers, reason, err := e.brake.RegisterStopLoss(ctx, e.instrument, breakers.LossRecord{
		At:        c.ExitTime,
		Direction: c.Trade.Signal.Direction,
		Regime:    e.machine.Current(),
	})
	if err != nil {
		e.logger.Warn("⚠️ Correlation store unavailable: %v", err)
	} else if len(peers) > 0 {
		e.metrics.BreakerTripped(e.instrument, domain.GateCorrelation)
		e.logger.Warn("🔗 Correlation brake: %s blocked (%s)", strings.Join(peers, ", "), reason)

		ev := e.event(domain.EventBreakerTriggered, now)
		ev.Gate = domain.GateCorrelation
		ev.Reason = reason
		ev.Message = "Blocked: " + strings.Join(peers, ", ")
		e.emit(ctx, ev)
	}

	if triggered, reason := e.stop.RegisterStopLoss(c.ExitTime); triggered {
		e.sessionStopped(ctx, reason, now)
	}
}

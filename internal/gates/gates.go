package gates

import (
	"fmt"
	"math"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/policy"
	"github.com/kirillm/rijin-bot/internal/regime"
)

// ExhaustionGate запрещает вход, когда цена слишком далеко ушла от начала импульса
type ExhaustionGate struct {
	cfg config.GateThresholds
}

func NewExhaustionGate(cfg config.GateThresholds) *ExhaustionGate {
	return &ExhaustionGate{cfg: cfg}
}

func (g *ExhaustionGate) Name() string { return domain.GateExhaustion }

func (g *ExhaustionGate) Check(in Input) domain.GateVerdict {
	price := in.Price()

	if in.Impulse != nil && in.Impulse.Active() {
		expansion := in.Impulse.ExpansionFromOrigin(price)
		if expansion > g.cfg.ExhaustionATR {
			return domain.Reject(g.Name(), fmt.Sprintf(
				"Move exhausted (Expansion %.1f× ATR from impulse, threshold %.1f×)", expansion, g.cfg.ExhaustionATR))
		}
		return domain.Allow()
	}

	// импульса еще нет: расстояние от экстремума сессии
	if in.Snapshot == nil || in.Snapshot.ATR <= 0 || len(in.Session) == 0 {
		return domain.AllowFailOpen(g.Name(), "Exhaustion check skipped (no ATR or session bars)")
	}

	high, low := in.Session[0].High, in.Session[0].Low
	for _, b := range in.Session[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	threshold := math.Min(g.cfg.ExhaustionATR*in.Snapshot.ATR, g.cfg.ExhaustionDayRangePct*(high-low))

	switch in.Signal.Direction {
	case domain.DirectionBuy:
		if dist := price - low; dist > threshold {
			return domain.Reject(g.Name(), fmt.Sprintf("Move exhausted (Price %.1f from low, threshold %.1f)", dist, threshold))
		}
	case domain.DirectionSell:
		if dist := high - price; dist > threshold {
			return domain.Reject(g.Name(), fmt.Sprintf("Move exhausted (Price %.1f from high, threshold %.1f)", dist, threshold))
		}
	}
	return domain.Allow()
}

// TimeRegimeGate запрещает вход после отсечки в ухудшенные дни
type TimeRegimeGate struct {
	cfg      config.GateThresholds
	degraded []domain.RegimeLabel
}

func NewTimeRegimeGate(cfg config.GateThresholds) *TimeRegimeGate {
	return &TimeRegimeGate{cfg: cfg, degraded: config.Labels(cfg.DegradedLabels)}
}

func (g *TimeRegimeGate) Name() string { return domain.GateTimeRegime }

func (g *TimeRegimeGate) Check(in Input) domain.GateVerdict {
	if domain.TimeOfDayOf(in.Now) <= g.cfg.LateCutoff {
		return domain.Allow()
	}
	for _, label := range g.degraded {
		if label == in.Regime {
			return domain.Reject(g.Name(), fmt.Sprintf("Post %s + Day Type = %s", g.cfg.LateCutoff, in.Regime))
		}
	}
	return domain.Allow()
}

// CompressionGate запрещает вход, когда RSI зажат в узком коридоре, а бары перекрываются
type CompressionGate struct {
	cfg config.GateThresholds
}

func NewCompressionGate(cfg config.GateThresholds) *CompressionGate {
	return &CompressionGate{cfg: cfg}
}

func (g *CompressionGate) Name() string { return domain.GateCompression }

func (g *CompressionGate) Check(in Input) domain.GateVerdict {
	if len(in.Bars) < g.cfg.CompressionMinBars || in.Snapshot == nil ||
		len(in.Snapshot.RSISeries) < g.cfg.CompressionBars {
		return domain.AllowFailOpen(g.Name(), "Compression check skipped (not enough bars)")
	}

	for _, v := range in.Snapshot.RecentRSI(g.cfg.CompressionBars) {
		if v < g.cfg.CompressionRSIMin || v > g.cfg.CompressionRSIMax {
			return domain.Allow()
		}
	}

	recent := in.Bars[len(in.Bars)-g.cfg.CompressionBars:]
	if regime.InsideBars(recent) >= g.cfg.CompressionMinOverlaps {
		return domain.Reject(g.Name(), "RSI compression + candle overlap (No momentum)")
	}
	return domain.Allow()
}

// PermissionGate сверяет категорию сигнала с матрицей разрешений
type PermissionGate struct {
	matrix *policy.Matrix
}

func NewPermissionGate(matrix *policy.Matrix) *PermissionGate {
	return &PermissionGate{matrix: matrix}
}

func (g *PermissionGate) Name() string { return domain.GatePermission }

func (g *PermissionGate) Check(in Input) domain.GateVerdict {
	return g.matrix.Check(policy.Request{
		Category:   in.Signal.Category,
		Regime:     in.Regime,
		Now:        domain.TimeOfDayOf(in.Now),
		SpecialDay: in.SpecialDay,
		Admissions: in.Admissions,
	})
}

package regime

import (
	"math"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/indicators"
)

// Input данные для классификации дня
type Input struct {
	Bars       []domain.Bar // окно для индикаторов, может включать предыдущие дни
	Session    []domain.Bar // бары текущей сессии
	Snapshot   *indicators.Snapshot
	Stats      *SessionStats
	SpecialDay bool
	Now        domain.TimeOfDay
}

// Detector чистый предикат одного типа дня
type Detector func(in Input) (matched bool, label domain.RegimeLabel, reason string)

// detectors упорядочены от самого опасного к самому мягкому; порядок разрешает пересечения
func detectors(cfg config.RegimeThresholds) []Detector {
	return []Detector{
		expiryDistortion(cfg),
		liquiditySweepTrap(cfg.Sweep),
		rangeChoppy(cfg.Choppy),
		rotational(cfg.Rotational),
		fastFlip(cfg.FastFlip),
		cleanTrend(cfg.CleanTrend),
		normalTrend(cfg.NormalTrend),
		earlyImpulseFade(cfg.EarlyFade),
	}
}

func expiryDistortion(cfg config.RegimeThresholds) Detector {
	return func(in Input) (bool, domain.RegimeLabel, string) {
		matched := in.SpecialDay && in.Now > cfg.ExpiryAfter
		return matched, domain.RegimeExpiryDistortion, "Expiry day post-noon"
	}
}

func liquiditySweepTrap(cfg config.SweepThresholds) Detector {
	return func(in Input) (bool, domain.RegimeLabel, string) {
		const label, reason = domain.RegimeLiquiditySweepTrap, "Stop-hunt pattern detected (expansion + reversal)"
		n := len(in.Bars)
		if n < cfg.MinBars {
			return false, label, reason
		}

		atr := in.Snapshot.ATR
		expansion, reversal := in.Bars[n-2], in.Bars[n-1]

		wide := expansion.Range() > cfg.ExpansionATR*atr
		reversed := math.Abs(reversal.Close-expansion.Close) > cfg.ReversalATR*atr
		flipped := expansion.IsBullish() != reversal.IsBullish()

		return wide && reversed && flipped, label, reason
	}
}

func rangeChoppy(cfg config.ChoppyThresholds) Detector {
	return func(in Input) (bool, domain.RegimeLabel, string) {
		const label, reason = domain.RegimeRangeChoppy, "Choppy price action"
		if math.Abs(in.Snapshot.Slope) > cfg.MaxAbsSlope {
			return false, label, reason
		}

		if crossings(in.Snapshot.RecentRSI(cfg.RSIWindow), 50) >= cfg.MinRSICrosses {
			return true, label, reason
		}

		ratio := in.Stats.ATRRatio(in.Snapshot.ATR)
		return ratio > 0 && ratio < cfg.ContractionRatio, label, reason
	}
}

func rotational(cfg config.RotationalThresholds) Detector {
	return func(in Input) (bool, domain.RegimeLabel, string) {
		const label, reason = domain.RegimeRotational, "ATR expanding but structure unstable"
		if len(in.Bars) < cfg.MinBars || in.Stats.FirstATR <= 0 {
			return false, label, reason
		}
		if in.Snapshot.ATR <= cfg.ATRExpansion*in.Stats.FirstATR {
			return false, label, reason
		}

		closes := indicators.Closes(tail(in.Bars, cfg.CrossWindow))
		if sideChanges(closes, in.Snapshot.EMA) < cfg.MinEMACrosses {
			return false, label, reason
		}
		if in.Stats.VWAP > 0 && sideChanges(closes, in.Stats.VWAP) < cfg.MinVWAPCrosses {
			return false, label, reason
		}

		return failedBreakouts(tail(in.Bars, cfg.BreakoutWindow)) >= cfg.MinFailedBreakouts, label, reason
	}
}

func fastFlip(cfg config.FastFlipThresholds) Detector {
	return func(in Input) (bool, domain.RegimeLabel, string) {
		const label, reason = domain.RegimeFastFlip, "Morning trend reversed violently"
		if len(in.Session) < cfg.MorningBars+cfg.RecentBars {
			return false, label, reason
		}

		atr := in.Snapshot.ATR
		morning := in.Session[:cfg.MorningBars]
		if span(morning) < cfg.MorningMoveATR*atr {
			return false, label, reason
		}
		if span(tail(in.Session, cfg.RecentBars)) < cfg.RecentRangeATR*atr {
			return false, label, reason
		}

		last := in.Session[len(in.Session)-1]
		return morning[cfg.MorningBarIdx].IsBullish() != last.IsBullish(), label, reason
	}
}

func cleanTrend(cfg config.CleanTrendThresholds) Detector {
	return func(in Input) (bool, domain.RegimeLabel, string) {
		const label, reason = domain.RegimeCleanTrend, "Clean expansion & pullbacks"
		snap := in.Snapshot

		if in.Stats.FirstATR > 0 && in.Stats.ATRRatio(snap.ATR) < cfg.ATRExpansion {
			return false, label, reason
		}
		if !(snap.RSI > cfg.RSIBullAbove || snap.RSI < cfg.RSIBearBelow) {
			return false, label, reason
		}
		if insideBars(tail(in.Bars, cfg.OverlapWindow), true) > cfg.MaxOverlaps {
			return false, label, reason
		}
		if len(in.Bars) >= cfg.TouchWindow && snap.EMA > 0 {
			touches := 0
			for _, b := range tail(in.Bars, cfg.TouchWindow) {
				if math.Abs(b.Close-snap.EMA)/snap.EMA < cfg.TouchPct {
					touches++
				}
			}
			if touches < cfg.MinTouches {
				return false, label, reason
			}
		}
		return true, label, reason
	}
}

func normalTrend(cfg config.NormalTrendThresholds) Detector {
	return func(in Input) (bool, domain.RegimeLabel, string) {
		const label, reason = domain.RegimeNormalTrend, "Directional with slower expansion"
		snap := in.Snapshot

		if math.Abs(snap.Slope) < cfg.MinAbsSlope {
			return false, label, reason
		}
		if snap.RSI < cfg.RSILow || snap.RSI > cfg.RSIHigh {
			return false, label, reason
		}
		if in.Stats.FirstATR > 0 && in.Stats.ATRRatio(snap.ATR) < cfg.MinATRRatio {
			return false, label, reason
		}
		return true, label, reason
	}
}

func earlyImpulseFade(cfg config.EarlyFadeThresholds) Detector {
	return func(in Input) (bool, domain.RegimeLabel, string) {
		const label, reason = domain.RegimeEarlyImpulseFade, "Early move, then compression"
		if len(in.Session) == 0 {
			return false, label, reason
		}
		if domain.TimeOfDayOf(in.Session[len(in.Session)-1].Time) < cfg.After {
			return false, label, reason
		}

		opening := in.Session
		if len(opening) > cfg.OpeningBars {
			opening = opening[:cfg.OpeningBars]
		}
		if in.Stats.FirstATR > 0 && span(opening) < cfg.OpeningRangeATR*in.Stats.FirstATR {
			return false, label, reason
		}

		snap := in.Snapshot
		if snap.RSI < cfg.RSILow || snap.RSI > cfg.RSIHigh {
			return false, label, reason
		}

		return span(tail(in.Bars, cfg.RecentBars)) <= cfg.MaxRecentRangeATR*snap.ATR, label, reason
	}
}

// crossings число строгих пересечений уровня
func crossings(values []float64, level float64) int {
	count := 0
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if (prev < level && cur > level) || (prev > level && cur < level) {
			count++
		}
	}
	return count
}

// sideChanges число смен стороны относительно уровня
func sideChanges(values []float64, level float64) int {
	count := 0
	for i := 1; i < len(values); i++ {
		if (values[i] > level) != (values[i-1] > level) {
			count++
		}
	}
	return count
}

// failedBreakouts бар обновил максимум окна, следующий закрылся ниже его закрытия
func failedBreakouts(bars []domain.Bar) int {
	count := 0
	for i := 2; i < len(bars)-1; i++ {
		prevHigh := bars[0].High
		for _, b := range bars[1:i] {
			prevHigh = math.Max(prevHigh, b.High)
		}
		if bars[i].High > prevHigh && bars[i+1].Close < bars[i].Close {
			count++
		}
	}
	return count
}

// insideBars число пар, где один бар лежит внутри другого
func insideBars(bars []domain.Bar, strict bool) int {
	count := 0
	for i := 1; i < len(bars); i++ {
		cur, prev := bars[i], bars[i-1]
		if strict {
			if (cur.High < prev.High && cur.Low > prev.Low) || (prev.High < cur.High && prev.Low > cur.Low) {
				count++
			}
			continue
		}
		if (cur.High <= prev.High && cur.Low >= prev.Low) || (prev.High <= cur.High && prev.Low >= cur.Low) {
			count++
		}
	}
	return count
}

// InsideBars экспортируется для фильтра сжатия
func InsideBars(bars []domain.Bar) int {
	return insideBars(bars, false)
}

func span(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	high, low := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high - low
}

func tail(bars []domain.Bar, n int) []domain.Bar {
	if n >= len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}

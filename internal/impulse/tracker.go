package impulse

import (
	"math"
	"time"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/indicators"
)

// State точка начала направленного движения
type State struct {
	Origin     float64          `json:"origin"`
	ATR        float64          `json:"atr"` // волатильность в момент импульса
	Direction  domain.Direction `json:"direction"`
	DetectedAt time.Time        `json:"detected_at"`
	PairRange  float64          `json:"pair_range"`
}

// Tracker хранит последний импульс сессии
type Tracker struct {
	cfg   config.ImpulseThresholds
	state *State
}

// NewTracker создает трекер импульса
func NewTracker(cfg config.ImpulseThresholds) *Tracker {
	return &Tracker{cfg: cfg}
}

// Detect проверяет два последних бара на импульс и при совпадении обновляет состояние.
// Импульс того же направления заменяет текущий только если пара баров шире.
func (t *Tracker) Detect(bars []domain.Bar, snap *indicators.Snapshot, now time.Time) (bool, domain.Direction, float64) {
	if snap == nil || snap.ATR <= 0 || len(bars) < t.cfg.MinBars || len(bars) < t.cfg.SlopeLookback+1 {
		return false, domain.DirectionNone, 0
	}

	n := len(bars)
	first, second := bars[n-2], bars[n-1]
	if !first.Valid() || !second.Valid() {
		return false, domain.DirectionNone, 0
	}

	lookback := t.cfg.SwingLookback
	if lookback > n {
		lookback = n
	}
	window := bars[n-lookback : n-2]
	if len(window) == 0 {
		return false, domain.DirectionNone, 0
	}
	swingHigh, swingLow := window[0].High, window[0].Low
	for _, b := range window[1:] {
		swingHigh = math.Max(swingHigh, b.High)
		swingLow = math.Min(swingLow, b.Low)
	}

	base := bars[n-1-t.cfg.SlopeLookback].Close
	slopePct := (second.Close - base) / base * 100

	minRange := t.cfg.MinRangeATR * snap.ATR
	wide := first.Range() > minRange && second.Range() > minRange

	var candidate *State
	switch {
	case wide && first.IsBullish() && second.IsBullish() &&
		slopePct > t.cfg.MinSlopePct && snap.Slope > 0 && second.Close > swingHigh:
		candidate = &State{Origin: first.Low, Direction: domain.DirectionBuy}
	case wide && first.IsBearish() && second.IsBearish() &&
		slopePct < -t.cfg.MinSlopePct && snap.Slope < 0 && second.Close < swingLow:
		candidate = &State{Origin: first.High, Direction: domain.DirectionSell}
	default:
		return false, domain.DirectionNone, 0
	}

	candidate.ATR = snap.ATR
	candidate.DetectedAt = now
	candidate.PairRange = math.Max(second.High, first.High) - math.Min(second.Low, first.Low)

	if t.state != nil && t.state.Direction == candidate.Direction && candidate.PairRange <= t.state.PairRange {
		return false, domain.DirectionNone, 0
	}

	t.state = candidate
	return true, candidate.Direction, candidate.Origin
}

// ExpansionFromOrigin расстояние от цены до начала импульса в единицах ATR импульса
func (t *Tracker) ExpansionFromOrigin(price float64) float64 {
	if t.state == nil || t.state.ATR <= 0 {
		return 0
	}
	return math.Abs(price-t.state.Origin) / t.state.ATR
}

// Active импульс обнаружен в текущей сессии
func (t *Tracker) Active() bool {
	return t.state != nil
}

// State копия текущего состояния
func (t *Tracker) State() (State, bool) {
	if t.state == nil {
		return State{}, false
	}
	return *t.state, true
}

// Restore устанавливает состояние напрямую (восстановление и тесты)
func (t *Tracker) Restore(s State) {
	t.state = &s
}

// Reset очищает импульс на границе сессии
func (t *Tracker) Reset() {
	t.state = nil
}

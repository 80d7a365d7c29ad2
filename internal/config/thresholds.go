package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kirillm/rijin-bot/internal/domain"
)

// Thresholds эмпирически подобранные пороги ядра.
// Все значения переопределяются через configs/thresholds.yaml.
type Thresholds struct {
	Indicators     IndicatorThresholds      `yaml:"indicators"`
	Impulse        ImpulseThresholds        `yaml:"impulse"`
	Phase          PhaseThresholds          `yaml:"phase"`
	Regime         RegimeThresholds         `yaml:"regime"`
	StateMachine   StateMachineThresholds   `yaml:"state_machine"`
	Schedule       ScheduleThresholds       `yaml:"schedule"`
	Gates          GateThresholds           `yaml:"gates"`
	LossBreaker    LossBreakerThresholds    `yaml:"loss_breaker"`
	Correlation    CorrelationThresholds    `yaml:"correlation"`
	SessionStop    SessionStopThresholds    `yaml:"session_stop"`
	OpeningImpulse OpeningImpulseThresholds `yaml:"opening_impulse"`
	Session        SessionThresholds        `yaml:"session"`
}

type IndicatorThresholds struct {
	EMAPeriod     int `yaml:"ema_period" default:"20" validate:"gt=1"`
	RSIPeriod     int `yaml:"rsi_period" default:"14" validate:"gt=1"`
	ATRPeriod     int `yaml:"atr_period" default:"14" validate:"gt=1"`
	SlopeLookback int `yaml:"slope_lookback" default:"3" validate:"gt=0"`
}

type ImpulseThresholds struct {
	MinBars       int     `yaml:"min_bars" default:"10" validate:"gte=4"`
	MinRangeATR   float64 `yaml:"min_range_atr" default:"0.6" validate:"gt=0"`
	MinSlopePct   float64 `yaml:"min_slope_pct" default:"0.03" validate:"gte=0"`
	SlopeLookback int     `yaml:"slope_lookback" default:"3" validate:"gt=0"`
	SwingLookback int     `yaml:"swing_lookback" default:"10" validate:"gte=3"`
}

type PhaseThresholds struct {
	EarlyMaxExpansion float64 `yaml:"early_max_expansion" default:"1.2" validate:"gt=0"`
	MidMaxExpansion   float64 `yaml:"mid_max_expansion" default:"2.0" validate:"gtfield=EarlyMaxExpansion"`
	MaxPullbackATR    float64 `yaml:"max_pullback_atr" default:"0.5" validate:"gt=0"`
	PullbackLookback  int     `yaml:"pullback_lookback" default:"5" validate:"gt=0"`
	MinRSI            float64 `yaml:"min_rsi" default:"50" validate:"gte=0,lte=100"`
	StructureBars     int     `yaml:"structure_bars" default:"3" validate:"gte=2"`
	LateReason        string  `yaml:"late_reason" default:"Late-cycle exhaustion - move > 2× ATR from impulse"`
}

type RegimeThresholds struct {
	MinBars      int                   `yaml:"min_bars" default:"30" validate:"gt=0"`
	ExpiryAfter  domain.TimeOfDay      `yaml:"expiry_after"`
	Sweep        SweepThresholds       `yaml:"liquidity_sweep_trap"`
	Choppy       ChoppyThresholds      `yaml:"range_choppy"`
	Rotational   RotationalThresholds  `yaml:"rotational"`
	FastFlip     FastFlipThresholds    `yaml:"fast_flip"`
	CleanTrend   CleanTrendThresholds  `yaml:"clean_trend"`
	NormalTrend  NormalTrendThresholds `yaml:"normal_trend"`
	EarlyFade    EarlyFadeThresholds   `yaml:"early_impulse_fade"`
	DefaultLabel string                `yaml:"default_label" default:"CLEAN_TREND"`
}

type SweepThresholds struct {
	MinBars      int     `yaml:"min_bars" default:"4" validate:"gte=3"`
	ExpansionATR float64 `yaml:"expansion_atr" default:"1.2" validate:"gt=0"`
	ReversalATR  float64 `yaml:"reversal_atr" default:"0.8" validate:"gt=0"`
}

type ChoppyThresholds struct {
	MaxAbsSlope      float64 `yaml:"max_abs_slope" default:"1.0" validate:"gte=0"`
	RSIWindow        int     `yaml:"rsi_window" default:"10" validate:"gte=2"`
	MinRSICrosses    int     `yaml:"min_rsi_crosses" default:"3" validate:"gt=0"`
	ContractionRatio float64 `yaml:"contraction_ratio" default:"0.7" validate:"gt=0"`
}

type RotationalThresholds struct {
	MinBars            int     `yaml:"min_bars" default:"12" validate:"gt=0"`
	ATRExpansion       float64 `yaml:"atr_expansion" default:"1.05" validate:"gt=0"`
	CrossWindow        int     `yaml:"cross_window" default:"12" validate:"gte=2"`
	MinEMACrosses      int     `yaml:"min_ema_crosses" default:"3" validate:"gt=0"`
	MinVWAPCrosses     int     `yaml:"min_vwap_crosses" default:"3" validate:"gt=0"`
	BreakoutWindow     int     `yaml:"breakout_window" default:"8" validate:"gte=4"`
	MinFailedBreakouts int     `yaml:"min_failed_breakouts" default:"1" validate:"gt=0"`
}

type FastFlipThresholds struct {
	MorningBars    int     `yaml:"morning_bars" default:"12" validate:"gt=0"`
	RecentBars     int     `yaml:"recent_bars" default:"6" validate:"gt=0"`
	MorningMoveATR float64 `yaml:"morning_move_atr" default:"1.5" validate:"gt=0"`
	RecentRangeATR float64 `yaml:"recent_range_atr" default:"1.2" validate:"gt=0"`
	MorningBarIdx  int     `yaml:"morning_bar_index" default:"3" validate:"gte=0,ltfield=MorningBars"`
}

type CleanTrendThresholds struct {
	ATRExpansion  float64 `yaml:"atr_expansion" default:"1.05" validate:"gt=0"`
	RSIBullAbove  float64 `yaml:"rsi_bull_above" default:"55"`
	RSIBearBelow  float64 `yaml:"rsi_bear_below" default:"45"`
	OverlapWindow int     `yaml:"overlap_window" default:"10" validate:"gte=2"`
	MaxOverlaps   int     `yaml:"max_overlaps" default:"3" validate:"gte=0"`
	TouchWindow   int     `yaml:"touch_window" default:"20" validate:"gt=0"`
	TouchPct      float64 `yaml:"touch_pct" default:"0.002" validate:"gt=0"`
	MinTouches    int     `yaml:"min_touches" default:"2" validate:"gt=0"`
}

type NormalTrendThresholds struct {
	MinAbsSlope float64 `yaml:"min_abs_slope" default:"0.5" validate:"gte=0"`
	RSILow      float64 `yaml:"rsi_low" default:"40"`
	RSIHigh     float64 `yaml:"rsi_high" default:"60" validate:"gtfield=RSILow"`
	MinATRRatio float64 `yaml:"min_atr_ratio" default:"0.9" validate:"gt=0"`
}

type EarlyFadeThresholds struct {
	After             domain.TimeOfDay `yaml:"after"`
	OpeningBars       int              `yaml:"opening_bars" default:"10" validate:"gt=0"`
	OpeningRangeATR   float64          `yaml:"opening_range_atr" default:"1.5" validate:"gt=0"`
	RSILow            float64          `yaml:"rsi_low" default:"48"`
	RSIHigh           float64          `yaml:"rsi_high" default:"62" validate:"gtfield=RSILow"`
	RecentBars        int              `yaml:"recent_bars" default:"20" validate:"gt=0"`
	MaxRecentRangeATR float64          `yaml:"max_recent_range_atr" default:"1.2" validate:"gt=0"`
}

type StateMachineThresholds struct {
	ConfirmMin      time.Duration `yaml:"confirm_min" default:"50m" validate:"gt=0"`
	ConfirmMax      time.Duration `yaml:"confirm_max" default:"70m" validate:"gtefield=ConfirmMin"`
	ImmediateLabels []string      `yaml:"immediate_labels"`
}

type ScheduleThresholds struct {
	First     domain.TimeOfDay `yaml:"first"`
	Last      domain.TimeOfDay `yaml:"last"`
	Every     time.Duration    `yaml:"every" default:"30m" validate:"gt=0"`
	Tolerance time.Duration    `yaml:"tolerance" default:"5m" validate:"gte=0"`
	MinGap    time.Duration    `yaml:"min_gap" default:"25m" validate:"gte=0"`
}

type GateThresholds struct {
	ExhaustionATR          float64          `yaml:"exhaustion_atr" default:"1.5" validate:"gt=0"`
	ExhaustionDayRangePct  float64          `yaml:"exhaustion_day_range_pct" default:"0.70" validate:"gt=0,lte=1"`
	LateCutoff             domain.TimeOfDay `yaml:"late_cutoff"`
	DegradedLabels         []string         `yaml:"degraded_labels"`
	CompressionMinBars     int              `yaml:"compression_min_bars" default:"15" validate:"gt=0"`
	CompressionRSIMin      float64          `yaml:"compression_rsi_min" default:"48"`
	CompressionRSIMax      float64          `yaml:"compression_rsi_max" default:"62" validate:"gtfield=CompressionRSIMin"`
	CompressionBars        int              `yaml:"compression_bars" default:"10" validate:"gte=2"`
	CompressionMinOverlaps int              `yaml:"compression_min_overlaps" default:"5" validate:"gt=0"`
}

type LossBreakerThresholds struct {
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses" default:"2" validate:"gt=0"`
	PauseDuration        time.Duration `yaml:"pause_duration" default:"60m" validate:"gt=0"`
	ResetOnWin           *bool         `yaml:"reset_on_win" default:"true"`
}

type CorrelationThresholds struct {
	SLCountTrigger int           `yaml:"sl_count_trigger" default:"2" validate:"gte=2"`
	Window         time.Duration `yaml:"window" default:"60m" validate:"gt=0"`
	BlockDuration  time.Duration `yaml:"block_duration" default:"60m" validate:"gt=0"`
	HistorySize    int           `yaml:"history_size" default:"10" validate:"gtefield=SLCountTrigger"`
}

type SessionStopThresholds struct {
	StopOnTerminal    *bool            `yaml:"stop_on_terminal" default:"true"`
	ConsecutiveBlocks int              `yaml:"consecutive_blocks" default:"3" validate:"gt=0"`
	SLCountAfter      int              `yaml:"sl_count_after" default:"2" validate:"gt=0"`
	SLAfter           domain.TimeOfDay `yaml:"sl_after"`
}

type OpeningImpulseThresholds struct {
	Enabled          *bool            `yaml:"enabled" default:"true"`
	Start            domain.TimeOfDay `yaml:"start"`
	End              domain.TimeOfDay `yaml:"end"`
	OpeningBars      int              `yaml:"opening_bars" default:"5" validate:"gt=0"`
	MinMoveATR       float64          `yaml:"min_move_atr" default:"0.4" validate:"gt=0"`
	MinBodyPct       float64          `yaml:"min_body_pct" default:"0.65" validate:"gt=0,lte=1"`
	RSIAbove         float64          `yaml:"rsi_above" default:"60"`
	RSIBelow         float64          `yaml:"rsi_below" default:"40"`
	MaxPerInstrument int              `yaml:"max_per_instrument" default:"1" validate:"gt=0"`
	RiskR            float64          `yaml:"risk_r" default:"0.5" validate:"gt=0"`
	StopATR          float64          `yaml:"stop_atr" default:"0.5" validate:"gt=0"`
	TargetATR        float64          `yaml:"target_atr" default:"1.0" validate:"gt=0"`
}

type SessionThresholds struct {
	MarketOpen             domain.TimeOfDay  `yaml:"market_open"`
	MarketClose            domain.TimeOfDay  `yaml:"market_close"`
	TradingCutoff          domain.TimeOfDay  `yaml:"trading_cutoff"`
	SpecialDayNoEntryAfter domain.TimeOfDay  `yaml:"special_day_no_entry_after"`
	ExpiryWeekdays         map[string]string `yaml:"expiry_weekdays"`
}

// SetDefaults вызывается creasty/defaults после заполнения тегов
func (t *Thresholds) SetDefaults() {
	setTime(&t.Regime.ExpiryAfter, 12, 0)
	setTime(&t.Regime.EarlyFade.After, 11, 0)
	setTime(&t.Schedule.First, 10, 0)
	setTime(&t.Schedule.Last, 14, 30)
	setTime(&t.Gates.LateCutoff, 12, 30)
	setTime(&t.SessionStop.SLAfter, 11, 30)
	setTime(&t.OpeningImpulse.Start, 9, 20)
	setTime(&t.OpeningImpulse.End, 10, 0)
	setTime(&t.Session.MarketOpen, 9, 15)
	setTime(&t.Session.MarketClose, 15, 30)
	setTime(&t.Session.TradingCutoff, 14, 30)
	setTime(&t.Session.SpecialDayNoEntryAfter, 14, 45)

	if t.Gates.DegradedLabels == nil {
		t.Gates.DegradedLabels = []string{
			domain.RegimeEarlyImpulseFade.String(),
			domain.RegimeRangeChoppy.String(),
			domain.RegimeExpiryDistortion.String(),
			domain.RegimeRotational.String(),
			domain.RegimeFastFlip.String(),
		}
	}
	if t.Session.ExpiryWeekdays == nil {
		t.Session.ExpiryWeekdays = map[string]string{
			domain.InstrumentNifty:  "Tuesday",
			domain.InstrumentSensex: "Thursday",
		}
	}
}

func setTime(field *domain.TimeOfDay, hour, minute int) {
	if *field == 0 {
		*field = domain.NewTimeOfDay(hour, minute)
	}
}

// DefaultThresholds пороги по умолчанию
func DefaultThresholds() *Thresholds {
	t := &Thresholds{}
	if err := defaults.Set(t); err != nil {
		// теги статичны, ошибка означает опечатку в коде
		panic(fmt.Sprintf("invalid threshold defaults: %v", err))
	}
	return t
}

// LoadThresholds загружает пороги из YAML; отсутствующий файл означает значения по умолчанию
func LoadThresholds(path string) (*Thresholds, error) {
	t := &Thresholds{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, t); err != nil {
				return nil, fmt.Errorf("failed to parse thresholds %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read thresholds %s: %w", path, err)
		}
	}

	if err := defaults.Set(t); err != nil {
		return nil, fmt.Errorf("failed to apply threshold defaults: %w", err)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate проверяет пороги
func (t *Thresholds) Validate() error {
	if err := validator.New().Struct(t); err != nil {
		return fmt.Errorf("%w: thresholds: %v", domain.ErrInvalidInput, err)
	}

	if _, err := domain.ParseRegimeLabel(t.Regime.DefaultLabel); err != nil {
		return fmt.Errorf("regime.default_label: %w", err)
	}
	for _, name := range t.Gates.DegradedLabels {
		if _, err := domain.ParseRegimeLabel(name); err != nil {
			return fmt.Errorf("gates.degraded_labels: %w", err)
		}
	}
	for _, name := range t.StateMachine.ImmediateLabels {
		if _, err := domain.ParseRegimeLabel(name); err != nil {
			return fmt.Errorf("state_machine.immediate_labels: %w", err)
		}
	}
	for instrument, day := range t.Session.ExpiryWeekdays {
		if _, err := ParseWeekday(day); err != nil {
			return fmt.Errorf("session.expiry_weekdays[%s]: %w", instrument, err)
		}
	}

	return nil
}

// ParseWeekday разбирает английское название дня недели
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == s {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: weekday %q", domain.ErrInvalidInput, s)
}

// Labels разбирает список имен меток (имена уже проверены Validate)
func Labels(names []string) []domain.RegimeLabel {
	out := make([]domain.RegimeLabel, 0, len(names))
	for _, name := range names {
		if label, err := domain.ParseRegimeLabel(name); err == nil {
			out = append(out, label)
		}
	}
	return out
}

// Enabled разыменовывает необязательный флаг
func Enabled(flag *bool) bool {
	return flag != nil && *flag
}

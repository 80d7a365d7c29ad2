package domain

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegimeLabel тип торгового дня, упорядоченный по тяжести
type RegimeLabel int

const (
	RegimeUnknown RegimeLabel = iota
	RegimeCleanTrend
	RegimeNormalTrend
	RegimeEarlyImpulseFade
	RegimeRotational
	RegimeFastFlip
	RegimeRangeChoppy
	RegimeExpiryDistortion
	RegimeLiquiditySweepTrap
)

var regimeNames = map[RegimeLabel]string{
	RegimeUnknown:            "UNKNOWN",
	RegimeCleanTrend:         "CLEAN_TREND",
	RegimeNormalTrend:        "NORMAL_TREND",
	RegimeEarlyImpulseFade:   "EARLY_IMPULSE_FADE",
	RegimeRotational:         "ROTATIONAL",
	RegimeFastFlip:           "FAST_FLIP",
	RegimeRangeChoppy:        "RANGE_CHOPPY",
	RegimeExpiryDistortion:   "EXPIRY_DISTORTION",
	RegimeLiquiditySweepTrap: "LIQUIDITY_SWEEP_TRAP",
}

var regimeTitles = map[RegimeLabel]string{
	RegimeUnknown:            "Unknown (Early Data)",
	RegimeCleanTrend:         "Clean Trend Day",
	RegimeNormalTrend:        "Normal Trend Day",
	RegimeEarlyImpulseFade:   "Early Impulse → Sideways Day",
	RegimeRotational:         "Rotational Expansion Day",
	RegimeFastFlip:           "Fast Regime Flip Day",
	RegimeRangeChoppy:        "Range / Choppy Day",
	RegimeExpiryDistortion:   "Expiry Distortion Day",
	RegimeLiquiditySweepTrap: "Liquidity Sweep Trap Day",
}

// severity: RANGE_CHOPPY и EXPIRY_DISTORTION равны
var regimeSeverity = map[RegimeLabel]int{
	RegimeUnknown:            0,
	RegimeCleanTrend:         1,
	RegimeNormalTrend:        2,
	RegimeEarlyImpulseFade:   3,
	RegimeRotational:         4,
	RegimeFastFlip:           5,
	RegimeRangeChoppy:        6,
	RegimeExpiryDistortion:   6,
	RegimeLiquiditySweepTrap: 7,
}

// AllRegimes все метки кроме UNKNOWN, от мягкой к тяжелой
func AllRegimes() []RegimeLabel {
	return []RegimeLabel{
		RegimeCleanTrend,
		RegimeNormalTrend,
		RegimeEarlyImpulseFade,
		RegimeRotational,
		RegimeFastFlip,
		RegimeRangeChoppy,
		RegimeExpiryDistortion,
		RegimeLiquiditySweepTrap,
	}
}

func (r RegimeLabel) String() string {
	if name, ok := regimeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("REGIME(%d)", int(r))
}

// Title человекочитаемое название для уведомлений
func (r RegimeLabel) Title() string {
	if title, ok := regimeTitles[r]; ok {
		return title
	}
	return r.String()
}

// Severity ранг тяжести
func (r RegimeLabel) Severity() int {
	return regimeSeverity[r]
}

// IsTerminal метки, блокирующие сессию
func (r RegimeLabel) IsTerminal() bool {
	return r == RegimeRangeChoppy || r == RegimeLiquiditySweepTrap
}

var regimeAliases = map[string]RegimeLabel{
	"EARLY_IMPULSE_SIDEWAYS": RegimeEarlyImpulseFade,
	"ROTATIONAL_EXPANSION":   RegimeRotational,
	"FAST_REGIME_FLIP":       RegimeFastFlip,
}

// ParseRegimeLabel разбирает имя метки
func ParseRegimeLabel(s string) (RegimeLabel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if label, ok := regimeAliases[name]; ok {
		return label, nil
	}
	for label, n := range regimeNames {
		if n == name {
			return label, nil
		}
	}
	return RegimeUnknown, fmt.Errorf("%w: %q", ErrUnknownRegime, s)
}

func (r RegimeLabel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RegimeLabel) UnmarshalText(text []byte) error {
	label, err := ParseRegimeLabel(string(text))
	if err != nil {
		return err
	}
	*r = label
	return nil
}

func (r *RegimeLabel) UnmarshalYAML(node *yaml.Node) error {
	return r.UnmarshalText([]byte(node.Value))
}

package regime

import (
	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// Classification результат классификации дня
type Classification struct {
	Label   domain.RegimeLabel
	Reason  string
	Default bool // ни один детектор не сработал
}

// Classifier проверяет детекторы в порядке приоритета, первый совпавший побеждает
type Classifier struct {
	minBars      int
	detectors    []Detector
	defaultLabel domain.RegimeLabel
}

// NewClassifier создает классификатор типа дня
func NewClassifier(cfg config.RegimeThresholds) *Classifier {
	label, err := domain.ParseRegimeLabel(cfg.DefaultLabel)
	if err != nil {
		label = domain.RegimeCleanTrend
	}

	return &Classifier{
		minBars:      cfg.MinBars,
		detectors:    detectors(cfg),
		defaultLabel: label,
	}
}

// Classify возвращает самый тяжелый совпавший тип дня
func (c *Classifier) Classify(in Input) Classification {
	if len(in.Bars) < c.minBars || in.Snapshot == nil || in.Stats == nil {
		return Classification{Label: domain.RegimeUnknown, Reason: "Insufficient data"}
	}

	for _, detect := range c.detectors {
		if matched, label, reason := detect(in); matched {
			return Classification{Label: label, Reason: reason}
		}
	}

	return Classification{Label: c.defaultLabel, Reason: "Default classification", Default: true}
}

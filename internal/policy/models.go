package policy

import "github.com/kirillm/rijin-bot/internal/domain"

// Matrix матрица разрешений: категория сигнала × тип дня × время × особый день
type Matrix struct {
	Categories map[string]*CategoryRule `yaml:"categories"`
}

// CategoryRule правила допуска для одной категории сигналов
type CategoryRule struct {
	Name             string               `yaml:"-"`
	Allowed          []domain.RegimeLabel `yaml:"allowed"`
	AnyRegime        bool                 `yaml:"any_regime"`
	Conditional      []ConditionalRule    `yaml:"conditional"`
	Hostile          []domain.RegimeLabel `yaml:"hostile"`
	Window           *Window              `yaml:"window"`
	Cutoff           *domain.TimeOfDay    `yaml:"cutoff"`
	SpecialDayCutoff *domain.TimeOfDay    `yaml:"special_day_cutoff"`
	BlockSpecialDay  bool                 `yaml:"block_special_day"`
	MaxPerSession    int                  `yaml:"max_per_session"`
}

// ConditionalRule тип дня, в котором категория допускается с лимитом
type ConditionalRule struct {
	Label         domain.RegimeLabel `yaml:"label"`
	MaxAdmissions int                `yaml:"max_admissions"`
	Note          string             `yaml:"note"`
}

// Window окно времени допуска [Start, End]
type Window struct {
	Start domain.TimeOfDay `yaml:"start"`
	End   domain.TimeOfDay `yaml:"end"`
}

// Contains время внутри окна
func (w Window) Contains(t domain.TimeOfDay) bool {
	return t >= w.Start && t <= w.End
}

// Request запрос проверки разрешения
type Request struct {
	Category   string
	Regime     domain.RegimeLabel
	Now        domain.TimeOfDay
	SpecialDay bool
	Admissions AdmissionCounter
}

// AdmissionCounter число допусков в текущей сессии
type AdmissionCounter interface {
	Admitted(category string) int
	AdmittedIn(category string, regime domain.RegimeLabel) int
}

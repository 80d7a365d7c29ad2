package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillm/rijin-bot/internal/domain"
)

// LoadMatrix загружает матрицу разрешений из YAML; отсутствующий файл означает матрицу по умолчанию
func LoadMatrix(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultMatrix(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}

	var m Matrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate проверяет матрицу и проставляет имена категорий
func (m *Matrix) Validate() error {
	if len(m.Categories) == 0 {
		return fmt.Errorf("%w: policy has no categories", domain.ErrInvalidInput)
	}
	for name, rule := range m.Categories {
		if rule == nil {
			return fmt.Errorf("%w: category %s is empty", domain.ErrInvalidInput, name)
		}
		rule.Name = name
		if !rule.AnyRegime && len(rule.Allowed) == 0 && len(rule.Conditional) == 0 {
			return fmt.Errorf("%w: category %s allows no regime", domain.ErrInvalidInput, name)
		}
		if rule.Window != nil && rule.Window.End < rule.Window.Start {
			return fmt.Errorf("%w: category %s window ends before it starts", domain.ErrInvalidInput, name)
		}
		for _, c := range rule.Conditional {
			if c.MaxAdmissions <= 0 {
				return fmt.Errorf("%w: category %s conditional %s needs max_admissions", domain.ErrInvalidInput, name, c.Label)
			}
		}
	}
	return nil
}

// Check проверяет разрешение категории в текущем контексте
func (m *Matrix) Check(req Request) domain.GateVerdict {
	rule, ok := m.Categories[req.Category]
	if !ok {
		return domain.Reject(domain.GatePermission, fmt.Sprintf("Unknown signal category %q", req.Category))
	}
	return rule.check(req)
}

func (r *CategoryRule) check(req Request) domain.GateVerdict {
	reject := func(format string, args ...interface{}) domain.GateVerdict {
		return domain.Reject(domain.GatePermission, fmt.Sprintf(format, args...))
	}

	if r.Window != nil && !r.Window.Contains(req.Now) {
		return reject("%s blocked (outside %s-%s window)", r.Name, r.Window.Start, r.Window.End)
	}

	var note string
	switch {
	case r.AnyRegime || containsLabel(r.Allowed, req.Regime):
	default:
		cond, ok := r.conditional(req.Regime)
		if !ok {
			return reject("%s blocked (Day Type: %s)", r.Name, req.Regime)
		}
		if req.Admissions != nil && req.Admissions.AdmittedIn(r.Name, req.Regime) >= cond.MaxAdmissions {
			return reject("%s blocked (%s: max %d per session reached)", r.Name, req.Regime, cond.MaxAdmissions)
		}
		note = cond.Note
		if note == "" {
			note = fmt.Sprintf("%s conditional (%s: max %d)", r.Name, req.Regime, cond.MaxAdmissions)
		}
	}

	if r.BlockSpecialDay && req.SpecialDay {
		return reject("%s blocked (Special day)", r.Name)
	}
	if r.SpecialDayCutoff != nil && req.SpecialDay && req.Now > *r.SpecialDayCutoff {
		return reject("%s blocked (Late expiry phase)", r.Name)
	}
	if r.Cutoff != nil && req.Now > *r.Cutoff {
		return reject("%s blocked (After %s)", r.Name, *r.Cutoff)
	}
	if containsLabel(r.Hostile, req.Regime) {
		return reject("No forced trades on hostile days")
	}
	if r.MaxPerSession > 0 && req.Admissions != nil && req.Admissions.Admitted(r.Name) >= r.MaxPerSession {
		return reject("%s blocked (max %d per session)", r.Name, r.MaxPerSession)
	}

	if note != "" {
		return domain.GateVerdict{Allowed: true, Gate: domain.GatePermission, Reason: note}
	}
	return domain.Allow()
}

func (r *CategoryRule) conditional(label domain.RegimeLabel) (ConditionalRule, bool) {
	for _, c := range r.Conditional {
		if c.Label == label {
			return c, true
		}
	}
	return ConditionalRule{}, false
}

func containsLabel(labels []domain.RegimeLabel, label domain.RegimeLabel) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// DefaultMatrix встроенная матрица, совпадающая с configs/policy.yaml
func DefaultMatrix() *Matrix {
	at := func(h, m int) *domain.TimeOfDay {
		t := domain.NewTimeOfDay(h, m)
		return &t
	}
	trend := []domain.RegimeLabel{domain.RegimeCleanTrend, domain.RegimeNormalTrend}

	m := &Matrix{Categories: map[string]*CategoryRule{
		domain.CategoryModeF: {
			Allowed: trend,
			Conditional: []ConditionalRule{
				{Label: domain.RegimeRotational, MaxAdmissions: 1,
					Note: "MODE_F conditional (ROTATIONAL: max 1 trade)"},
				{Label: domain.RegimeFastFlip, MaxAdmissions: 1,
					Note: "MODE_F conditional (FAST_FLIP: max 1 continuation)"},
			},
			SpecialDayCutoff: at(14, 0),
		},
		domain.CategoryModeSCore: {
			Allowed: trend,
			Cutoff:  at(13, 30),
		},
		domain.CategoryModeSLiquidity: {
			Allowed: trend,
			Cutoff:  at(13, 0),
			Hostile: []domain.RegimeLabel{
				domain.RegimeExpiryDistortion,
				domain.RegimeRangeChoppy,
				domain.RegimeLiquiditySweepTrap,
				domain.RegimeRotational,
				domain.RegimeFastFlip,
			},
		},
		domain.CategoryOpeningImpulse: {
			AnyRegime:       true,
			Window:          &Window{Start: domain.NewTimeOfDay(9, 20), End: domain.NewTimeOfDay(10, 0)},
			BlockSpecialDay: true,
			MaxPerSession:   1,
		},
	}}

	for name, rule := range m.Categories {
		rule.Name = name
	}
	return m
}

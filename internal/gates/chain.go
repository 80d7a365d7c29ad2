package gates

import (
	"time"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/indicators"
	"github.com/kirillm/rijin-bot/internal/phase"
	"github.com/kirillm/rijin-bot/internal/policy"
)

// Input контекст проверки кандидата; гейты его не изменяют
type Input struct {
	Signal     domain.Signal
	Bars       []domain.Bar
	Session    []domain.Bar
	Snapshot   *indicators.Snapshot
	Impulse    phase.ExpansionSource
	Regime     domain.RegimeLabel
	Now        time.Time
	SpecialDay bool
	Admissions policy.AdmissionCounter
}

// Price цена последнего бара
func (in Input) Price() float64 {
	if len(in.Bars) == 0 {
		return in.Signal.Entry
	}
	return in.Bars[len(in.Bars)-1].Close
}

// Gate независимая проверка допуска
type Gate interface {
	Name() string
	Check(in Input) domain.GateVerdict
}

// Result итог прохождения цепочки
type Result struct {
	Verdict   domain.GateVerdict
	Evaluated []string // имена выполненных гейтов по порядку
	Notes     []string // причины fail-open и условных допусков
}

// Chain выполняет гейты строго по порядку до первого отказа
type Chain struct {
	gates []Gate
}

// NewChain создает цепочку из гейтов в заданном порядке
func NewChain(gates ...Gate) *Chain {
	return &Chain{gates: gates}
}

// NewDefaultChain exhaustion -> time+regime -> compression -> permission
func NewDefaultChain(cfg config.GateThresholds, matrix *policy.Matrix) *Chain {
	return NewChain(
		NewExhaustionGate(cfg),
		NewTimeRegimeGate(cfg),
		NewCompressionGate(cfg),
		NewPermissionGate(matrix),
	)
}

// Evaluate прогоняет кандидата через цепочку
func (c *Chain) Evaluate(in Input) Result {
	res := Result{Verdict: domain.Allow()}

	for _, g := range c.gates {
		res.Evaluated = append(res.Evaluated, g.Name())

		v := g.Check(in)
		if !v.Allowed {
			if v.Gate == "" {
				v.Gate = g.Name()
			}
			res.Verdict = v
			return res
		}
		if v.Reason != "" {
			res.Notes = append(res.Notes, v.Reason)
		}
	}

	return res
}

// Names имена гейтов цепочки
func (c *Chain) Names() []string {
	names := make([]string, len(c.gates))
	for i, g := range c.gates {
		names[i] = g.Name()
	}
	return names
}

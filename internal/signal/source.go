package signal

import (
	"time"

	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/indicators"
	"github.com/kirillm/rijin-bot/internal/policy"
)

// Context рыночный контекст, передаваемый источнику сигналов
type Context struct {
	Instrument string
	Now        time.Time
	Session    []domain.Bar // бары текущей сессии
	Snapshot   *indicators.Snapshot
	Regime     domain.RegimeLabel
	SpecialDay bool
	Admissions policy.AdmissionCounter
}

// Source внешний генератор кандидатов на вход; nil означает отсутствие сигнала
type Source interface {
	Propose(bars []domain.Bar, mctx Context) *domain.Signal
}

// SourceFunc адаптер функции к Source
type SourceFunc func(bars []domain.Bar, mctx Context) *domain.Signal

func (f SourceFunc) Propose(bars []domain.Bar, mctx Context) *domain.Signal {
	return f(bars, mctx)
}

// First опрашивает источники по порядку и возвращает первый сигнал
type First []Source

func (s First) Propose(bars []domain.Bar, mctx Context) *domain.Signal {
	for _, src := range s {
		if src == nil {
			continue
		}
		if sig := src.Propose(bars, mctx); sig != nil {
			return sig
		}
	}
	return nil
}

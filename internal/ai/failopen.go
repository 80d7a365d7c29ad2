package ai

import (
	"context"
	"sync/atomic"

	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/pkg/utils"
)

// Evaluator источник оценок качества
type Evaluator interface {
	Evaluate(ctx context.Context, mc MarketContext, sig domain.Signal) (*QualityVerdict, error)
}

// Stats счетчики обращений к фильтру
type Stats struct {
	Calls     int64 `json:"calls"`
	Accepts   int64 `json:"accepts"`
	Restricts int64 `json:"restricts"`
	FailOpen  int64 `json:"fail_open"`
}

// FailOpen превращает ошибку или пустой ответ фильтра в ACCEPT и считает такие случаи
type FailOpen struct {
	inner     Evaluator
	logger    *utils.Logger
	onFail    func()
	calls     atomic.Int64
	accepts   atomic.Int64
	restricts atomic.Int64
	failOpen  atomic.Int64
}

// NewFailOpen оборачивает фильтр; onFail вызывается на каждый fail-open (метрики)
func NewFailOpen(inner Evaluator, logger *utils.Logger, onFail func()) *FailOpen {
	return &FailOpen{inner: inner, logger: logger, onFail: onFail}
}

// Evaluate никогда не возвращает ошибку
func (f *FailOpen) Evaluate(ctx context.Context, mc MarketContext, sig domain.Signal) (*QualityVerdict, error) {
	f.calls.Add(1)

	v, err := f.inner.Evaluate(ctx, mc, sig)
	if err != nil || v == nil {
		f.failOpen.Add(1)
		if f.onFail != nil {
			f.onFail()
		}
		if err != nil {
			f.logger.Warn("⚠️ AI filter unavailable for %s, defaulting to ACCEPT: %v", mc.Instrument, err)
		}
		return &QualityVerdict{
			Decision:   DecisionAccept,
			Confidence: 50,
			Reasons:    []string{"AI unavailable - defaulting to ACCEPT"},
		}, nil
	}

	if v.Restricts() {
		f.restricts.Add(1)
	} else {
		f.accepts.Add(1)
	}
	return v, nil
}

// Stats снимок счетчиков
func (f *FailOpen) Stats() Stats {
	return Stats{
		Calls:     f.calls.Load(),
		Accepts:   f.accepts.Load(),
		Restricts: f.restricts.Load(),
		FailOpen:  f.failOpen.Load(),
	}
}

package breakers

import (
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// LossStatus снимок состояния паузы после серии убытков
type LossStatus struct {
	ConsecutiveLosses int       `json:"consecutive_losses"`
	PausedUntil       time.Time `json:"paused_until,omitempty"`
}

// LossBreaker приостанавливает входы по инструменту после серии стопов
type LossBreaker struct {
	mu          sync.RWMutex
	cfg         config.LossBreakerThresholds
	consecutive int
	pausedUntil time.Time
}

// NewLossBreaker создает breaker серии убытков
func NewLossBreaker(cfg config.LossBreakerThresholds) *LossBreaker {
	return &LossBreaker{cfg: cfg}
}

// RecordClose учитывает закрытие сделки; возвращает true, если пауза только что включилась
func (b *LossBreaker) RecordClose(trade domain.ClosedTrade, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !trade.IsLoss() {
		if config.Enabled(b.cfg.ResetOnWin) {
			b.consecutive = 0
		}
		return false
	}

	b.consecutive++

	// убыток во время паузы учитывается, но паузу не продлевает
	if now.Before(b.pausedUntil) {
		return false
	}
	if b.consecutive >= b.cfg.MaxConsecutiveLosses {
		b.pausedUntil = now.Add(b.cfg.PauseDuration)
		return true
	}
	return false
}

// Check проверяет паузу; cleared=true ровно один раз, когда пауза истекла
func (b *LossBreaker) Check(now time.Time) (verdict domain.GateVerdict, cleared bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pausedUntil.IsZero() {
		return domain.Allow(), false
	}

	if now.Before(b.pausedUntil) {
		remaining := int(b.pausedUntil.Sub(now).Minutes())
		return domain.Reject(domain.GateLossPause,
			fmt.Sprintf("Paused for %d more minutes (consecutive loss protection)", remaining)), false
	}

	b.pausedUntil = time.Time{}
	b.consecutive = 0
	return domain.Allow(), true
}

// Status текущее состояние
func (b *LossBreaker) Status() LossStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return LossStatus{ConsecutiveLosses: b.consecutive, PausedUntil: b.pausedUntil}
}

// Reset сбрасывает состояние на границе сессии
func (b *LossBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	b.pausedUntil = time.Time{}
}

package breakers

import (
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// SessionStopStatus снимок состояния остановки сессии
type SessionStopStatus struct {
	Stopped   bool      `json:"stopped"`
	Reason    string    `json:"reason,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
}

// SessionStop необратимая до конца сессии остановка новых входов
type SessionStop struct {
	mu        sync.RWMutex
	stopped   bool
	stoppedAt time.Time
	reason    string
}

// NewSessionStop создает новый session stop
func NewSessionStop() *SessionStop {
	return &SessionStop{}
}

// Trigger останавливает сессию; повторный вызов не меняет исходную причину
func (s *SessionStop) Trigger(reason string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.stopped = true
	s.stoppedAt = now
	s.reason = reason
	return true
}

// IsStopped проверяет остановлена ли сессия
func (s *SessionStop) IsStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stopped
}

// Status возвращает статус остановки
func (s *SessionStop) Status() SessionStopStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionStopStatus{Stopped: s.stopped, Reason: s.reason, StoppedAt: s.stoppedAt}
}

// Reset снимает остановку, вызывается только на границе сессии
func (s *SessionStop) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = false
	s.reason = ""
	s.stoppedAt = time.Time{}
}

// StopMonitor следит за условиями остановки сессии
type StopMonitor struct {
	cfg     config.SessionStopThresholds
	stop    *SessionStop
	blocks  int
	lateSLs int
}

// NewStopMonitor создает монитор над session stop
func NewStopMonitor(cfg config.SessionStopThresholds, stop *SessionStop) *StopMonitor {
	return &StopMonitor{cfg: cfg, stop: stop}
}

// Stop управляемый session stop
func (m *StopMonitor) Stop() *SessionStop {
	return m.stop
}

// Check вердикт для новых входов
func (m *StopMonitor) Check() domain.GateVerdict {
	st := m.stop.Status()
	if st.Stopped {
		return domain.Reject(domain.GateSessionStop, "System stopped: "+st.Reason)
	}
	return domain.Allow()
}

// ObserveRegime останавливает сессию при терминальном типе дня
func (m *StopMonitor) ObserveRegime(label domain.RegimeLabel, now time.Time) (bool, string) {
	if !config.Enabled(m.cfg.StopOnTerminal) || !label.IsTerminal() {
		return false, ""
	}
	return m.trigger(fmt.Sprintf("Market conditions hostile (%s)", label), now)
}

// RegisterBlock учитывает отклоненный сигнал
func (m *StopMonitor) RegisterBlock(now time.Time) (bool, string) {
	m.blocks++
	if m.blocks < m.cfg.ConsecutiveBlocks {
		return false, ""
	}
	return m.trigger(fmt.Sprintf("%d consecutive execution blocks", m.blocks), now)
}

// RegisterAdmission сбрасывает счетчик подряд идущих отказов
func (m *StopMonitor) RegisterAdmission() {
	m.blocks = 0
}

// RegisterStopLoss учитывает стоп после отсечки
func (m *StopMonitor) RegisterStopLoss(at time.Time) (bool, string) {
	if domain.TimeOfDayOf(at) <= m.cfg.SLAfter {
		return false, ""
	}
	m.lateSLs++
	if m.lateSLs < m.cfg.SLCountAfter {
		return false, ""
	}
	return m.trigger(fmt.Sprintf("%d stop losses after %s IST", m.lateSLs, m.cfg.SLAfter), at)
}

// ConsecutiveBlocks текущее число отказов подряд
func (m *StopMonitor) ConsecutiveBlocks() int {
	return m.blocks
}

// Reset сбрасывает счетчики и остановку на границе сессии
func (m *StopMonitor) Reset() {
	m.blocks = 0
	m.lateSLs = 0
	m.stop.Reset()
}

func (m *StopMonitor) trigger(reason string, now time.Time) (bool, string) {
	if !m.stop.Trigger(reason, now) {
		return false, ""
	}
	return true, reason
}

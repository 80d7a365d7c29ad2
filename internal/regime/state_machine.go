package regime

import (
	"fmt"
	"time"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// SessionState состояние типа дня в пределах сессии
type SessionState struct {
	Current      domain.RegimeLabel `json:"current"`
	Locked       bool               `json:"locked"`
	Pending      domain.RegimeLabel `json:"pending"`
	PendingSince time.Time          `json:"pending_since,omitempty"`
}

// Transition зафиксированная смена типа дня
type Transition struct {
	From   domain.RegimeLabel
	To     domain.RegimeLabel
	Reason string
	At     time.Time
}

// StateMachine применяет правило "только ухудшение" с подтверждением
type StateMachine struct {
	cfg       config.StateMachineThresholds
	immediate map[domain.RegimeLabel]bool
	state     SessionState
	history   []Transition
}

// NewStateMachine создает автомат типа дня
func NewStateMachine(cfg config.StateMachineThresholds) *StateMachine {
	immediate := make(map[domain.RegimeLabel]bool)
	for _, label := range config.Labels(cfg.ImmediateLabels) {
		immediate[label] = true
	}
	return &StateMachine{cfg: cfg, immediate: immediate}
}

// Update применяет новую классификацию; возвращает признак смены и сообщение
func (m *StateMachine) Update(label domain.RegimeLabel, reason string, now time.Time) (bool, string) {
	if label == domain.RegimeUnknown || m.state.Locked {
		return false, ""
	}

	current := m.state.Current
	if current == domain.RegimeUnknown {
		m.commit(label, reason, now)
		return true, fmt.Sprintf("Initial classification: %s", label)
	}

	if label.Severity() <= current.Severity() {
		m.clearPending()
		return false, ""
	}

	if label.IsTerminal() || m.immediate[label] {
		m.commit(label, reason, now)
		return true, fmt.Sprintf("DAY TYPE DOWNGRADE: %s (Immediate)", label)
	}

	if m.state.Pending != label {
		m.state.Pending = label
		m.state.PendingSince = now
		return false, ""
	}

	elapsed := now.Sub(m.state.PendingSince)
	switch {
	case elapsed < m.cfg.ConfirmMin:
		return false, ""
	case elapsed <= m.cfg.ConfirmMax:
		m.commit(label, reason, now)
		return true, fmt.Sprintf("DAY TYPE DOWNGRADE: %s (Confirmed)", label)
	default:
		// окно подтверждения пропущено, отсчет начинается заново
		m.state.PendingSince = now
		return false, ""
	}
}

func (m *StateMachine) commit(label domain.RegimeLabel, reason string, now time.Time) {
	m.history = append(m.history, Transition{From: m.state.Current, To: label, Reason: reason, At: now})
	m.state.Current = label
	m.state.Locked = label.IsTerminal()
	m.clearPending()
}

func (m *StateMachine) clearPending() {
	m.state.Pending = domain.RegimeUnknown
	m.state.PendingSince = time.Time{}
}

// Current текущий тип дня
func (m *StateMachine) Current() domain.RegimeLabel {
	return m.state.Current
}

// Locked день заблокирован терминальным типом
func (m *StateMachine) Locked() bool {
	return m.state.Locked
}

// State копия состояния
func (m *StateMachine) State() SessionState {
	return m.state
}

// History копия истории переходов сессии
func (m *StateMachine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Reset сбрасывает состояние на границе сессии
func (m *StateMachine) Reset() {
	m.state = SessionState{}
	m.history = nil
}

// Verify проверяет инварианты состояния
func (m *StateMachine) Verify() error {
	s := m.state
	if s.Locked && !s.Current.IsTerminal() {
		return fmt.Errorf("%w: locked on non-terminal %s", domain.ErrStateCorruption, s.Current)
	}
	if s.Pending != domain.RegimeUnknown {
		if s.PendingSince.IsZero() {
			return fmt.Errorf("%w: pending %s without timestamp", domain.ErrStateCorruption, s.Pending)
		}
		if s.Pending.Severity() <= s.Current.Severity() {
			return fmt.Errorf("%w: pending %s does not degrade %s", domain.ErrStateCorruption, s.Pending, s.Current)
		}
	}
	for i := 1; i < len(m.history); i++ {
		if m.history[i].To.Severity() < m.history[i-1].To.Severity() {
			return fmt.Errorf("%w: severity decreased %s -> %s",
				domain.ErrStateCorruption, m.history[i-1].To, m.history[i].To)
		}
	}
	return nil
}

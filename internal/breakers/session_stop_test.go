package breakers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

func newMonitor() *StopMonitor {
	return NewStopMonitor(config.DefaultThresholds().SessionStop, NewSessionStop())
}

func TestSessionStop_TriggerKeepsFirstReason(t *testing.T) {
	s := NewSessionStop()

	assert.True(t, s.Trigger("first", at(10, 0)))
	assert.False(t, s.Trigger("second", at(10, 5)))

	st := s.Status()
	assert.True(t, st.Stopped)
	assert.Equal(t, "first", st.Reason)
	assert.Equal(t, at(10, 0), st.StoppedAt)

	s.Reset()
	assert.False(t, s.IsStopped())
}

func TestStopMonitor_TerminalRegime(t *testing.T) {
	m := newMonitor()

	stopped, _ := m.ObserveRegime(domain.RegimeRotational, at(10, 30))
	assert.False(t, stopped)

	stopped, reason := m.ObserveRegime(domain.RegimeRangeChoppy, at(11, 0))
	assert.True(t, stopped)
	assert.Equal(t, "Market conditions hostile (RANGE_CHOPPY)", reason)

	v := m.Check()
	assert.False(t, v.Allowed)
	assert.Equal(t, domain.GateSessionStop, v.Gate)
	assert.Equal(t, "System stopped: Market conditions hostile (RANGE_CHOPPY)", v.Reason)
}

func TestStopMonitor_ConsecutiveBlocks(t *testing.T) {
	m := newMonitor()

	m.RegisterBlock(at(10, 0))
	m.RegisterBlock(at(10, 5))
	m.RegisterAdmission()
	assert.Equal(t, 0, m.ConsecutiveBlocks())

	m.RegisterBlock(at(10, 10))
	m.RegisterBlock(at(10, 15))
	stopped, reason := m.RegisterBlock(at(10, 20))
	assert.True(t, stopped)
	assert.Equal(t, "3 consecutive execution blocks", reason)
	assert.True(t, m.Stop().IsStopped())
}

func TestStopMonitor_LateStopLosses(t *testing.T) {
	m := newMonitor()

	stopped, _ := m.RegisterStopLoss(at(11, 30))
	assert.False(t, stopped)
	stopped, _ = m.RegisterStopLoss(at(11, 45))
	assert.False(t, stopped)

	stopped, reason := m.RegisterStopLoss(at(12, 10))
	assert.True(t, stopped)
	assert.Equal(t, "2 stop losses after 11:30 IST", reason)
}

func TestStopMonitor_Reset(t *testing.T) {
	m := newMonitor()
	m.ObserveRegime(domain.RegimeLiquiditySweepTrap, at(10, 30))

	m.Reset()

	assert.True(t, m.Check().Allowed)
	assert.Equal(t, 0, m.ConsecutiveBlocks())
}

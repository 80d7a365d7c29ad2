package regime

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
)

var t0 = time.Date(2025, 1, 6, 10, 0, 0, 0, domain.IST)

func newMachine(current domain.RegimeLabel) *StateMachine {
	m := NewStateMachine(config.DefaultThresholds().StateMachine)
	if current != domain.RegimeUnknown {
		m.Update(current, "seed", t0.Add(-time.Hour))
	}
	return m
}

func TestStateMachine_InitialClassification(t *testing.T) {
	m := newMachine(domain.RegimeUnknown)

	changed, msg := m.Update(domain.RegimeNormalTrend, "Directional", t0)

	assert.True(t, changed)
	assert.Equal(t, "Initial classification: NORMAL_TREND", msg)
	assert.Equal(t, domain.RegimeNormalTrend, m.Current())
	assert.False(t, m.Locked())
}

func TestStateMachine_UnknownInputIgnored(t *testing.T) {
	m := newMachine(domain.RegimeCleanTrend)

	changed, _ := m.Update(domain.RegimeUnknown, "Insufficient data", t0)

	assert.False(t, changed)
	assert.Equal(t, domain.RegimeCleanTrend, m.Current())
}

func TestStateMachine_NeverUpgrades(t *testing.T) {
	m := newMachine(domain.RegimeRotational)

	changed, _ := m.Update(domain.RegimeCleanTrend, "Clean", t0)
	assert.False(t, changed)

	changed, _ = m.Update(domain.RegimeRotational, "same", t0.Add(time.Hour))
	assert.False(t, changed)
	assert.Equal(t, domain.RegimeRotational, m.Current())
}

func TestStateMachine_TerminalLocksImmediately(t *testing.T) {
	for _, terminal := range []domain.RegimeLabel{domain.RegimeRangeChoppy, domain.RegimeLiquiditySweepTrap} {
		t.Run(terminal.String(), func(t *testing.T) {
			m := newMachine(domain.RegimeCleanTrend)

			changed, msg := m.Update(terminal, "hostile", t0)
			require.True(t, changed)
			assert.Equal(t, "DAY TYPE DOWNGRADE: "+terminal.String()+" (Immediate)", msg)
			assert.True(t, m.Locked())

			changed, _ = m.Update(domain.RegimeLiquiditySweepTrap, "worse", t0.Add(time.Hour))
			assert.False(t, changed)
			assert.Equal(t, terminal, m.Current())
		})
	}
}

func TestStateMachine_TerminalFirstClassificationLocks(t *testing.T) {
	m := newMachine(domain.RegimeUnknown)

	changed, _ := m.Update(domain.RegimeRangeChoppy, "Choppy", t0)

	assert.True(t, changed)
	assert.True(t, m.Locked())
}

func TestStateMachine_ConfirmationWindow(t *testing.T) {
	tests := []struct {
		name        string
		second      time.Duration
		wantChanged bool
		wantPending bool
	}{
		{"too early keeps pending", 30 * time.Minute, false, true},
		{"lower bound commits", 50 * time.Minute, true, false},
		{"inside window commits", 60 * time.Minute, true, false},
		{"upper bound commits", 70 * time.Minute, true, false},
		{"missed window restarts pending", 90 * time.Minute, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(domain.RegimeCleanTrend)

			changed, _ := m.Update(domain.RegimeFastFlip, "flip", t0)
			require.False(t, changed)
			assert.Equal(t, domain.RegimeFastFlip, m.State().Pending)

			changed, msg := m.Update(domain.RegimeFastFlip, "flip", t0.Add(tt.second))
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantPending, m.State().Pending == domain.RegimeFastFlip)
			if changed {
				assert.Equal(t, "DAY TYPE DOWNGRADE: FAST_FLIP (Confirmed)", msg)
				assert.Equal(t, domain.RegimeFastFlip, m.Current())
			} else {
				assert.Equal(t, domain.RegimeCleanTrend, m.Current())
			}
		})
	}
}

func TestStateMachine_MissedWindowRestartsTimer(t *testing.T) {
	m := newMachine(domain.RegimeCleanTrend)

	m.Update(domain.RegimeRotational, "rot", t0)
	m.Update(domain.RegimeRotational, "rot", t0.Add(90*time.Minute))
	assert.Equal(t, t0.Add(90*time.Minute), m.State().PendingSince)

	changed, _ := m.Update(domain.RegimeRotational, "rot", t0.Add(145*time.Minute))
	assert.True(t, changed)
}

func TestStateMachine_DifferentLabelDropsPending(t *testing.T) {
	m := newMachine(domain.RegimeCleanTrend)

	m.Update(domain.RegimeRotational, "rot", t0)
	m.Update(domain.RegimeFastFlip, "flip", t0.Add(10*time.Minute))

	state := m.State()
	assert.Equal(t, domain.RegimeFastFlip, state.Pending)
	assert.Equal(t, t0.Add(10*time.Minute), state.PendingSince)

	changed, _ := m.Update(domain.RegimeRotational, "rot", t0.Add(60*time.Minute))
	assert.False(t, changed, "the original pending transition was dropped")
	assert.Equal(t, domain.RegimeCleanTrend, m.Current())
}

func TestStateMachine_NoDowngradeClearsPending(t *testing.T) {
	m := newMachine(domain.RegimeNormalTrend)

	m.Update(domain.RegimeRotational, "rot", t0)
	m.Update(domain.RegimeCleanTrend, "clean", t0.Add(30*time.Minute))

	assert.Equal(t, domain.RegimeUnknown, m.State().Pending)
	changed, _ := m.Update(domain.RegimeRotational, "rot", t0.Add(60*time.Minute))
	assert.False(t, changed)
}

func TestStateMachine_ImmediateLabels(t *testing.T) {
	cfg := config.DefaultThresholds().StateMachine
	cfg.ImmediateLabels = []string{"EXPIRY_DISTORTION"}
	m := NewStateMachine(cfg)
	m.Update(domain.RegimeCleanTrend, "clean", t0)

	changed, msg := m.Update(domain.RegimeExpiryDistortion, "expiry", t0.Add(5*time.Minute))

	assert.True(t, changed)
	assert.Contains(t, msg, "(Immediate)")
	assert.False(t, m.Locked(), "expiry is not terminal")
}

func TestStateMachine_SeverityNeverDecreases(t *testing.T) {
	labels := domain.AllRegimes()
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		m := newMachine(domain.RegimeUnknown)
		now := t0
		prevSeverity := 0
		locked := domain.RegimeUnknown

		for step := 0; step < 40; step++ {
			now = now.Add(time.Duration(rng.Intn(40)+1) * time.Minute)
			m.Update(labels[rng.Intn(len(labels))], "random", now)

			sev := m.Current().Severity()
			require.GreaterOrEqual(t, sev, prevSeverity)
			prevSeverity = sev

			if locked != domain.RegimeUnknown {
				require.Equal(t, locked, m.Current())
			}
			if m.Locked() {
				locked = m.Current()
			}
			require.NoError(t, m.Verify())
		}
	}
}

func TestStateMachine_Reset(t *testing.T) {
	m := newMachine(domain.RegimeRangeChoppy)
	require.True(t, m.Locked())

	m.Reset()

	assert.Equal(t, SessionState{}, m.State())
	assert.Empty(t, m.History())
	changed, _ := m.Update(domain.RegimeCleanTrend, "new day", t0.Add(24*time.Hour))
	assert.True(t, changed)
}

func TestStateMachine_VerifyDetectsCorruption(t *testing.T) {
	m := newMachine(domain.RegimeCleanTrend)
	require.NoError(t, m.Verify())

	m.state.Locked = true
	assert.True(t, errors.Is(m.Verify(), domain.ErrStateCorruption))

	m.state.Locked = false
	m.state.Pending = domain.RegimeRotational
	assert.True(t, errors.Is(m.Verify(), domain.ErrStateCorruption), "pending without timestamp")
}

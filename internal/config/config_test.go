package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/rijin-bot/internal/domain"
)

func TestDefaultThresholds(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, 20, th.Indicators.EMAPeriod)
	assert.Equal(t, 0.6, th.Impulse.MinRangeATR)
	assert.Equal(t, 50*time.Minute, th.StateMachine.ConfirmMin)
	assert.Equal(t, 70*time.Minute, th.StateMachine.ConfirmMax)
	assert.Equal(t, domain.NewTimeOfDay(12, 30), th.Gates.LateCutoff)
	assert.Equal(t, domain.NewTimeOfDay(14, 45), th.Session.SpecialDayNoEntryAfter)
	assert.True(t, Enabled(th.LossBreaker.ResetOnWin))
	assert.True(t, Enabled(th.SessionStop.StopOnTerminal))
	assert.Len(t, th.Gates.DegradedLabels, 5)
	assert.Equal(t, "Tuesday", th.Session.ExpiryWeekdays[domain.InstrumentNifty])
	assert.NoError(t, th.Validate())
}

func TestLoadThresholds_FileMatchesDefaults(t *testing.T) {
	th, err := LoadThresholds(filepath.Join("..", "..", "configs", "thresholds.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultThresholds(), th)
}

func TestLoadThresholds_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	body := "loss_breaker:\n  max_consecutive_losses: 3\n  reset_on_win: false\ngates:\n  late_cutoff: \"13:00\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	th, err := LoadThresholds(path)
	require.NoError(t, err)

	assert.Equal(t, 3, th.LossBreaker.MaxConsecutiveLosses)
	assert.False(t, Enabled(th.LossBreaker.ResetOnWin))
	assert.Equal(t, 60*time.Minute, th.LossBreaker.PauseDuration)
	assert.Equal(t, domain.NewTimeOfDay(13, 0), th.Gates.LateCutoff)
}

func TestLoadThresholds_MissingFile(t *testing.T) {
	th, err := LoadThresholds(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), th)
}

func TestLoadThresholds_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"confirm window inverted", "state_machine:\n  confirm_min: 80m\n  confirm_max: 70m\n"},
		{"phase bounds inverted", "phase:\n  early_max_expansion: 2.5\n"},
		{"unknown default label", "regime:\n  default_label: SIDEWAYS\n"},
		{"unknown weekday", "session:\n  expiry_weekdays:\n    NIFTY: Funday\n"},
		{"malformed yaml", "gates: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "thresholds.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := LoadThresholds(path)
			assert.Error(t, err)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Thursday")
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, d)

	_, err = ParseWeekday("thu")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestLoad(t *testing.T) {
	t.Setenv("KITE_API_KEY", "key")
	t.Setenv("KITE_ACCESS_TOKEN", "token")
	t.Setenv("INSTRUMENTS", "NIFTY, SENSEX")
	t.Setenv("CORRELATED_GROUPS", "NIFTY|SENSEX;BANKNIFTY")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("TELEGRAM_ALLOWED_USERS", "11, 12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"NIFTY", "SENSEX"}, cfg.Engine.Instruments)
	assert.Equal(t, [][]string{{"NIFTY", "SENSEX"}}, cfg.Engine.CorrelatedGroups)
	assert.Equal(t, "256265", cfg.Kite.InstrumentTokens["NIFTY"])
	assert.Equal(t, 30*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 100000.0, cfg.Engine.Capital)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.Telegram.Commands)
	assert.Equal(t, []int64{11, 12}, cfg.Telegram.AllowedUsers)
}

func TestLoadOffline(t *testing.T) {
	t.Setenv("KITE_API_KEY", "")
	t.Setenv("KITE_ACCESS_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)

	cfg, err := LoadOffline()
	require.NoError(t, err)
	assert.Equal(t, []string{"NIFTY", "SENSEX"}, cfg.Engine.Instruments)

	t.Setenv("RISK_PER_TRADE", "0.5")
	_, err = LoadOffline()
	assert.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing api key", map[string]string{"KITE_ACCESS_TOKEN": "token"}},
		{"missing token for instrument", map[string]string{
			"KITE_API_KEY": "key", "KITE_ACCESS_TOKEN": "token", "INSTRUMENTS": "BANKNIFTY",
		}},
		{"bad risk", map[string]string{
			"KITE_API_KEY": "key", "KITE_ACCESS_TOKEN": "token", "RISK_PER_TRADE": "0.5",
		}},
		{"db without password", map[string]string{
			"KITE_API_KEY": "key", "KITE_ACCESS_TOKEN": "token", "DB_HOST": "localhost",
		}},
		{"bad telegram user id", map[string]string{
			"KITE_API_KEY": "key", "KITE_ACCESS_TOKEN": "token", "TELEGRAM_ALLOWED_USERS": "me",
		}},
		{"bad duration", map[string]string{
			"KITE_API_KEY": "key", "KITE_ACCESS_TOKEN": "token", "POLL_INTERVAL": "soon",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KITE_API_KEY", "")
			t.Setenv("KITE_ACCESS_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

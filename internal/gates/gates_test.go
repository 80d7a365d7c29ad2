package gates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/domain/domaintest"
	"github.com/kirillm/rijin-bot/internal/indicators"
	"github.com/kirillm/rijin-bot/internal/policy"
)

type countingGate struct {
	name    string
	verdict domain.GateVerdict
	calls   int
}

func (g *countingGate) Name() string { return g.name }

func (g *countingGate) Check(Input) domain.GateVerdict {
	g.calls++
	return g.verdict
}

type fixedExpansion float64

func (f fixedExpansion) Active() bool                        { return true }
func (f fixedExpansion) ExpansionFromOrigin(float64) float64 { return float64(f) }

type noAdmissions struct{}

func (noAdmissions) Admitted(string) int                       { return 0 }
func (noAdmissions) AdmittedIn(string, domain.RegimeLabel) int { return 0 }

func at(hour, minute int) time.Time {
	return time.Date(2025, 1, 6, hour, minute, 0, 0, domain.IST)
}

func gateConfig() config.GateThresholds {
	return config.DefaultThresholds().Gates
}

func TestChain_ShortCircuit(t *testing.T) {
	first := &countingGate{name: "first", verdict: domain.Reject("first", "first says no")}
	second := &countingGate{name: "second", verdict: domain.Reject("second", "second says no")}
	third := &countingGate{name: "third", verdict: domain.Allow()}
	fourth := &countingGate{name: "fourth", verdict: domain.Allow()}

	res := NewChain(first, second, third, fourth).Evaluate(Input{})

	assert.False(t, res.Verdict.Allowed)
	assert.Equal(t, "first says no", res.Verdict.Reason)
	assert.Equal(t, "first", res.Verdict.Gate)
	assert.Equal(t, []string{"first"}, res.Evaluated)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
	assert.Equal(t, 0, third.calls)
	assert.Equal(t, 0, fourth.calls)
}

func TestChain_AllPassCollectsNotes(t *testing.T) {
	gates := []*countingGate{
		{name: "a", verdict: domain.Allow()},
		{name: "b", verdict: domain.AllowFailOpen("b", "not enough data")},
		{name: "c", verdict: domain.Allow()},
	}

	res := NewChain(gates[0], gates[1], gates[2]).Evaluate(Input{})

	assert.True(t, res.Verdict.Allowed)
	assert.Equal(t, []string{"a", "b", "c"}, res.Evaluated)
	assert.Equal(t, []string{"not enough data"}, res.Notes)
	for _, g := range gates {
		assert.Equal(t, 1, g.calls)
	}
}

func TestDefaultChain_Order(t *testing.T) {
	chain := NewDefaultChain(gateConfig(), policy.DefaultMatrix())
	assert.Equal(t, []string{
		domain.GateExhaustion, domain.GateTimeRegime, domain.GateCompression, domain.GatePermission,
	}, chain.Names())
}

func TestDefaultChain_ExhaustionReasonWins(t *testing.T) {
	chain := NewDefaultChain(gateConfig(), policy.DefaultMatrix())

	res := chain.Evaluate(Input{
		Signal:     domain.Signal{Category: "MODE_X", Direction: domain.DirectionBuy},
		Impulse:    fixedExpansion(2.0),
		Regime:     domain.RegimeRangeChoppy,
		Now:        at(14, 0),
		Admissions: noAdmissions{},
	})

	assert.False(t, res.Verdict.Allowed)
	assert.Equal(t, domain.GateExhaustion, res.Verdict.Gate)
	assert.Equal(t, "Move exhausted (Expansion 2.0× ATR from impulse, threshold 1.5×)", res.Verdict.Reason)
	assert.Equal(t, []string{domain.GateExhaustion}, res.Evaluated)
}

func TestExhaustionGate(t *testing.T) {
	session := domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 6)).
		OHLC(22000, 22010, 21990, 22005).
		OHLC(22005, 22060, 22000, 22055).
		Bars()

	tests := []struct {
		name       string
		in         Input
		wantAllow  bool
		wantReason string
	}{
		{
			name: "impulse inside threshold", wantAllow: true,
			in: Input{Impulse: fixedExpansion(1.5)},
		},
		{
			name:       "impulse exhausted",
			in:         Input{Impulse: fixedExpansion(1.6)},
			wantReason: "Move exhausted (Expansion 1.6× ATR from impulse, threshold 1.5×)",
		},
		{
			name: "fallback buy far from low",
			in: Input{Signal: domain.Signal{Direction: domain.DirectionBuy}, Bars: session, Session: session,
				Snapshot: &indicators.Snapshot{ATR: 20}},
			wantReason: "Move exhausted (Price 65.0 from low, threshold 30.0)",
		},
		{
			name: "fallback sell near high", wantAllow: true,
			in: Input{Signal: domain.Signal{Direction: domain.DirectionSell}, Bars: session, Session: session,
				Snapshot: &indicators.Snapshot{ATR: 20}},
		},
		{
			name: "fallback without atr fails open", wantAllow: true,
			in:         Input{Signal: domain.Signal{Direction: domain.DirectionBuy}, Bars: session, Session: session},
			wantReason: "Exhaustion check skipped (no ATR or session bars)",
		},
	}

	g := NewExhaustionGate(gateConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Check(tt.in)
			assert.Equal(t, tt.wantAllow, v.Allowed)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, v.Reason)
			}
		})
	}
}

func TestTimeRegimeGate(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		regime    domain.RegimeLabel
		wantAllow bool
	}{
		{"before cutoff degraded", at(12, 30), domain.RegimeRotational, true},
		{"after cutoff degraded", at(12, 31), domain.RegimeRotational, false},
		{"after cutoff healthy", at(13, 0), domain.RegimeNormalTrend, true},
		{"after cutoff early fade", at(13, 0), domain.RegimeEarlyImpulseFade, false},
	}

	g := NewTimeRegimeGate(gateConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Check(Input{Now: tt.now, Regime: tt.regime})
			assert.Equal(t, tt.wantAllow, v.Allowed)
			if !v.Allowed {
				assert.Equal(t, "Post 12:30 + Day Type = "+tt.regime.String(), v.Reason)
			}
		})
	}
}

func TestCompressionGate(t *testing.T) {
	pinned := make([]float64, 20)
	for i := range pinned {
		pinned[i] = 55
	}
	escaped := append([]float64(nil), pinned...)
	escaped[15] = 65

	overlapping := domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 6)).Flat(20, 22000, 10).Bars()
	trending := domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 6)).Trend(20, 22000, 5, 4).Bars()

	tests := []struct {
		name       string
		bars       []domain.Bar
		rsi        []float64
		wantAllow  bool
		wantReason string
	}{
		{"pinned rsi with overlap", overlapping, pinned, false, "RSI compression + candle overlap (No momentum)"},
		{"rsi left the band", overlapping, escaped, true, ""},
		{"pinned rsi but trending bars", trending, pinned, true, ""},
		{"too few bars", overlapping[:10], pinned[:10], true, "Compression check skipped (not enough bars)"},
	}

	g := NewCompressionGate(gateConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Check(Input{Bars: tt.bars, Snapshot: &indicators.Snapshot{RSISeries: tt.rsi}})
			assert.Equal(t, tt.wantAllow, v.Allowed)
			assert.Equal(t, tt.wantReason, v.Reason)
		})
	}
}

func TestPermissionGate(t *testing.T) {
	g := NewPermissionGate(policy.DefaultMatrix())

	v := g.Check(Input{
		Signal:     domain.Signal{Category: domain.CategoryModeF},
		Regime:     domain.RegimeEarlyImpulseFade,
		Now:        at(11, 0),
		Admissions: noAdmissions{},
	})
	require.False(t, v.Allowed)
	assert.Equal(t, "MODE_F blocked (Day Type: EARLY_IMPULSE_FADE)", v.Reason)

	v = g.Check(Input{
		Signal:     domain.Signal{Category: domain.CategoryModeF},
		Regime:     domain.RegimeCleanTrend,
		Now:        at(11, 0),
		Admissions: noAdmissions{},
	})
	assert.True(t, v.Allowed)
}

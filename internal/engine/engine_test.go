package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/rijin-bot/internal/ai"
	"github.com/kirillm/rijin-bot/internal/breakers"
	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/domain/domaintest"
	"github.com/kirillm/rijin-bot/internal/phase"
	"github.com/kirillm/rijin-bot/internal/regime"
	"github.com/kirillm/rijin-bot/internal/signal"
)

type fixedClassifier domain.RegimeLabel

func (f fixedClassifier) Classify(regime.Input) regime.Classification {
	return regime.Classification{Label: domain.RegimeLabel(f), Reason: "fixed"}
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Notify(_ context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func (s *recordingSink) last(kind domain.EventKind) (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i], true
		}
	}
	return domain.Event{}, false
}

type stubFilter struct {
	verdict *ai.QualityVerdict
	err     error
	calls   int
}

func (f *stubFilter) Evaluate(context.Context, ai.MarketContext, domain.Signal) (*ai.QualityVerdict, error) {
	f.calls++
	return f.verdict, f.err
}

func newTestEngine(t *testing.T, deps Deps) (*Engine, *recordingSink) {
	t.Helper()
	if deps.Thresholds == nil {
		deps.Thresholds = config.DefaultThresholds()
	}
	if deps.Classifier == nil {
		deps.Classifier = fixedClassifier(domain.RegimeCleanTrend)
	}
	sink := &recordingSink{}
	deps.Sink = sink

	e, err := New(domain.InstrumentNifty, deps)
	require.NoError(t, err)
	return e, sink
}

// feed прогоняет бары from..to включительно, каждый через 5 минут после открытия
func feed(t *testing.T, e *Engine, bars []domain.Bar, from, to int) *CycleResult {
	t.Helper()
	var res *CycleResult
	for i := from; i <= to; i++ {
		var err error
		res, err = e.ProcessBars(context.Background(), bars[:i+1], bars[i].Time.Add(5*time.Minute))
		require.NoError(t, err)
	}
	return res
}

func buy(entry, stop, target float64) domain.Signal {
	return domain.Signal{
		Instrument: domain.InstrumentNifty,
		Category:   domain.CategoryModeF,
		Direction:  domain.DirectionBuy,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Pattern:    "GEAR_1_TREND",
		RiskR:      1,
	}
}

// impulseDay: вчерашний флэт с ATR 20, сегодня импульс из двух баров и медленный дрейф
func impulseDay() (bars []domain.Bar, history int) {
	prev := domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 7)).Flat(20, 22000, 20).Bars()

	b := domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 8)).
		OHLC(22000, 22007, 21994, 22006).
		OHLC(22006, 22014, 22001, 22013)
	price := 22013.0
	for i := 0; i < 8; i++ {
		open, close := price, price+0.1
		b.OHLC(open, close+2, open-2, close)
		price = close
	}
	return append(prev, b.Bars()...), len(prev)
}

// extend добавляет n баров, доводящих цену до close за n шагов
func extend(bars []domain.Bar, n int, target float64) []domain.Bar {
	last := bars[len(bars)-1]
	b := domaintest.NewBuilder(last.Time.Add(5 * time.Minute))
	price := last.Close
	step := (target - price) / float64(n)
	for i := 0; i < n; i++ {
		open, close := price, price+step
		b.OHLC(open, close+1, open-1, close)
		price = close
	}
	return append(bars, b.Bars()...)
}

func TestEngine_ImpulsePhaseLifecycle(t *testing.T) {
	e, sink := newTestEngine(t, Deps{})
	bars, history := impulseDay()
	ctx := context.Background()

	res := feed(t, e, bars, history, history)
	assert.True(t, res.SessionStarted)
	assert.False(t, res.Impulse)

	res = feed(t, e, bars, history+1, history+1)
	assert.True(t, res.Impulse)

	st := e.Status()
	require.NotNil(t, st.Impulse)
	assert.Equal(t, 21994.0, st.Impulse.Origin)
	assert.Equal(t, domain.DirectionBuy, st.Impulse.Direction)
	assert.InDelta(t, 18.2578, st.Impulse.ATR, 0.01)

	feed(t, e, bars, history+2, len(bars)-1)
	assert.Equal(t, domain.RegimeCleanTrend, e.Status().Regime)

	now := bars[len(bars)-1].Time.Add(5 * time.Minute)
	entry := bars[len(bars)-1].Close
	d, err := e.Evaluate(ctx, buy(entry, entry-10, entry+10), now)
	require.NoError(t, err)
	require.True(t, d.Admitted, d.Verdict.Reason)
	assert.Equal(t, phase.PhaseEarly, d.Phase)
	assert.InDelta(t, 1.08, d.Expansion, 0.01)
	assert.Equal(t, decimal.NewFromInt(100), d.Trade.Quantity)
	assert.Equal(t, []string{
		domain.GateSessionStop, domain.GatePhase,
		domain.GateExhaustion, domain.GateTimeRegime, domain.GateCompression, domain.GatePermission,
		domain.GateLossPause, domain.GateCorrelation,
	}, d.Evaluated)

	// второй кандидат при открытой сделке не проверяется
	d, err = e.Evaluate(ctx, buy(entry, entry-10, entry+10), now)
	require.NoError(t, err)
	assert.Equal(t, domain.GateActiveTrade, d.Verdict.Gate)

	imp := e.Status().Impulse
	bars = extend(bars, 8, imp.Origin+2.5*imp.ATR)
	feed(t, e, bars, len(bars)-8, len(bars)-1)
	assert.Nil(t, e.Status().ActiveTrade)
	closed, ok := sink.last(domain.EventTradeClosed)
	require.True(t, ok)
	assert.Equal(t, domain.ExitTarget, closed.Closed.Exit)
	assert.InDelta(t, 1.0, closed.Closed.PnLR, 1e-9)
	assert.InDelta(t, 1.0, e.Status().DailyR, 1e-9)

	now = bars[len(bars)-1].Time.Add(5 * time.Minute)
	entry = bars[len(bars)-1].Close
	for i := 0; i < 3; i++ {
		d, err = e.Evaluate(ctx, buy(entry, entry-10, entry+10), now)
		require.NoError(t, err)
		assert.False(t, d.Admitted)
		assert.Equal(t, domain.GatePhase, d.Verdict.Gate)
		assert.Equal(t, phase.PhaseLate, d.Phase)
		assert.Contains(t, d.Verdict.Reason, "LATE phase")
	}

	// три отказа подряд останавливают сессию
	d, err = e.Evaluate(ctx, buy(entry, entry-10, entry+10), now)
	require.NoError(t, err)
	assert.Equal(t, domain.GateSessionStop, d.Verdict.Gate)
	assert.Equal(t, "System stopped: 3 consecutive execution blocks", d.Verdict.Reason)
	assert.True(t, e.Status().Stop.Stopped)
	assert.Contains(t, sink.kinds(), domain.EventSessionStopped)
}

// zigzag: чередование баров с ATR ровно 10 и без внутренних баров
func zigzag(b *domaintest.Builder, n int) *domaintest.Builder {
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			b.OHLC(21998, 22005, 21995, 22002)
		} else {
			b.OHLC(22004, 22007, 21997, 22000)
		}
	}
	return b
}

func zigzagDay() (bars []domain.Bar, history int) {
	prev := zigzag(domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 7)), 20).Bars()
	today := zigzag(domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 8)), 40).Bars()
	return append(prev, today...), len(prev)
}

func TestEngine_LossPauseAndCorrelation(t *testing.T) {
	cfg := config.DefaultThresholds()
	brake := breakers.NewCorrelationBrake(cfg.Correlation, breakers.NewMemoryStore(),
		[][]string{{domain.InstrumentNifty, domain.InstrumentSensex}})
	e, sink := newTestEngine(t, Deps{Thresholds: cfg, Brake: brake})
	bars, history := zigzagDay()
	ctx := context.Background()

	at := func(i int) time.Time { return bars[i].Time.Add(5 * time.Minute) }
	sig := buy(22000, 21996, 22030)

	// 09:15..10:00
	last := history + 9
	feed(t, e, bars, history, last)

	d, err := e.Evaluate(ctx, sig, at(last))
	require.NoError(t, err)
	require.True(t, d.Admitted, d.Verdict.Reason)
	assert.Equal(t, decimal.NewFromInt(250), d.Trade.Quantity)

	last++
	res := feed(t, e, bars, last, last)
	require.NotNil(t, res.Closed)
	assert.Equal(t, domain.ExitStopLoss, res.Closed.Exit)
	assert.Equal(t, 1, e.Status().Loss.ConsecutiveLosses)

	d, err = e.Evaluate(ctx, sig, at(last))
	require.NoError(t, err)
	require.True(t, d.Admitted, d.Verdict.Reason)

	res = feed(t, e, bars, last+1, last+2)
	last += 2
	require.NotNil(t, res.Closed)
	assert.InDelta(t, -1.0, res.Closed.PnLR, 1e-9)
	assert.True(t, res.Closed.PnL.Equal(decimal.NewFromInt(-1000)))

	st := e.Status()
	assert.Equal(t, 2, st.Loss.ConsecutiveLosses)
	assert.Equal(t, at(last).Add(time.Hour), st.Loss.PausedUntil)
	assert.InDelta(t, -2.0, st.DailyR, 1e-9)

	d, err = e.Evaluate(ctx, sig, at(last))
	require.NoError(t, err)
	assert.Equal(t, domain.GateLossPause, d.Verdict.Gate)
	assert.Equal(t, "Paused for 60 more minutes (consecutive loss protection)", d.Verdict.Reason)
	assert.Equal(t, 0, e.Status().ConsecutiveBlocks)

	// тормоз корреляции блокирует только соседей
	v, _ := brake.Check(ctx, domain.InstrumentSensex, at(last))
	assert.False(t, v.Allowed)
	v, _ = brake.Check(ctx, domain.InstrumentNifty, at(last))
	assert.True(t, v.Allowed)
	trig, ok := sink.last(domain.EventBreakerTriggered)
	require.True(t, ok)
	assert.Equal(t, domain.GateCorrelation, trig.Gate)

	for at(last).Before(st.Loss.PausedUntil) {
		last++
		feed(t, e, bars, last, last)
	}
	assert.Contains(t, sink.kinds(), domain.EventBreakerCleared)
	assert.True(t, e.Status().Loss.PausedUntil.IsZero())

	d, err = e.Evaluate(ctx, sig, at(last))
	require.NoError(t, err)
	assert.True(t, d.Admitted, d.Verdict.Reason)
}

func TestEngine_CorrelationBlockCleared(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultThresholds()
	store := breakers.NewMemoryStore()
	brake := breakers.NewCorrelationBrake(cfg.Correlation, store,
		[][]string{{domain.InstrumentNifty, domain.InstrumentSensex}})
	e, sink := newTestEngine(t, Deps{Thresholds: cfg, Brake: brake})
	bars, history := zigzagDay()

	until := bars[history+3].Time.Add(5 * time.Minute)
	require.NoError(t, store.Block(ctx, domain.InstrumentNifty, until, bars[history].Time))

	feed(t, e, bars, history, history+2)
	assert.NotContains(t, sink.kinds(), domain.EventBreakerCleared)

	feed(t, e, bars, history+3, history+3)
	ev, ok := sink.last(domain.EventBreakerCleared)
	require.True(t, ok)
	assert.Equal(t, domain.GateCorrelation, ev.Gate)
	assert.Equal(t, "Correlation block expired", ev.Message)

	_, blocked, err := store.BlockedUntil(ctx, domain.InstrumentNifty)
	require.NoError(t, err)
	assert.False(t, blocked)

	feed(t, e, bars, history+4, history+4)
	cleared := 0
	for _, k := range sink.kinds() {
		if k == domain.EventBreakerCleared {
			cleared++
		}
	}
	assert.Equal(t, 1, cleared)
}

func TestEngine_AIFilter(t *testing.T) {
	bars, history := zigzagDay()
	sig := buy(22000, 21996, 22030)
	now := bars[history+9].Time.Add(5 * time.Minute)

	t.Run("restrict rejects", func(t *testing.T) {
		filter := &stubFilter{verdict: &ai.QualityVerdict{
			Decision: ai.DecisionRestrict, Confidence: 80, Reasons: []string{"late in leg", "weak close"},
		}}
		e, _ := newTestEngine(t, Deps{Filter: filter})
		feed(t, e, bars, history, history+9)

		d, err := e.Evaluate(context.Background(), sig, now)
		require.NoError(t, err)
		assert.False(t, d.Admitted)
		assert.Equal(t, domain.GateAIFilter, d.Verdict.Gate)
		assert.Equal(t, "AI RESTRICT (80%): late in leg; weak close", d.Verdict.Reason)
		assert.Equal(t, 1, e.Status().ConsecutiveBlocks)
	})

	t.Run("error fails open", func(t *testing.T) {
		filter := &stubFilter{err: errors.New("groq down")}
		e, sink := newTestEngine(t, Deps{Filter: filter})
		feed(t, e, bars, history, history+9)

		d, err := e.Evaluate(context.Background(), sig, now)
		require.NoError(t, err)
		assert.True(t, d.Admitted)
		assert.Contains(t, d.Notes, "AI filter unavailable (fail-open)")
		assert.Equal(t, 1, filter.calls)

		ev, ok := sink.last(domain.EventSignalAdmitted)
		require.True(t, ok)
		assert.Contains(t, ev.Message, "AI filter unavailable")
	})
}

func TestEngine_InvalidSignal(t *testing.T) {
	e, _ := newTestEngine(t, Deps{})
	bars, history := zigzagDay()
	now := bars[history+9].Time.Add(5 * time.Minute)

	_, err := e.Evaluate(context.Background(), buy(22000, 21996, 22030), now)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	feed(t, e, bars, history, history+9)

	d, err := e.Evaluate(context.Background(), buy(22000, 22010, 22030), now)
	require.NoError(t, err)
	assert.Equal(t, domain.GateSignal, d.Verdict.Gate)
	assert.Equal(t, 0, e.Status().ConsecutiveBlocks)
}

func TestEngine_SourceAndSessionReset(t *testing.T) {
	proposals := 0
	src := signal.SourceFunc(func(bars []domain.Bar, mctx signal.Context) *domain.Signal {
		if mctx.Regime == domain.RegimeUnknown {
			return nil
		}
		proposals++
		s := buy(22000, 21990, 22030)
		return &s
	})
	e, sink := newTestEngine(t, Deps{Source: src})
	bars, history := zigzagDay()

	res := feed(t, e, bars, history, history+6)
	assert.Nil(t, res.Decision)
	assert.Equal(t, 0, proposals)

	// 09:55: первая проверка типа дня в окне допуска 10:00
	res = feed(t, e, bars, history+7, history+7)
	require.NotNil(t, res.Classification)
	assert.True(t, res.RegimeChanged)
	require.NotNil(t, res.Decision)
	assert.True(t, res.Decision.Admitted, res.Decision.Verdict.Reason)
	assert.Equal(t, 1, proposals)

	// открытая сделка: источник не опрашивается
	feed(t, e, bars, history+8, history+8)
	assert.Equal(t, 1, proposals)
	require.NotNil(t, e.Status().ActiveTrade)

	next := zigzag(domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 9)), 2).Bars()
	all := append(append([]domain.Bar{}, bars[:history+9]...), next...)
	res = feed(t, e, all, len(all)-2, len(all)-2)
	assert.True(t, res.SessionStarted)

	st := e.Status()
	assert.Equal(t, domain.SessionDate(next[0].Time), st.Session)
	assert.Equal(t, domain.RegimeUnknown, st.Regime)
	assert.Nil(t, st.ActiveTrade)
	assert.Equal(t, 0, st.Admitted)
	assert.Equal(t, 0.0, st.DailyR)
	assert.Contains(t, sink.kinds(), domain.EventSessionStarted)
}

func TestEngine_SkipsStaleBars(t *testing.T) {
	e, _ := newTestEngine(t, Deps{})
	bars, history := zigzagDay()
	feed(t, e, bars, history, history+3)

	res, err := e.ProcessBars(context.Background(), bars[:history+4], bars[history+3].Time.Add(6*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	bad := append([]domain.Bar{}, bars[:history+5]...)
	bad[len(bad)-1].High = bad[len(bad)-1].Low - 1
	_, err = e.ProcessBars(context.Background(), bad, bad[len(bad)-1].Time.Add(5*time.Minute))
	assert.ErrorIs(t, err, domain.ErrMalformedBars)
}

func TestEngine_SpecialDayCutoff(t *testing.T) {
	cfg := config.DefaultThresholds()
	cfg.Session.TradingCutoff = domain.NewTimeOfDay(15, 0)
	e, _ := newTestEngine(t, Deps{Thresholds: cfg})

	// 2025-01-07 вторник, экспирация NIFTY
	bars := zigzag(domaintest.NewBuilder(domaintest.SessionStart(2025, 1, 7)), 70).Bars()
	res := feed(t, e, bars, 14, 14)
	assert.True(t, res.SessionStarted)
	assert.True(t, e.SpecialDay())

	// 14:40
	res = feed(t, e, bars, 64, 64)
	assert.False(t, res.PastCutoff)

	// 14:50 > 14:45
	res = feed(t, e, bars, 66, 66)
	assert.True(t, res.PastCutoff)
	assert.Nil(t, res.Decision)
}

func TestEngine_ForceClassification(t *testing.T) {
	e, err := New(domain.InstrumentSensex, Deps{})
	require.NoError(t, err)

	_, err = e.forceClassification(context.Background(), time.Now())
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	bars, history := zigzagDay()
	feed(t, e, bars, history, history+2)

	c, err := e.forceClassification(context.Background(), bars[history+2].Time.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeUnknown, c.Label)
	assert.Equal(t, domain.RegimeUnknown, e.Status().Regime)
}

type countingClassifier struct {
	calls int
}

func (c *countingClassifier) Classify(regime.Input) regime.Classification {
	c.calls++
	return regime.Classification{Label: domain.RegimeNormalTrend, Reason: "counted"}
}

func TestEngine_RequestRecheck(t *testing.T) {
	classifier := &countingClassifier{}
	e, _ := newTestEngine(t, Deps{Classifier: classifier})
	bars, history := zigzagDay()

	// до 10:00 плановых проверок нет
	feed(t, e, bars, history, history+2)
	assert.Equal(t, 0, classifier.calls)

	e.RequestRecheck()
	res := feed(t, e, bars, history+3, history+3)
	assert.Equal(t, 1, classifier.calls)
	require.NotNil(t, res.Classification)
	assert.Equal(t, domain.RegimeNormalTrend, e.Status().Regime)

	feed(t, e, bars, history+4, history+4)
	assert.Equal(t, 1, classifier.calls)
}

type switchClassifier struct {
	label domain.RegimeLabel
	calls int
}

func (c *switchClassifier) Classify(regime.Input) regime.Classification {
	c.calls++
	return regime.Classification{Label: c.label, Reason: "switched"}
}

func TestEngine_NoClassificationWhileTradeOpen(t *testing.T) {
	classifier := &switchClassifier{label: domain.RegimeNormalTrend}
	proposed := false
	src := signal.SourceFunc(func([]domain.Bar, signal.Context) *domain.Signal {
		if proposed {
			return nil
		}
		proposed = true
		s := buy(22000, 21990, 22030)
		return &s
	})
	e, _ := newTestEngine(t, Deps{Classifier: classifier, Source: src})
	bars, history := zigzagDay()

	// 09:55: первая проверка и допуск сделки
	res := feed(t, e, bars, history, history+7)
	require.NotNil(t, res.Decision)
	require.True(t, res.Decision.Admitted, res.Decision.Verdict.Reason)
	require.Equal(t, 1, classifier.calls)

	classifier.label = domain.RegimeRangeChoppy
	e.RequestRecheck()

	res = feed(t, e, bars, history+8, history+8)
	assert.Nil(t, res.Classification)
	assert.False(t, res.Stopped)
	assert.Equal(t, 1, classifier.calls)

	st := e.Status()
	require.NotNil(t, st.ActiveTrade)
	assert.Equal(t, domain.RegimeNormalTrend, st.Regime)
	assert.True(t, e.recheck.Load(), "recheck stays pending while the trade is open")

	// бар закрывает сделку по цели; отложенная проверка выполняется в том же цикле
	all := extend(bars[:history+9], 1, 22040)
	res = feed(t, e, all, len(all)-1, len(all)-1)
	require.NotNil(t, res.Closed)
	assert.Equal(t, domain.ExitTarget, res.Closed.Exit)
	require.NotNil(t, res.Classification)
	assert.Equal(t, 2, classifier.calls)
	assert.Equal(t, domain.RegimeRangeChoppy, e.Status().Regime)
	assert.False(t, e.recheck.Load())
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", Deps{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	cfg := config.DefaultThresholds()
	cfg.Session.ExpiryWeekdays = map[string]string{domain.InstrumentNifty: "Funday"}
	_, err = New(domain.InstrumentNifty, Deps{Thresholds: cfg})
	assert.Error(t, err)
}

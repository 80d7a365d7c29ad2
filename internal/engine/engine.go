package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/rijin-bot/internal/ai"
	"github.com/kirillm/rijin-bot/internal/breakers"
	"github.com/kirillm/rijin-bot/internal/config"
	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/gates"
	"github.com/kirillm/rijin-bot/internal/impulse"
	"github.com/kirillm/rijin-bot/internal/indicators"
	"github.com/kirillm/rijin-bot/internal/notify"
	"github.com/kirillm/rijin-bot/internal/phase"
	"github.com/kirillm/rijin-bot/internal/policy"
	"github.com/kirillm/rijin-bot/internal/regime"
	"github.com/kirillm/rijin-bot/internal/signal"
	"github.com/kirillm/rijin-bot/pkg/utils"
)

// Classifier классификатор типа дня
type Classifier interface {
	Classify(in regime.Input) regime.Classification
}

// QualityFilter внешний фильтр качества сделки
type QualityFilter interface {
	Evaluate(ctx context.Context, mc ai.MarketContext, sig domain.Signal) (*ai.QualityVerdict, error)
}

// Deps зависимости движка одного инструмента
type Deps struct {
	Thresholds   *config.Thresholds
	Matrix       *policy.Matrix
	Classifier   Classifier                 // nil: regime.NewClassifier
	Brake        *breakers.CorrelationBrake // общий для всех инструментов
	Source       signal.Source              // nil: только проверки через Evaluate
	Filter       QualityFilter              // nil: без AI фильтра
	Sink         notify.Sink
	Metrics      Metrics
	Logger       *utils.Logger
	Capital      decimal.Decimal
	RiskPerTrade decimal.Decimal
}

// CycleResult итог обработки одного набора баров
type CycleResult struct {
	Instrument     string
	At             time.Time
	Bar            domain.Bar
	Skipped        bool // новых баров нет
	SessionStarted bool
	Impulse        bool
	Classification *regime.Classification
	RegimeChanged  bool
	Closed         *domain.ClosedTrade
	Stopped        bool
	PastCutoff     bool
	Decision       *Decision
}

// Engine пайплайн допуска сигналов одного инструмента.
// Все состояние сессии принадлежит одному циклу; блокировка нужна только для Status.
type Engine struct {
	instrument string
	cfg        *config.Thresholds
	logger     *utils.Logger
	sink       notify.Sink
	metrics    Metrics

	classifier Classifier
	machine    *regime.StateMachine
	schedule   *regime.Schedule
	tracker    *impulse.Tracker
	phase      *phase.Classifier
	chain      *gates.Chain
	source     signal.Source
	filter     QualityFilter
	loss       *breakers.LossBreaker
	brake      *breakers.CorrelationBrake
	stop       *breakers.StopMonitor

	capital   decimal.Decimal
	risk      decimal.Decimal
	expiryDay time.Weekday
	hasExpiry bool

	session     time.Time
	specialDay  bool
	bars        []domain.Bar
	sessionBars []domain.Bar
	snap        *indicators.Snapshot
	stats       *regime.SessionStats
	lastBar     time.Time
	trade       *domain.ActiveTrade
	tradeBar    time.Time
	admissions  *admissionLog
	dailyR      float64
	closed      int
	rejected    int

	recheck atomic.Bool

	mu     sync.RWMutex
	status Status
}

// New создает движок для инструмента
func New(instrument string, deps Deps) (*Engine, error) {
	if instrument == "" {
		return nil, fmt.Errorf("%w: instrument is required", domain.ErrInvalidInput)
	}
	cfg := deps.Thresholds
	if cfg == nil {
		cfg = config.DefaultThresholds()
	}
	matrix := deps.Matrix
	if matrix == nil {
		matrix = policy.DefaultMatrix()
	}
	logger := deps.Logger
	if logger == nil {
		logger = utils.Nop()
	}

	e := &Engine{
		instrument: instrument,
		cfg:        cfg,
		logger:     logger.With("instrument", instrument),
		sink:       deps.Sink,
		metrics:    deps.Metrics,
		classifier: deps.Classifier,
		machine:    regime.NewStateMachine(cfg.StateMachine),
		schedule:   regime.NewSchedule(cfg.Schedule),
		tracker:    impulse.NewTracker(cfg.Impulse),
		phase:      phase.NewClassifier(cfg.Phase),
		chain:      gates.NewDefaultChain(cfg.Gates, matrix),
		source:     deps.Source,
		filter:     deps.Filter,
		loss:       breakers.NewLossBreaker(cfg.LossBreaker),
		brake:      deps.Brake,
		stop:       breakers.NewStopMonitor(cfg.SessionStop, breakers.NewSessionStop()),
		capital:    deps.Capital,
		risk:       deps.RiskPerTrade,
		stats:      &regime.SessionStats{},
		admissions: newAdmissionLog(),
	}

	if e.sink == nil {
		e.sink = notify.Multi{}
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.classifier == nil {
		e.classifier = regime.NewClassifier(cfg.Regime)
	}
	if e.brake == nil {
		e.brake = breakers.NewCorrelationBrake(cfg.Correlation, breakers.NewMemoryStore(), nil)
	}
	if e.capital.IsZero() {
		e.capital = decimal.NewFromInt(100000)
	}
	if e.risk.IsZero() {
		e.risk = decimal.NewFromFloat(0.01)
	}
	if day, ok := cfg.Session.ExpiryWeekdays[instrument]; ok {
		wd, err := config.ParseWeekday(day)
		if err != nil {
			return nil, err
		}
		e.expiryDay, e.hasExpiry = wd, true
	}

	return e, nil
}

// Instrument инструмент движка
func (e *Engine) Instrument() string {
	return e.instrument
}

// ProcessBars прогоняет пайплайн по последнему закрытому бару.
// Ошибки данных означают пропуск цикла; ErrStateCorruption должен остановить цикл.
func (e *Engine) ProcessBars(ctx context.Context, bars []domain.Bar, now time.Time) (*CycleResult, error) {
	if err := indicators.ValidateBars(bars); err != nil {
		return nil, err
	}

	res := &CycleResult{Instrument: e.instrument, At: now}
	if day := domain.SessionDate(now); !day.Equal(e.session) {
		e.startSession(ctx, day, now)
		res.SessionStarted = true
	}

	last := bars[len(bars)-1]
	if !last.Time.After(e.lastBar) {
		res.Skipped = true
		return res, nil
	}

	snap, err := indicators.Compute(bars, e.cfg.Indicators)
	if err != nil {
		return nil, err
	}

	fresh := barsAfter(bars, e.lastBar)
	e.bars = bars
	e.sessionBars = barsOn(bars, e.session)
	e.snap = snap
	e.lastBar = last.Time
	e.stats.Update(e.sessionBars, snap)
	e.metrics.BarProcessed(e.instrument)
	res.Bar = last

	if len(e.sessionBars) >= 2 {
		if detected, dir, origin := e.tracker.Detect(bars, snap, last.Time); detected {
			res.Impulse = true
			e.logger.Info("⚡ %s impulse detected, origin %.2f", dir, origin)
			ev := e.event(domain.EventImpulseDetected, now)
			ev.Message = fmt.Sprintf("%s impulse from %.2f (ATR %.2f)", dir, origin, snap.ATR)
			e.emit(ctx, ev)
		}
	}

	e.checkLoss(ctx, now)
	if v := e.checkCorrelation(ctx, now); v.FailOpen {
		e.logger.Debug("%s", v.Reason)
	}

	if e.trade != nil {
		res.Closed = e.checkExit(ctx, fresh, now)
	}

	// одна сделка на инструмент: пока она открыта, тип дня не пересматривается и кандидаты не запрашиваются
	if e.trade != nil {
		return res, e.finish(now)
	}

	if err := e.classifyIfDue(ctx, now, res); err != nil {
		return res, err
	}
	if e.stop.Stop().IsStopped() {
		res.Stopped = true
		return res, e.finish(now)
	}
	if e.pastCutoff(now) {
		res.PastCutoff = true
		return res, e.finish(now)
	}

	if e.source != nil {
		if sig := e.source.Propose(bars, e.signalContext(now)); sig != nil {
			d, err := e.Evaluate(ctx, *sig, now)
			if err != nil {
				return res, err
			}
			res.Decision = d
		}
	}

	return res, e.finish(now)
}

// forceClassification внеплановая проверка типа дня по последним барам
func (e *Engine) forceClassification(ctx context.Context, now time.Time) (*regime.Classification, error) {
	if e.snap == nil {
		return nil, fmt.Errorf("%w: no bars processed", domain.ErrInsufficientData)
	}
	res := &CycleResult{}
	if err := e.runClassification(ctx, now, res); err != nil {
		return nil, err
	}
	e.publish(now)
	return res.Classification, nil
}

// RequestRecheck ставит внеплановую проверку типа дня на ближайший цикл без открытой сделки; безопасен из других горутин
func (e *Engine) RequestRecheck() {
	e.recheck.Store(true)
}

func (e *Engine) classifyIfDue(ctx context.Context, now time.Time, res *CycleResult) error {
	due := e.recheck.Swap(false) || e.schedule.Due(now)
	if !due && e.schedule.LastRun().IsZero() {
		// запуск посреди дня: первая проверка не ждет следующего слота
		tod := domain.TimeOfDayOf(now)
		due = tod >= e.cfg.Schedule.First && tod <= e.cfg.Schedule.Last
	}
	if !due {
		return nil
	}
	return e.runClassification(ctx, now, res)
}

func (e *Engine) runClassification(ctx context.Context, now time.Time, res *CycleResult) error {
	c := e.classifier.Classify(regime.Input{
		Bars:       e.bars,
		Session:    e.sessionBars,
		Snapshot:   e.snap,
		Stats:      e.stats,
		SpecialDay: e.specialDay,
		Now:        domain.TimeOfDayOf(now),
	})
	res.Classification = &c
	if c.Label != domain.RegimeUnknown {
		e.schedule.MarkRun(now)
	}

	previous := e.machine.Current()
	changed, msg := e.machine.Update(c.Label, c.Reason, now)
	if err := e.machine.Verify(); err != nil {
		e.logger.Error("❌ Regime state corrupted: %v", err)
		return err
	}
	e.logger.Debug("Day type check: %s (%s), current %s", c.Label, c.Reason, e.machine.Current())
	if !changed {
		return nil
	}

	res.RegimeChanged = true
	current := e.machine.Current()
	e.metrics.RegimeChanged(e.instrument, current.String(), current.Severity())
	e.logger.Warn("⚠️ %s: %s -> %s (%s)", msg, previous, current, c.Reason)

	ev := e.event(domain.EventRegimeDowngraded, now)
	ev.Message = msg
	ev.Reason = c.Reason
	e.emit(ctx, ev)

	if triggered, reason := e.stop.ObserveRegime(current, now); triggered {
		e.sessionStopped(ctx, reason, now)
	}
	return nil
}

// startSession сбрасывает все состояние инструмента на границе торгового дня
func (e *Engine) startSession(ctx context.Context, day, now time.Time) {
	if e.trade != nil {
		e.logger.Warn("⚠️ Dropping trade %s carried over from %s", e.trade.ID, e.session.Format("2006-01-02"))
	}

	e.session = day
	e.specialDay = e.hasExpiry && day.Weekday() == e.expiryDay
	e.bars, e.sessionBars, e.snap = nil, nil, nil
	e.stats = &regime.SessionStats{}
	e.trade = nil
	e.tradeBar = time.Time{}
	e.dailyR, e.closed, e.rejected = 0, 0, 0
	e.admissions = newAdmissionLog()

	e.tracker.Reset()
	e.machine.Reset()
	e.schedule.Reset()
	e.loss.Reset()
	e.stop.Reset()
	e.metrics.SessionStopped(e.instrument, false)

	e.logger.Info("🌅 New session %s (special day: %v)", day.Format("2006-01-02"), e.specialDay)
	ev := e.event(domain.EventSessionStarted, now)
	ev.SpecialDay = e.specialDay
	e.emit(ctx, ev)
}

// SpecialDay текущая сессия приходится на день экспирации
func (e *Engine) SpecialDay() bool {
	return e.specialDay
}

func (e *Engine) pastCutoff(now time.Time) bool {
	tod := domain.TimeOfDayOf(now)
	if tod > e.cfg.Session.TradingCutoff {
		return true
	}
	return e.specialDay && tod > e.cfg.Session.SpecialDayNoEntryAfter
}

func (e *Engine) signalContext(now time.Time) signal.Context {
	return signal.Context{
		Instrument: e.instrument,
		Now:        now,
		Session:    e.sessionBars,
		Snapshot:   e.snap,
		Regime:     e.machine.Current(),
		SpecialDay: e.specialDay,
		Admissions: e.admissions,
	}
}

// checkLoss проверяет паузу и сообщает о ее снятии
func (e *Engine) checkLoss(ctx context.Context, now time.Time) domain.GateVerdict {
	v, cleared := e.loss.Check(now)
	if cleared {
		e.logger.Info("✅ Loss pause cleared, trading resumed")
		ev := e.event(domain.EventBreakerCleared, now)
		ev.Gate = domain.GateLossPause
		ev.Message = "Consecutive loss pause expired"
		e.emit(ctx, ev)
	}
	return v
}

// checkCorrelation проверяет тормоз корреляции; о снятии истекшей блокировки сообщает один раз
func (e *Engine) checkCorrelation(ctx context.Context, now time.Time) domain.GateVerdict {
	v, cleared := e.brake.Check(ctx, e.instrument, now)
	if cleared {
		e.logger.Info("✅ Correlation brake cleared, trading resumed")
		ev := e.event(domain.EventBreakerCleared, now)
		ev.Gate = domain.GateCorrelation
		ev.Message = "Correlation block expired"
		e.emit(ctx, ev)
	}
	return v
}

func (e *Engine) sessionStopped(ctx context.Context, reason string, now time.Time) {
	e.logger.Warn("🚨 Session stopped: %s", reason)
	e.metrics.BreakerTripped(e.instrument, domain.GateSessionStop)
	e.metrics.SessionStopped(e.instrument, true)

	ev := e.event(domain.EventSessionStopped, now)
	ev.Gate = domain.GateSessionStop
	ev.Reason = reason
	e.emit(ctx, ev)
}

// NotifyStarted сообщает о запуске цикла инструмента
func (e *Engine) NotifyStarted(ctx context.Context, now time.Time, message string) {
	ev := e.event(domain.EventEngineStarted, now)
	ev.Message = message
	e.emit(ctx, ev)
}

// NotifyStopped сообщает об остановке цикла инструмента
func (e *Engine) NotifyStopped(ctx context.Context, now time.Time, reason string) {
	ev := e.event(domain.EventEngineStopped, now)
	ev.Reason = reason
	e.emit(ctx, ev)
}

func (e *Engine) event(kind domain.EventKind, now time.Time) domain.Event {
	ev := domain.NewEvent(kind, e.instrument, now)
	ev.Regime = e.machine.Current()
	ev.DailyR = e.dailyR
	return ev
}

// emit отправляет событие; ошибка получателя не влияет на пайплайн
func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	if err := e.sink.Notify(ctx, ev); err != nil {
		e.logger.Warn("⚠️ Failed to deliver %s event: %v", ev.Kind, err)
	}
}

// finish проверяет инварианты и публикует снимок состояния
func (e *Engine) finish(now time.Time) error {
	if err := e.machine.Verify(); err != nil {
		return err
	}
	e.publish(now)
	return nil
}

// barsAfter бары строго позже t
func barsAfter(bars []domain.Bar, t time.Time) []domain.Bar {
	i := len(bars)
	for i > 0 && bars[i-1].Time.After(t) {
		i--
	}
	return bars[i:]
}

// barsOn бары торговой сессии day
func barsOn(bars []domain.Bar, day time.Time) []domain.Bar {
	i := len(bars)
	for i > 0 && domain.SessionDate(bars[i-1].Time).Equal(day) {
		i--
	}
	return bars[i:]
}

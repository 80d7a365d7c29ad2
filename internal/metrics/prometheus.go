package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder метрики пайплайна в Prometheus
type Recorder struct {
	barsProcessed  *prometheus.CounterVec
	gateRejections *prometheus.CounterVec
	admissions     *prometheus.CounterVec
	breakerTrips   *prometheus.CounterVec
	regimeChanges  *prometheus.CounterVec
	tradesClosed   *prometheus.CounterVec
	aiFailOpen     prometheus.Counter
	feedErrors     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	regimeSeverity *prometheus.GaugeVec
	sessionStopped *prometheus.GaugeVec
}

// New регистрирует метрики в reg; nil означает prometheus.DefaultRegisterer
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		barsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rijin_bars_processed_total",
				Help: "Bars processed by the pipeline",
			},
			[]string{"instrument"},
		),
		gateRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rijin_gate_rejections_total",
				Help: "Candidate signals rejected, by gate",
			},
			[]string{"instrument", "gate"},
		),
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rijin_admissions_total",
				Help: "Candidate signals admitted, by category",
			},
			[]string{"instrument", "category"},
		),
		breakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rijin_breaker_trips_total",
				Help: "Breaker activations",
			},
			[]string{"instrument", "breaker"},
		),
		regimeChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rijin_regime_downgrades_total",
				Help: "Committed day type transitions",
			},
			[]string{"instrument", "label"},
		),
		tradesClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rijin_trades_closed_total",
				Help: "Paper trades closed, by exit type",
			},
			[]string{"instrument", "exit"},
		),
		aiFailOpen: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rijin_ai_fail_open_total",
				Help: "AI filter calls that failed open to ACCEPT",
			},
		),
		feedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rijin_feed_errors_total",
				Help: "Market data fetch failures",
			},
			[]string{"instrument"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rijin_external_call_duration_seconds",
				Help:    "Duration of external calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		regimeSeverity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rijin_regime_severity",
				Help: "Severity rank of the current day type",
			},
			[]string{"instrument"},
		),
		sessionStopped: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rijin_session_stopped",
				Help: "1 when the session stop is active",
			},
			[]string{"instrument"},
		),
	}
}

func (r *Recorder) BarProcessed(instrument string) {
	r.barsProcessed.WithLabelValues(instrument).Inc()
}

func (r *Recorder) GateRejected(instrument, gate string) {
	r.gateRejections.WithLabelValues(instrument, gate).Inc()
}

func (r *Recorder) SignalAdmitted(instrument, category string) {
	r.admissions.WithLabelValues(instrument, category).Inc()
}

func (r *Recorder) BreakerTripped(instrument, breaker string) {
	r.breakerTrips.WithLabelValues(instrument, breaker).Inc()
}

// RegimeChanged фиксирует переход и текущую тяжесть
func (r *Recorder) RegimeChanged(instrument, label string, severity int) {
	r.regimeChanges.WithLabelValues(instrument, label).Inc()
	r.regimeSeverity.WithLabelValues(instrument).Set(float64(severity))
}

func (r *Recorder) TradeClosed(instrument, exit string) {
	r.tradesClosed.WithLabelValues(instrument, exit).Inc()
}

func (r *Recorder) SessionStopped(instrument string, stopped bool) {
	v := 0.0
	if stopped {
		v = 1
	}
	r.sessionStopped.WithLabelValues(instrument).Set(v)
}

func (r *Recorder) AIFailOpen() {
	r.aiFailOpen.Inc()
}

func (r *Recorder) FeedError(instrument string) {
	r.feedErrors.WithLabelValues(instrument).Inc()
}

// ObserveLatency записывает длительность внешнего вызова
func (r *Recorder) ObserveLatency(target string, d time.Duration) {
	r.latency.WithLabelValues(target).Observe(d.Seconds())
}

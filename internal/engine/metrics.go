package engine

// Metrics счетчики пайплайна; реализуется metrics.Recorder
type Metrics interface {
	BarProcessed(instrument string)
	GateRejected(instrument, gate string)
	SignalAdmitted(instrument, category string)
	BreakerTripped(instrument, breaker string)
	RegimeChanged(instrument, label string, severity int)
	TradeClosed(instrument, exit string)
	SessionStopped(instrument string, stopped bool)
}

type nopMetrics struct{}

func (nopMetrics) BarProcessed(string)               {}
func (nopMetrics) GateRejected(string, string)       {}
func (nopMetrics) SignalAdmitted(string, string)     {}
func (nopMetrics) BreakerTripped(string, string)     {}
func (nopMetrics) RegimeChanged(string, string, int) {}
func (nopMetrics) TradeClosed(string, string)        {}
func (nopMetrics) SessionStopped(string, bool)       {}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.BarProcessed("NIFTY")
	r.BarProcessed("NIFTY")
	r.GateRejected("NIFTY", "phase")
	r.SignalAdmitted("SENSEX", "MODE_F")
	r.BreakerTripped("NIFTY", "loss_pause")
	r.RegimeChanged("NIFTY", "ROTATIONAL", 4)
	r.TradeClosed("NIFTY", "SL")
	r.SessionStopped("NIFTY", true)
	r.AIFailOpen()
	r.FeedError("SENSEX")
	r.ObserveLatency("kite", 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.barsProcessed.WithLabelValues("NIFTY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.gateRejections.WithLabelValues("NIFTY", "phase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.admissions.WithLabelValues("SENSEX", "MODE_F")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.regimeSeverity.WithLabelValues("NIFTY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionStopped.WithLabelValues("NIFTY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.aiFailOpen))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}

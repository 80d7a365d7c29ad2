package domain

import "time"

// Instruments
const (
	InstrumentNifty  = "NIFTY"
	InstrumentSensex = "SENSEX"
)

// Signal categories
const (
	CategoryModeF          = "MODE_F"
	CategoryModeSCore      = "MODE_S_CORE"
	CategoryModeSLiquidity = "MODE_S_LIQUIDITY"
	CategoryOpeningImpulse = "OPENING_IMPULSE"
)

// Gate names
const (
	GatePhase       = "phase"
	GateExhaustion  = "exhaustion"
	GateTimeRegime  = "time_regime"
	GateCompression = "compression"
	GatePermission  = "permission"
	GateLossPause   = "loss_pause"
	GateCorrelation = "correlation_brake"
	GateSessionStop = "session_stop"
	GateAIFilter    = "ai_filter"
	GateActiveTrade = "active_trade"
	GateSignal      = "signal"
)

// Market session (IST)
var (
	IST         = time.FixedZone("IST", 5*3600+30*60)
	MarketOpen  = NewTimeOfDay(9, 15)
	MarketClose = NewTimeOfDay(15, 30)
)

// Bar intervals (Kite naming)
const (
	Interval5Minute  = "5minute"
	Interval30Minute = "30minute"
)

package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/kirillm/rijin-bot/internal/domain"
)

// Formatter превращает события в HTML сообщения для Telegram
type Formatter struct{}

// NewFormatter создает форматтер
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format возвращает текст сообщения; пустая строка означает, что событие не отправляется
func (f *Formatter) Format(e domain.Event) string {
	var sb strings.Builder

	switch e.Kind {
	case domain.EventEngineStarted:
		sb.WriteString("🚀 <b>RIJIN STARTED</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		f.line(&sb, "INFO", e.Message)

	case domain.EventEngineStopped:
		sb.WriteString("🛑 <b>RIJIN STOPPED</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		f.line(&sb, "REASON", e.Reason)

	case domain.EventSessionStarted:
		sb.WriteString("🌅 <b>NEW SESSION</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		f.line(&sb, "DATE", e.At.In(domain.IST).Format("2006-01-02"))
		if e.SpecialDay {
			sb.WriteString("⚠️ Expiry day: reduced permissions\n")
		}

	case domain.EventImpulseDetected:
		sb.WriteString("⚡ <b>IMPULSE DETECTED</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		f.line(&sb, "DETAILS", e.Message)

	case domain.EventRegimeDowngraded:
		sb.WriteString("⚠️ <b>DAY TYPE UPDATE</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		f.line(&sb, "DAY TYPE", e.Regime.Title())
		f.line(&sb, "STATUS", e.Message)
		f.line(&sb, "REASON", e.Reason)

	case domain.EventSignalAdmitted:
		sb.WriteString("🟢 <b>SIGNAL ADMITTED</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		if e.Trade != nil {
			s := e.Trade.Signal
			f.line(&sb, "MODE", s.Category)
			f.line(&sb, "DIRECTION", string(s.Direction))
			sb.WriteString(fmt.Sprintf("ENTRY: %.2f | SL: %.2f | TARGET: %.2f\n", s.Entry, s.Stop, s.Target))
			f.line(&sb, "QTY", e.Trade.Quantity.String())
			f.line(&sb, "PATTERN", s.Pattern)
		}
		f.line(&sb, "DAY TYPE", e.Regime.String())
		f.line(&sb, "NOTE", e.Message)

	case domain.EventSignalRejected:
		sb.WriteString("⛔ <b>SIGNAL BLOCKED</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		if e.Signal != nil {
			f.line(&sb, "MODE", e.Signal.Category)
			f.line(&sb, "DIRECTION", string(e.Signal.Direction))
		}
		f.line(&sb, "GATE", e.Gate)
		f.line(&sb, "REASON", e.Reason)
		f.line(&sb, "DAY TYPE", e.Regime.String())

	case domain.EventTradeClosed:
		if e.Closed == nil {
			return ""
		}
		emoji := "✅"
		if e.Closed.IsLoss() {
			emoji = "❌"
		}
		sb.WriteString(fmt.Sprintf("%s <b>TRADE CLOSED: %s</b>\n\n", emoji, e.Closed.Exit))
		f.line(&sb, "INSTRUMENT", e.Instrument)
		sb.WriteString(fmt.Sprintf("Entry: %.2f\nExit: %.2f\n", e.Closed.Trade.Signal.Entry, e.Closed.ExitPrice))
		sb.WriteString(fmt.Sprintf("P&amp;L: <b>%+.2fR</b> (%s)\n", e.Closed.PnLR, e.Closed.PnL.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("Daily P&amp;L: %+.2fR\n", e.DailyR))

	case domain.EventBreakerTriggered:
		sb.WriteString("🛡️ <b>BREAKER TRIGGERED</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		f.line(&sb, "BREAKER", e.Gate)
		f.line(&sb, "REASON", e.Reason)
		f.line(&sb, "INFO", e.Message)

	case domain.EventBreakerCleared:
		sb.WriteString("✅ <b>Trading Resumed</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		f.line(&sb, "INFO", e.Message)

	case domain.EventSessionStopped:
		sb.WriteString("🚨 <b>SYSTEM STOPPED</b>\n\n")
		f.line(&sb, "INSTRUMENT", e.Instrument)
		f.line(&sb, "REASON", e.Reason)
		sb.WriteString("No new entries for the rest of the session.\n")

	default:
		return ""
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) line(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	sb.WriteString(label)
	sb.WriteString(": ")
	sb.WriteString(html.EscapeString(value))
	sb.WriteString("\n")
}

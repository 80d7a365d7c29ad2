package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/internal/engine"
)

// Controller доступ бота к движкам
type Controller interface {
	Status() []engine.Status
	RequestRecheck(instrument string) error
}

// RegisterCommands регистрирует команды только для чтения и /recheck для админов
func RegisterCommands(r *Router, ctrl Controller) {
	r.RegisterHandler(CmdStart, handleHelp)
	r.RegisterHandler(CmdHelp, handleHelp)
	r.RegisterHandler(CmdStatus, func(_ context.Context, args *CommandArgs) (string, error) {
		statuses, err := selectStatuses(ctrl.Status(), args.Instrument)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(statuses))
		for _, st := range statuses {
			parts = append(parts, formatStatus(st))
		}
		return strings.Join(parts, "\n\n"), nil
	})
	r.RegisterHandler(CmdBreakers, func(_ context.Context, args *CommandArgs) (string, error) {
		statuses, err := selectStatuses(ctrl.Status(), args.Instrument)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(statuses))
		for _, st := range statuses {
			parts = append(parts, formatBreakers(st))
		}
		return strings.Join(parts, "\n\n"), nil
	})
	r.RegisterAdminHandler(CmdRecheck, func(_ context.Context, args *CommandArgs) (string, error) {
		if args.Instrument == "" {
			return "", fmt.Errorf("usage: /recheck NIFTY")
		}
		if err := ctrl.RequestRecheck(args.Instrument); err != nil {
			return "", err
		}
		return fmt.Sprintf("🔄 Regime recheck queued for <b>%s</b> (runs on the next bar)", html.EscapeString(args.Instrument)), nil
	})
}

func handleHelp(context.Context, *CommandArgs) (string, error) {
	return `<b>rijin commands</b>

/status [INSTRUMENT] - regime, impulse, active trade and day totals
/breakers [INSTRUMENT] - loss pause, session stop, block counter
/recheck INSTRUMENT - run a regime check on the next bar (admin)
/help - this message`, nil
}

func selectStatuses(all []engine.Status, instrument string) ([]engine.Status, error) {
	if instrument == "" {
		if len(all) == 0 {
			return nil, fmt.Errorf("no instruments are running")
		}
		return all, nil
	}
	for _, st := range all {
		if st.Instrument == instrument {
			return []engine.Status{st}, nil
		}
	}
	return nil, fmt.Errorf("unknown instrument %s", instrument)
}

func formatStatus(st engine.Status) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 <b>%s</b>", html.EscapeString(st.Instrument))
	if st.SpecialDay {
		b.WriteString(" (expiry day)")
	}
	b.WriteString("\n")

	regime := st.Regime.Title()
	if st.RegimeState.Locked {
		regime += " 🔒"
	}
	fmt.Fprintf(&b, "Regime: %s\n", html.EscapeString(regime))

	if st.Impulse != nil {
		fmt.Fprintf(&b, "Impulse: %s from %.2f at %s\n",
			st.Impulse.Direction, st.Impulse.Origin, clockTime(st.Impulse.DetectedAt))
	} else {
		b.WriteString("Impulse: none\n")
	}

	if t := st.ActiveTrade; t != nil {
		fmt.Fprintf(&b, "Trade: %s %s x%s @ %.2f (SL %.2f, TP %.2f)\n",
			t.Signal.Direction, html.EscapeString(t.Signal.Category), t.Quantity.String(),
			t.Signal.Entry, t.Signal.Stop, t.Signal.Target)
	} else {
		b.WriteString("Trade: none\n")
	}

	fmt.Fprintf(&b, "Day: %d admitted, %d rejected, %d closed, %+.2fR\n",
		st.Admitted, st.Rejected, st.TradesClosed, st.DailyR)
	if !st.LastBar.IsZero() {
		fmt.Fprintf(&b, "Last bar: %s", clockTime(st.LastBar))
	} else {
		b.WriteString("Last bar: waiting for data")
	}
	return b.String()
}

func formatBreakers(st engine.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛡 <b>%s</b>\n", html.EscapeString(st.Instrument))

	if !st.Loss.PausedUntil.IsZero() && st.Loss.PausedUntil.After(st.UpdatedAt) {
		fmt.Fprintf(&b, "Loss pause: until %s (%d consecutive losses)\n", clockTime(st.Loss.PausedUntil), st.Loss.ConsecutiveLosses)
	} else {
		fmt.Fprintf(&b, "Loss pause: off (%d consecutive losses)\n", st.Loss.ConsecutiveLosses)
	}

	if st.Stop.Stopped {
		fmt.Fprintf(&b, "Session stop: ON since %s: %s\n", clockTime(st.Stop.StoppedAt), html.EscapeString(st.Stop.Reason))
	} else {
		b.WriteString("Session stop: off\n")
	}
	fmt.Fprintf(&b, "Consecutive blocks: %d", st.ConsecutiveBlocks)
	return b.String()
}

// clockTime время по IST
func clockTime(t time.Time) string {
	return t.In(domain.IST).Format("15:04")
}

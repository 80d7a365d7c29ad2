package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kirillm/rijin-bot/internal/clock"
	"github.com/kirillm/rijin-bot/internal/domain"
)

// Decision решение фильтра качества
type Decision string

const (
	DecisionAccept   Decision = "ACCEPT"
	DecisionRestrict Decision = "RESTRICT"
)

// MarketContext рыночный контекст, передаваемый фильтру
type MarketContext struct {
	Instrument    string  `json:"instrument"`
	Time          string  `json:"time"`
	Price         float64 `json:"price"`
	Regime        string  `json:"day_type"`
	Phase         string  `json:"phase"`
	Expansion     float64 `json:"expansion_atr"`
	RSI           float64 `json:"rsi"`
	ATR           float64 `json:"atr"`
	EMA20         float64 `json:"ema20"`
	PriceVsEMA    string  `json:"price_vs_ema"`
	VWAP          float64 `json:"vwap"`
	VWAPDistPct   float64 `json:"vwap_distance_pct"`
	SessionHigh   float64 `json:"session_high"`
	SessionLow    float64 `json:"session_low"`
	Structure     string  `json:"structure"`
	SpecialDay    bool    `json:"special_day"`
	SessionTrades int     `json:"session_trades"`
}

// SignalData сигнал в виде, понятном модели
type SignalData struct {
	Direction string  `json:"direction"`
	Entry     float64 `json:"entry"`
	SL        float64 `json:"sl"`
	RR        string  `json:"rr"`
	Setup     string  `json:"setup,omitempty"`
}

// QualityVerdict ответ фильтра
type QualityVerdict struct {
	Decision   Decision `json:"decision"`
	Confidence int      `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Restricts фильтр не рекомендует вход
func (v *QualityVerdict) Restricts() bool {
	return v != nil && v.Decision == DecisionRestrict
}

// QualityFilter оценивает качество сделки; не меняет направление, вход или стоп
type QualityFilter struct {
	client  *AIClient
	clk     clock.Clock
	backoff clock.Backoff
}

// NewQualityFilter создает фильтр; 429 повторяется 3 раза с паузой 2s, 4s
func NewQualityFilter(client *AIClient, clk clock.Clock) *QualityFilter {
	return &QualityFilter{
		client: client,
		clk:    clk,
		backoff: clock.Backoff{
			Attempts:  3,
			Base:      2 * time.Second,
			Retryable: IsRateLimited,
		},
	}
}

// NewSignalData переводит сигнал в формат промпта
func NewSignalData(sig domain.Signal) SignalData {
	direction := "LONG"
	if sig.Direction == domain.DirectionSell {
		direction = "SHORT"
	}

	rr := "1:0"
	if risk := sig.Risk(); risk > 0 {
		rr = fmt.Sprintf("1:%.0f", math.Abs(sig.Target-sig.Entry)/risk)
	}

	return SignalData{
		Direction: direction,
		Entry:     sig.Entry,
		SL:        sig.Stop,
		RR:        rr,
		Setup:     sig.Pattern,
	}
}

// Evaluate запрашивает оценку сделки
func (f *QualityFilter) Evaluate(ctx context.Context, mc MarketContext, sig domain.Signal) (*QualityVerdict, error) {
	req := ChatRequest{
		Messages: []Message{
			{Role: "system", Content: QualitySystemPrompt},
			{Role: "user", Content: buildQualityPrompt(mc, NewSignalData(sig))},
		},
		Temperature:    0.1,
		MaxTokens:      300,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	var text string
	err := f.backoff.Do(ctx, f.clk, func(ctx context.Context) error {
		var err error
		text, err = f.client.Chat(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAIFilter, err)
	}

	verdict, err := parseVerdict(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAIFilter, err)
	}
	return verdict, nil
}

type rawVerdict struct {
	Decision   string          `json:"decision"`
	Confidence json.Number     `json:"confidence"`
	Reasons    json.RawMessage `json:"reasons"`
}

// parseVerdict разбирает ответ; неизвестное решение считается ACCEPT, уверенность ограничена 0..100
func parseVerdict(text string) (*QualityVerdict, error) {
	text = strings.TrimSpace(extractJSON(text))

	var raw rawVerdict
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	v := &QualityVerdict{Decision: DecisionAccept, Confidence: 50}
	if d := Decision(strings.ToUpper(strings.TrimSpace(raw.Decision))); d == DecisionRestrict {
		v.Decision = d
	}
	if raw.Confidence != "" {
		if c, err := raw.Confidence.Float64(); err == nil {
			v.Confidence = int(math.Max(0, math.Min(100, c)))
		}
	}

	if len(raw.Reasons) > 0 {
		var list []string
		if err := json.Unmarshal(raw.Reasons, &list); err == nil {
			v.Reasons = list
		} else {
			var single string
			if err := json.Unmarshal(raw.Reasons, &single); err == nil {
				v.Reasons = []string{single}
			}
		}
	}

	return v, nil
}

// extractJSON извлекает JSON из markdown code block
func extractJSON(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	rest := text[start+3:]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "\n")

	end := strings.Index(rest, "```")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

// DescribeStructure описывает структуру последних баров как HH-HL, LH-LL и т.п.
func DescribeStructure(bars []domain.Bar) string {
	if len(bars) < 3 {
		return "Insufficient data"
	}

	hh, hl, lh, ll := true, true, true, true
	for i := 1; i < len(bars); i++ {
		hh = hh && bars[i].High >= bars[i-1].High
		hl = hl && bars[i].Low >= bars[i-1].Low
		lh = lh && bars[i].High <= bars[i-1].High
		ll = ll && bars[i].Low <= bars[i-1].Low
	}

	switch {
	case hh && hl:
		return "HH-HL continuation"
	case lh && ll:
		return "LH-LL continuation"
	case hh && ll:
		return "Expanding range"
	case lh && hl:
		return "Contracting range"
	case hh:
		return "Higher highs"
	case ll:
		return "Lower lows"
	default:
		return "Choppy / No structure"
	}
}

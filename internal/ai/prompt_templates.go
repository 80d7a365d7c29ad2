package ai

import (
	"encoding/json"
	"fmt"
)

// QualitySystemPrompt системный промпт фильтра качества
const QualitySystemPrompt = "You are an institutional intraday trade quality filter. Return ONLY valid JSON."

// buildQualityPrompt промпт оценки сделки: без прогнозов, только ACCEPT или RESTRICT
func buildQualityPrompt(mc MarketContext, sig SignalData) string {
	contextJSON, _ := json.MarshalIndent(mc, "", "  ")
	signalJSON, _ := json.MarshalIndent(sig, "", "  ")

	return fmt.Sprintf(`You are an institutional intraday trade quality filter.

Your role:
Evaluate whether the proposed trade aligns with current market structure and context.

IMPORTANT RULES:
- Do NOT predict market direction.
- Do NOT modify entry, SL, or RR.
- Do NOT generate a new trade.
- Do NOT explain market theory.
- Only evaluate trade quality.

You must return output strictly in this JSON format:
{
    "decision": "ACCEPT" or "RESTRICT",
    "confidence": 0-100,
    "reasons": ["reason 1", "reason 2", "reason 3"]
}

Evaluation Criteria:
- Is the trade aligned with primary trend?
- Is it late in an expansion leg?
- Is momentum supportive or exhausted?
- Is volatility expanding or fading?
- Is price overextended from VWAP or session extremes?
- Is this occurring during unstable transition phase?

Market Context:
%s

Proposed Signal:
%s`, string(contextJSON), string(signalJSON))
}

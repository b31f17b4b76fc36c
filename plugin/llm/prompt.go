package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/quorumtrade/quorum/core"
)

// policySystemPrompt pins the advisor to the one decision it owns and the
// exact JSON it must return
const policySystemPrompt = `You are the risk officer for an automated crypto futures desk. The trading engine has already produced an entry signal that passed its technical filters. Your only job is to approve or reject the entry and optionally adjust its risk parameters.

Respond with valid JSON only, no prose, using exactly this structure:
{
  "decision": "approve" | "reject",
  "reason": "one short sentence",
  "stop_loss_pct": number or null,
  "take_profit_pct": number or null,
  "position_multiplier": number or null,
  "risk_mode": "normal" | "conservative" | "aggressive"
}

Rules:
- null leaves a parameter at the engine default.
- stop_loss_pct and take_profit_pct are margin-return fractions, e.g. 0.02.
- position_multiplier scales the computed size, e.g. 0.5 halves it.
- Reject when recent performance or market context argues against the entry.
- Be conservative after losses and in unclear regimes.`

// BuildPolicyPrompt renders the decision context for the model
func BuildPolicyPrompt(req core.AdviceRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Pair: %s\n", req.Pair)
	fmt.Fprintf(&b, "Proposed entry: %s\n", req.Signal.Side)
	fmt.Fprintf(&b, "Signal strength: %.2f, agreement: %.2f, confidence: %.2f\n",
		req.Signal.Strength, req.Signal.Agreement, req.Signal.Confidence)
	if len(req.Signal.Contributors) > 0 {
		fmt.Fprintf(&b, "Voting strategies: %s\n", strings.Join(req.Signal.Contributors, ", "))
	}
	fmt.Fprintf(&b, "Market regime: %s\n", req.Regime)

	snap := req.Signal.Snapshot
	fmt.Fprintf(&b, "Indicators: price=%.4f rsi=%.1f adx=%.1f atr_pct=%.2f%% percent_b=%.2f volume_ratio=%.2f\n",
		snap.Price, snap.RSI, snap.ADX, snap.ATRPct, snap.PercentB, snap.VolumeRatio)

	fmt.Fprintf(&b, "Session: daily_pnl=%.2f USDT, win_rate=%.0f%%\n", req.DailyPnL, req.WinRate*100)

	if req.Position != nil {
		fmt.Fprintf(&b, "Open position: %s %.4f @ %.4f\n",
			req.Position.Side, req.Position.Amount, req.Position.EntryPrice)
	} else {
		b.WriteString("Open position: none\n")
	}

	b.WriteString("\nApprove or reject this entry.")
	return b.String()
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownCodeBlock unwraps responses some models fence in ```json
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeBlockRe.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}

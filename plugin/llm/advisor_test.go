package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorum/core"
)

type stubCompleter struct {
	calls    int
	response string
	err      error
}

func (s *stubCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func pluginConfig() core.PluginConfig {
	cfg := core.DefaultConfig().Plugins
	cfg.LLMEnabled = true
	return cfg
}

func adviceRequest(fingerprint string) core.AdviceRequest {
	return core.AdviceRequest{
		Pair:        "BTCUSDT",
		CandleHash:  "a1b2c3d4e5f60718",
		Fingerprint: fingerprint,
		Signal: core.AggregatedSignal{
			Side:         core.SignalLong,
			Strength:     0.82,
			Agreement:    0.80,
			Confidence:   0.71,
			Contributors: []string{"ema_cross", "macd_cross"},
		},
		Regime:  "trending",
		WinRate: 0.55,
	}
}

func newTestAdvisor(t *testing.T, completer Completer, cfg core.PluginConfig) *Advisor {
	t.Helper()
	a, err := NewAdvisor(cfg, completer, core.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAdvisor_ParsesAndClampsResponse(t *testing.T) {
	stub := &stubCompleter{response: `{
		"decision": "approve",
		"reason": "clean breakout with volume",
		"stop_loss_pct": 0.2,
		"take_profit_pct": 0.05,
		"position_multiplier": 5.0,
		"risk_mode": "normal"
	}`}
	a := newTestAdvisor(t, stub, pluginConfig())

	advice, err := a.Advise(context.Background(), adviceRequest("fp-1"))
	require.NoError(t, err)

	require.True(t, advice.Approve)
	require.Equal(t, "clean breakout with volume", advice.Reason)
	require.InDelta(t, 0.05, *advice.StopLossPct, 1e-9)
	require.InDelta(t, 0.05, *advice.TakeProfitPct, 1e-9)
	require.InDelta(t, 2.0, *advice.PositionMultiplier, 1e-9)
	require.False(t, advice.ExpiresAt.IsZero())
}

func TestAdvisor_RejectDecision(t *testing.T) {
	stub := &stubCompleter{response: `{"decision":"reject","reason":"three losses in a row, stand down","risk_mode":"conservative"}`}
	a := newTestAdvisor(t, stub, pluginConfig())

	advice, err := a.Advise(context.Background(), adviceRequest("fp-1"))
	require.NoError(t, err)
	require.False(t, advice.Approve)
	require.Equal(t, "conservative", advice.RiskMode)
	require.Nil(t, advice.StopLossPct)
}

func TestAdvisor_StripsMarkdownFence(t *testing.T) {
	stub := &stubCompleter{response: "```json\n{\"decision\":\"approve\",\"reason\":\"ok\"}\n```"}
	a := newTestAdvisor(t, stub, pluginConfig())

	advice, err := a.Advise(context.Background(), adviceRequest("fp-1"))
	require.NoError(t, err)
	require.True(t, advice.Approve)
}

func TestAdvisor_RejectsMalformedResponses(t *testing.T) {
	cases := map[string]string{
		"not json":        `approve it`,
		"bad decision":    `{"decision":"maybe","reason":"x"}`,
		"bad risk mode":   `{"decision":"approve","reason":"x","risk_mode":"yolo"}`,
		"negative values": `{"decision":"approve","reason":"x","stop_loss_pct":-0.02}`,
	}

	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			a := newTestAdvisor(t, &stubCompleter{response: response}, pluginConfig())
			_, err := a.Advise(context.Background(), adviceRequest("fp-"+name))
			require.Error(t, err)
		})
	}
}

func TestAdvisor_CachesByDecisionContext(t *testing.T) {
	stub := &stubCompleter{response: `{"decision":"approve","reason":"ok"}`}
	a := newTestAdvisor(t, stub, pluginConfig())

	_, err := a.Advise(context.Background(), adviceRequest("fp-same"))
	require.NoError(t, err)
	_, err = a.Advise(context.Background(), adviceRequest("fp-same"))
	require.NoError(t, err)
	require.Equal(t, 1, stub.calls)

	// A different fingerprint is a different decision context
	_, err = a.Advise(context.Background(), adviceRequest("fp-other"))
	require.NoError(t, err)
	require.Equal(t, 2, stub.calls)

	require.Equal(t, 1, a.Usage().CacheHits)
}

func TestAdvisor_DailyCallCap(t *testing.T) {
	cfg := pluginConfig()
	cfg.LLMMaxDailyCalls = 1

	stub := &stubCompleter{response: `{"decision":"approve","reason":"ok"}`}
	a := newTestAdvisor(t, stub, cfg)

	_, err := a.Advise(context.Background(), adviceRequest("fp-1"))
	require.NoError(t, err)

	_, err = a.Advise(context.Background(), adviceRequest("fp-2"))
	require.ErrorIs(t, err, ErrBudgetExhausted)
	require.Equal(t, 1, stub.calls)
}

func TestAdvisor_DailyCostCap(t *testing.T) {
	cfg := pluginConfig()
	cfg.LLMMaxDailyCalls = 100
	cfg.LLMCostPerCallUSD = 0.01
	cfg.LLMMaxDailyCostUSD = 0.02

	stub := &stubCompleter{response: `{"decision":"approve","reason":"ok"}`}
	a := newTestAdvisor(t, stub, cfg)

	for i, fp := range []string{"fp-1", "fp-2"} {
		_, err := a.Advise(context.Background(), adviceRequest(fp))
		require.NoError(t, err, "call %d", i)
	}

	_, err := a.Advise(context.Background(), adviceRequest("fp-3"))
	require.ErrorIs(t, err, ErrBudgetExhausted)
	require.InDelta(t, 0.02, a.Usage().CostTodayUSD, 1e-9)
}

func TestAdvisor_BudgetResetsNextDay(t *testing.T) {
	cfg := pluginConfig()
	cfg.LLMMaxDailyCalls = 1

	stub := &stubCompleter{response: `{"decision":"approve","reason":"ok"}`}
	a := newTestAdvisor(t, stub, cfg)

	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	a.clock = func() time.Time { return now }

	_, err := a.Advise(context.Background(), adviceRequest("fp-1"))
	require.NoError(t, err)
	_, err = a.Advise(context.Background(), adviceRequest("fp-2"))
	require.ErrorIs(t, err, ErrBudgetExhausted)

	now = now.Add(3 * time.Hour)
	_, err = a.Advise(context.Background(), adviceRequest("fp-3"))
	require.NoError(t, err)
	require.Equal(t, 1, a.Usage().CallsToday)
}

func TestAdvisor_CompleterFailurePropagates(t *testing.T) {
	stub := &stubCompleter{err: errors.New("upstream timeout")}
	a := newTestAdvisor(t, stub, pluginConfig())

	_, err := a.Advise(context.Background(), adviceRequest("fp-1"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrBudgetExhausted)
}

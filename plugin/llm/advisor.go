// Package llm implements the policy advisor consulted before entries. It
// wraps a transport-agnostic Completer with the guardrails the trading
// core requires: a TTL response cache keyed by decision context, per-day
// call and cost budgets, single-flight deduplication, strict response
// validation and bound clamping. The advisor suggests; the risk manager
// decides.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/buntdb"
	"golang.org/x/sync/singleflight"

	"github.com/quorumtrade/quorum/core"
)

// ErrBudgetExhausted is returned once the daily call or cost cap is hit.
// The policy gate maps it to the configured failure mode.
var ErrBudgetExhausted = errors.New("daily advisor budget exhausted")

var validRiskModes = []string{"", "normal", "conservative", "aggressive"}

// Completer produces a raw model completion. Implementations own transport,
// authentication and retries; the advisor owns everything else.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// Stats is a point-in-time view of advisor usage
type Stats struct {
	CallsToday   int
	CostTodayUSD float64
	CacheHits    int
}

// Advisor implements core.Advisor around a Completer
type Advisor struct {
	cfg       core.PluginConfig
	completer Completer
	log       core.Logger
	clock     func() time.Time

	cache *buntdb.DB
	group singleflight.Group

	mu        sync.Mutex
	day       time.Time
	calls     int
	costUSD   float64
	cacheHits int
}

// NewAdvisor creates an advisor with an in-memory response cache
func NewAdvisor(cfg core.PluginConfig, completer Completer, log core.Logger) (*Advisor, error) {
	if completer == nil {
		return nil, errors.New("llm advisor requires a completer")
	}
	if log == nil {
		log = core.NewNopLogger()
	}

	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open advice cache: %w", err)
	}

	return &Advisor{
		cfg:       cfg,
		completer: completer,
		log:       log,
		clock:     time.Now,
		cache:     db,
	}, nil
}

// Close releases the response cache
func (a *Advisor) Close() error {
	return a.cache.Close()
}

// Advise returns the policy decision for the request, serving repeats of
// the same decision context from cache within the TTL
func (a *Advisor) Advise(ctx context.Context, req core.AdviceRequest) (core.Advice, error) {
	now := a.clock()
	key := cacheKey(req)

	if advice, ok := a.cached(key, now); ok {
		a.mu.Lock()
		a.cacheHits++
		a.mu.Unlock()
		return advice, nil
	}

	result, err, _ := a.group.Do(key, func() (any, error) {
		if advice, ok := a.cached(key, now); ok {
			return advice, nil
		}
		return a.consult(ctx, req, now)
	})
	if err != nil {
		return core.Advice{}, err
	}
	return result.(core.Advice), nil
}

// Usage returns current-day counters
func (a *Advisor) Usage() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked(a.clock())
	return Stats{CallsToday: a.calls, CostTodayUSD: a.costUSD, CacheHits: a.cacheHits}
}

// consult performs one budgeted completer round trip
func (a *Advisor) consult(ctx context.Context, req core.AdviceRequest, now time.Time) (core.Advice, error) {
	if err := a.consumeBudget(now); err != nil {
		return core.Advice{}, err
	}

	raw, err := a.completer.Complete(ctx, policySystemPrompt, BuildPolicyPrompt(req))
	if err != nil {
		return core.Advice{}, fmt.Errorf("advisor completion failed: %w", err)
	}

	advice, err := a.parse(raw, now)
	if err != nil {
		return core.Advice{}, err
	}

	a.store(cacheKey(req), advice)

	a.log.WithFields(map[string]any{
		"pair":    req.Pair,
		"approve": advice.Approve,
		"reason":  advice.Reason,
	}).Debug("policy advice received")

	return advice, nil
}

// consumeBudget registers one call against the daily caps
func (a *Advisor) consumeBudget(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rolloverLocked(now)

	if a.cfg.LLMMaxDailyCalls > 0 && a.calls >= a.cfg.LLMMaxDailyCalls {
		return fmt.Errorf("%w: %d calls today", ErrBudgetExhausted, a.calls)
	}
	if a.cfg.LLMMaxDailyCostUSD > 0 && a.costUSD+a.cfg.LLMCostPerCallUSD > a.cfg.LLMMaxDailyCostUSD {
		return fmt.Errorf("%w: %.2f USD spent today", ErrBudgetExhausted, a.costUSD)
	}

	a.calls++
	a.costUSD += a.cfg.LLMCostPerCallUSD
	return nil
}

// rolloverLocked resets the counters when the UTC day changes
func (a *Advisor) rolloverLocked(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(a.day) {
		a.day = day
		a.calls = 0
		a.costUSD = 0
	}
}

// adviceResponse is the JSON document the model must return
type adviceResponse struct {
	Decision           string   `json:"decision"`
	Reason             string   `json:"reason"`
	StopLossPct        *float64 `json:"stop_loss_pct"`
	TakeProfitPct      *float64 `json:"take_profit_pct"`
	PositionMultiplier *float64 `json:"position_multiplier"`
	RiskMode           string   `json:"risk_mode"`
}

// parse validates the raw completion and clamps every adjustment to the
// configured bounds
func (a *Advisor) parse(raw string, now time.Time) (core.Advice, error) {
	var resp adviceResponse
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(raw)), &resp); err != nil {
		return core.Advice{}, fmt.Errorf("invalid advisor response: %w", err)
	}

	if resp.Decision != "approve" && resp.Decision != "reject" {
		return core.Advice{}, fmt.Errorf("invalid advisor response: decision %q", resp.Decision)
	}
	if !lo.Contains(validRiskModes, resp.RiskMode) {
		return core.Advice{}, fmt.Errorf("invalid advisor response: risk mode %q", resp.RiskMode)
	}
	for name, v := range map[string]*float64{
		"stop_loss_pct":       resp.StopLossPct,
		"take_profit_pct":     resp.TakeProfitPct,
		"position_multiplier": resp.PositionMultiplier,
	} {
		if v != nil && *v <= 0 {
			return core.Advice{}, fmt.Errorf("invalid advisor response: %s %.4f", name, *v)
		}
	}

	bounds := a.cfg.LLMBounds
	return core.Advice{
		Approve:            resp.Decision == "approve",
		Reason:             resp.Reason,
		StopLossPct:        clampPtr(resp.StopLossPct, bounds.StopLossPctMin, bounds.StopLossPctMax),
		TakeProfitPct:      clampPtr(resp.TakeProfitPct, bounds.TakeProfitPctMin, bounds.TakeProfitPctMax),
		PositionMultiplier: clampPtr(resp.PositionMultiplier, bounds.PositionMultiplierMin, bounds.PositionMultiplierMax),
		RiskMode:           resp.RiskMode,
		ExpiresAt:          now.Add(bounds.AdjustTTL),
	}, nil
}

// cached returns a live cache entry; expired adjustments count as a miss
func (a *Advisor) cached(key string, now time.Time) (core.Advice, bool) {
	var advice core.Advice
	found := false

	err := a.cache.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(key)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal([]byte(value), &advice); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return core.Advice{}, false
	}
	if !advice.ExpiresAt.IsZero() && now.After(advice.ExpiresAt) {
		return core.Advice{}, false
	}
	return advice, true
}

// store caches the advice for the configured TTL
func (a *Advisor) store(key string, advice core.Advice) {
	content, err := json.Marshal(advice)
	if err != nil {
		return
	}

	err = a.cache.Update(func(tx *buntdb.Tx) error {
		var opts *buntdb.SetOptions
		if a.cfg.LLMCacheTTL > 0 {
			opts = &buntdb.SetOptions{Expires: true, TTL: a.cfg.LLMCacheTTL}
		}
		_, _, err := tx.Set(key, string(content), opts)
		return err
	})
	if err != nil {
		a.log.WithError(err).Warn("failed to cache policy advice")
	}
}

func cacheKey(req core.AdviceRequest) string {
	return "advice:" + req.CandleHash + ":" + req.Fingerprint
}

func clampPtr(v *float64, low, high float64) *float64 {
	if v == nil {
		return nil
	}
	clamped := *v
	if clamped < low {
		clamped = low
	}
	if clamped > high {
		clamped = high
	}
	return &clamped
}

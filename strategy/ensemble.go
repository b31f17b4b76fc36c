package strategy

import (
	"time"

	"github.com/quorumtrade/quorum/core"

	"github.com/samber/lo"
)

// Ensemble evaluates a set of strategies against one market view and
// folds their votes into a single aggregated signal
type Ensemble struct {
	strategies []core.Strategy
	weights    map[string]float64
	filters    core.FilterConfig
	log        core.Logger
}

func NewEnsemble(log core.Logger, filters core.FilterConfig, strategies ...core.Strategy) *Ensemble {
	return &Ensemble{
		strategies: strategies,
		weights:    make(map[string]float64),
		filters:    filters,
		log:        log,
	}
}

// SetWeight overrides the default vote weight of 1.0 for one strategy
func (e *Ensemble) SetWeight(name string, weight float64) {
	e.weights[name] = weight
}

// Strategies returns the registered strategies
func (e *Ensemble) Strategies() []core.Strategy {
	return e.strategies
}

// WarmupPeriod is the longest warmup any registered strategy needs
func (e *Ensemble) WarmupPeriod() int {
	warmup := 0
	for _, s := range e.strategies {
		if s.WarmupPeriod() > warmup {
			warmup = s.WarmupPeriod()
		}
	}
	return warmup
}

// Evaluate runs every strategy in the allowed set against the view.
// A nil allowed list runs all of them.
func (e *Ensemble) Evaluate(view *core.MarketView, allowed []string) []core.Signal {
	signals := make([]core.Signal, 0, len(e.strategies))

	for _, s := range e.strategies {
		if allowed != nil && !lo.Contains(allowed, s.Name()) {
			continue
		}

		signal := s.Evaluate(view)
		signal.Strategy = s.Name()
		signals = append(signals, signal)

		if signal.Side != core.SignalHold {
			e.log.WithFields(map[string]any{
				"strategy": s.Name(),
				"side":     signal.Side,
				"strength": signal.Strength,
				"reason":   signal.Reason,
			}).Debug("strategy vote")
		}
	}

	return signals
}

// Aggregate folds per-strategy signals into the ensemble consensus.
// The winning side needs a strict vote majority over every other side;
// a tie yields Hold. Long and Short winners are additionally held to the
// configured side-specific strength/agreement floors.
func (e *Ensemble) Aggregate(signals []core.Signal, snapshot core.IndicatorSnapshot, now time.Time) core.AggregatedSignal {
	aggregate := core.AggregatedSignal{
		Side:     core.SignalHold,
		Snapshot: snapshot,
		Time:     now,
	}

	if len(signals) == 0 {
		return aggregate
	}

	votes := lo.CountValuesBy(signals, func(s core.Signal) core.SignalSide {
		return s.Side
	})

	winner, tie := core.SignalHold, false
	best := 0
	for side, count := range votes {
		switch {
		case count > best:
			winner, best, tie = side, count, false
		case count == best:
			tie = true
		}
	}

	if tie || winner == core.SignalHold {
		return aggregate
	}

	contributors := lo.Filter(signals, func(s core.Signal, _ int) bool {
		return s.Side == winner
	})

	var weightSum, strength, confidence float64
	for _, s := range contributors {
		w := e.weight(s.Strategy)
		weightSum += w
		strength += s.Strength * w
		confidence += s.Confidence * w
	}

	aggregate.Side = winner
	aggregate.Strength = strength / weightSum
	aggregate.Confidence = confidence / weightSum
	aggregate.Agreement = float64(best) / float64(len(signals))
	aggregate.Contributors = lo.Map(contributors, func(s core.Signal, _ int) string {
		return s.Strategy
	})

	if rejected, reason := e.belowThresholds(aggregate); rejected {
		e.log.WithFields(map[string]any{
			"side":      winner,
			"strength":  aggregate.Strength,
			"agreement": aggregate.Agreement,
			"reason":    reason,
		}).Debug("aggregate below thresholds")

		aggregate.Side = core.SignalHold
		aggregate.Contributors = nil
	}

	return aggregate
}

func (e *Ensemble) weight(name string) float64 {
	if w, ok := e.weights[name]; ok && w > 0 {
		return w
	}
	return 1
}

// belowThresholds applies the side-specific acceptance floors to entry
// signals. Exits pass unconditionally; holding a position hostage to entry
// thresholds would be worse than a weak close.
func (e *Ensemble) belowThresholds(aggregate core.AggregatedSignal) (bool, string) {
	if !aggregate.Side.IsEntry() {
		return false, ""
	}

	minStrength := e.filters.ShortMinStrength
	minAgreement := e.filters.ShortMinAgreement
	if aggregate.Side == core.SignalLong {
		minStrength = e.filters.LongMinStrength
		minAgreement = e.filters.LongMinAgreement
	}

	switch {
	case aggregate.Strength < minStrength:
		return true, "strength below minimum"
	case aggregate.Agreement < minAgreement:
		return true, "agreement below minimum"
	case aggregate.Confidence < e.filters.MinConfidence:
		return true, "confidence below minimum"
	}

	return false, ""
}

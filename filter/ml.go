package filter

import (
	"context"
	"fmt"

	"github.com/quorumtrade/quorum/core"
)

// MLGate runs the optional trade-quality scorer. In shadow mode the score
// is recorded but never blocks; in filter mode a low score rejects.
type MLGate struct {
	cfg    core.PluginConfig
	scorer core.Scorer
	log    core.Logger
}

func NewMLGate(cfg core.PluginConfig, scorer core.Scorer, log core.Logger) *MLGate {
	return &MLGate{cfg: cfg, scorer: scorer, log: log}
}

func (g *MLGate) Name() string { return "ml_quality" }

func (g *MLGate) Check(ctx context.Context, d *Decision) Verdict {
	if g.cfg.MLMode == core.MLModeOff || g.scorer == nil {
		return pass("disabled")
	}

	score, err := g.scorer.Score(ctx, FeaturesFrom(d))
	if err != nil {
		g.log.WithError(err).Warn("quality scorer failed")
		if g.cfg.MLFailureMode == core.FailureReject {
			return reject("scorer unavailable")
		}
		return pass("scorer unavailable, passing")
	}

	if g.cfg.MLMode == core.MLModeShadow {
		return pass(fmt.Sprintf("shadow score %.2f", score))
	}

	if score < g.cfg.MLQualityThreshold {
		return reject(fmt.Sprintf("quality score %.2f below %.2f", score, g.cfg.MLQualityThreshold))
	}
	return pass(fmt.Sprintf("quality score %.2f", score))
}

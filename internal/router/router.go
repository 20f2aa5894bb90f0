// Package router implements the ModelRouter (spec.md §4.10): a fixed
// threshold decision order over token count and query complexity, priced
// from config.ModelRouterConfig.
package router

import (
	"github.com/ctxforge/ctxforge/internal/config"
)

// Tier identifies which provider tier was chosen.
type Tier string

const (
	TierLocal Tier = "local"
	TierOne   Tier = "tier1"
	TierTwo   Tier = "tier2"
	TierThree Tier = "tier3"
)

// Availability reports which provider tiers the caller has confirmed are
// reachable (spec.md §4.10: "availability probing is the caller's
// responsibility").
type Availability struct {
	Local bool
}

// Choice is ModelChoice (spec.md §4.10).
type Choice struct {
	Tier             Tier
	Reason           string
	EstimatedCostUSD float64
}

// Router implements select_model(tokens, complexity, availability).
type Router struct {
	cfg config.ModelRouterConfig
}

// New builds a Router from configuration.
func New(cfg config.ModelRouterConfig) *Router {
	return &Router{cfg: cfg}
}

// SelectModel implements spec.md §4.10's fixed decision order.
func (r *Router) SelectModel(tokens int, complexity float64, avail Availability) Choice {
	localThreshold := r.threshold("local", 8_000)
	tier1Threshold := r.threshold("tier1", 20_000)
	tier2Threshold := r.threshold("tier2", 100_000)

	switch {
	case r.cfg.PreferLocal && avail.Local && tokens < localThreshold && complexity < 0.6:
		return r.choice(TierLocal, tokens, "local provider available within size and complexity bounds")
	case tokens < tier1Threshold && complexity < 0.4:
		return r.choice(TierOne, tokens, "small low-complexity query routed to tier-1 cloud")
	case tokens < tier2Threshold || complexity < 0.8:
		return r.choice(TierTwo, tokens, "mid-size or moderately complex query routed to tier-2 cloud")
	default:
		return r.choice(TierThree, tokens, "large or high-complexity query routed to tier-3 cloud")
	}
}

func (r *Router) threshold(key string, fallback int) int {
	if v, ok := r.cfg.Thresholds[key]; ok {
		return v
	}
	return fallback
}

func (r *Router) price(tier Tier) float64 {
	if v, ok := r.cfg.Prices[string(tier)]; ok {
		return v
	}
	return 0
}

// Cost computes tokens/1_000_000 * price_per_million for tier (spec.md
// §4.10).
func (r *Router) Cost(tier Tier, tokens int) float64 {
	return float64(tokens) / 1_000_000 * r.price(tier)
}

func (r *Router) choice(tier Tier, tokens int, reason string) Choice {
	return Choice{Tier: tier, Reason: reason, EstimatedCostUSD: r.Cost(tier, tokens)}
}

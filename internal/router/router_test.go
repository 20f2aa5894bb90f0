package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ctxforge/ctxforge/internal/config"
)

func testRouter() *Router {
	return New(config.Default().ModelRouter)
}

func TestSelectModelLocalWhenAvailableAndSmall(t *testing.T) {
	r := testRouter()
	c := r.SelectModel(5_000, 0.3, Availability{Local: true})
	assert.Equal(t, TierLocal, c.Tier)
	assert.Equal(t, 0.0, c.EstimatedCostUSD)
}

func TestSelectModelLocalUnavailableFallsToTier1(t *testing.T) {
	r := testRouter()
	c := r.SelectModel(5_000, 0.3, Availability{Local: false})
	assert.Equal(t, TierOne, c.Tier)
}

func TestSelectModelTier2ForHighComplexitySmallTokens(t *testing.T) {
	r := testRouter()
	c := r.SelectModel(5_000, 0.9, Availability{Local: true})
	assert.Equal(t, TierTwo, c.Tier)
}

func TestSelectModelTier3ForLargeAndComplex(t *testing.T) {
	r := testRouter()
	c := r.SelectModel(200_000, 0.95, Availability{Local: true})
	assert.Equal(t, TierThree, c.Tier)
}

func TestSelectModelSkipsLocalWhenPreferLocalDisabled(t *testing.T) {
	cfg := config.Default().ModelRouter
	cfg.PreferLocal = false
	r := New(cfg)
	c := r.SelectModel(5_000, 0.3, Availability{Local: true})
	assert.Equal(t, TierOne, c.Tier)
}

func TestCostScalesWithTokens(t *testing.T) {
	r := testRouter()
	cost := r.Cost(TierOne, 1_000_000)
	assert.InDelta(t, 0.25, cost, 1e-9)
}

package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/scoring"
)

func scoredFrom(id string, score float64, contentLen int) scoring.Scored {
	return scoring.Scored{
		Fragment: &fragment.Fragment{ID: id, Content: strings.Repeat("x", contentLen)},
		Score:    score,
	}
}

func TestSelectEmptyBudgetReturnsEmpty(t *testing.T) {
	in := []scoring.Scored{scoredFrom("a", 0.9, 100)}
	out := Select(in, 0, 0.6)
	assert.Empty(t, out)
}

func TestSelectFiltersByMinRelevance(t *testing.T) {
	in := []scoring.Scored{
		scoredFrom("a", 0.9, 40),
		scoredFrom("b", 0.3, 40),
	}
	out := Select(in, 1000, 0.6)
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Fragment.ID)
}

func TestSelectFallsBackToTop5WhenNoneClearThreshold(t *testing.T) {
	in := []scoring.Scored{
		scoredFrom("a", 0.1, 40),
		scoredFrom("b", 0.2, 40),
		scoredFrom("c", 0.3, 40),
	}
	out := Select(in, 1000, 0.9)
	assert.Len(t, out, 3)
}

func TestSelectGreedyRespectsBudget(t *testing.T) {
	in := []scoring.Scored{
		scoredFrom("a", 0.9, 400), // ~100 tokens
		scoredFrom("b", 0.85, 400),
		scoredFrom("c", 0.7, 400),
	}
	out := Select(in, 150, 0.6)
	totalTok := 0
	for _, sc := range out {
		totalTok += len(sc.Fragment.Content) / 4
	}
	assert.LessOrEqual(t, totalTok, 150+15) // allows the single high-value overrun
}

func TestSelectHighValueOverrunAllowedOnce(t *testing.T) {
	in := []scoring.Scored{
		scoredFrom("a", 0.95, 100), // 25 tokens, fits
		scoredFrom("b", 0.9, 20),   // 5 tokens, pushes slightly over
	}
	out := Select(in, 27, 0.6)
	var ids []string
	for _, sc := range out {
		ids = append(ids, sc.Fragment.ID)
	}
	assert.Contains(t, ids, "a")
}

func TestSelectAllAboveMinRelevanceWhenBudgetIsLarge(t *testing.T) {
	in := []scoring.Scored{
		scoredFrom("a", 0.9, 40),
		scoredFrom("b", 0.8, 40),
		scoredFrom("c", 0.7, 40),
	}
	out := Select(in, 1_000_000, 0.6)
	assert.Len(t, out, 3)
}

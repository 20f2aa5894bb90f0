// Package budget implements the BudgetSelector (spec.md §4.8): greedy
// score-density selection under a token budget, refined by a bounded swap
// pass, grounded on the teacher's RRFFusion sorting/tie-break discipline
// (internal/search/fusion.go) applied to a knapsack-style selection
// instead of a rank fusion.
package budget

import (
	"sort"

	"github.com/ctxforge/ctxforge/internal/scoring"
	"github.com/ctxforge/ctxforge/internal/tokencount"
)

// DefaultMinRelevance is spec.md §4.8's default threshold.
const DefaultMinRelevance = 0.6

// highValueThreshold and overrunFraction implement the single allowed
// budget overrun for a very-high-value fragment (spec.md §4.8 step 3).
const (
	highValueThreshold = 0.8
	overrunFraction    = 0.10
	maxSwapPasses      = 3
)

// candidate tracks the bookkeeping Select needs alongside each scored
// fragment: its estimated token cost and whether it's currently selected.
type candidate struct {
	scored   scoring.Scored
	tokens   int
	selected bool
}

// Select implements spec.md §4.8's contract:
// select(scored, budget_tokens, min_relevance) -> selected ScoredFragments.
func Select(scored []scoring.Scored, budgetTokens int, minRelevance float64) []scoring.Scored {
	if minRelevance <= 0 {
		minRelevance = DefaultMinRelevance
	}
	if len(scored) == 0 || budgetTokens <= 0 {
		return nil
	}

	filtered := filterByRelevance(scored, minRelevance)
	cands := make([]*candidate, 0, len(filtered))
	for _, sc := range filtered {
		cands = append(cands, &candidate{scored: sc, tokens: estimateTokens(sc)})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		di := density(cands[i])
		dj := density(cands[j])
		if di != dj {
			return di > dj
		}
		return cands[i].scored.Score > cands[j].scored.Score
	})

	spent := 0
	overrunUsed := false
	for _, c := range cands {
		if spent+c.tokens <= budgetTokens {
			c.selected = true
			spent += c.tokens
			continue
		}
		if !overrunUsed && c.scored.Score > highValueThreshold {
			overrun := int(float64(budgetTokens) * overrunFraction)
			if spent+c.tokens <= budgetTokens+overrun {
				c.selected = true
				spent += c.tokens
				overrunUsed = true
			}
		}
	}

	swapRefine(cands, budgetTokens)

	out := make([]scoring.Scored, 0, len(cands))
	for _, c := range cands {
		if c.selected {
			out = append(out, c.scored)
		}
	}
	return out
}

// filterByRelevance implements step 1: threshold filter with a top-5
// fallback when nothing clears the bar.
func filterByRelevance(scored []scoring.Scored, minRelevance float64) []scoring.Scored {
	var above []scoring.Scored
	for _, sc := range scored {
		if sc.Score >= minRelevance {
			above = append(above, sc)
		}
	}
	if len(above) > 0 {
		return above
	}

	byScore := make([]scoring.Scored, len(scored))
	copy(byScore, scored)
	sort.SliceStable(byScore, func(i, j int) bool { return byScore[i].Score > byScore[j].Score })
	if len(byScore) > 5 {
		byScore = byScore[:5]
	}
	return byScore
}

func estimateTokens(sc scoring.Scored) int {
	return tokencount.Estimate(sc.Fragment.Content)
}

func density(c *candidate) float64 {
	if c.tokens == 0 {
		return c.scored.Score
	}
	return c.scored.Score / float64(c.tokens)
}

// swapRefine implements spec.md §4.8 step 4: bounded local search that
// swaps one selected fragment for one unselected fragment whenever the
// swap stays within budget and strictly improves total score.
func swapRefine(cands []*candidate, budgetTokens int) {
	for pass := 0; pass < maxSwapPasses; pass++ {
		improved := false
		spent := totalTokens(cands)
		for _, sel := range cands {
			if !sel.selected {
				continue
			}
			for _, unsel := range cands {
				if unsel.selected {
					continue
				}
				newSpent := spent - sel.tokens + unsel.tokens
				if newSpent > budgetTokens {
					continue
				}
				if unsel.scored.Score <= sel.scored.Score {
					continue
				}
				sel.selected = false
				unsel.selected = true
				improved = true
				spent = newSpent
				break
			}
		}
		if !improved {
			return
		}
	}
}

func totalTokens(cands []*candidate) int {
	sum := 0
	for _, c := range cands {
		if c.selected {
			sum += c.tokens
		}
	}
	return sum
}

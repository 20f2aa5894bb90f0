package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ctxforge/ctxforge/internal/config"
	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/intent"
)

func TestSemanticScoreCosine(t *testing.T) {
	assert.InDelta(t, 1.0, semanticScore([]float32{1, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 0.0, semanticScore([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, 0.0, semanticScore([]float32{1, 0}, nil))
	assert.Equal(t, 0.0, semanticScore([]float32{1, 0}, []float32{1, 0, 0}))
}

func TestSymbolScoreExactAndSubstring(t *testing.T) {
	entities := []intent.Entity{{Type: intent.EntitySymbol, Value: "fetchUser"}}
	assert.Equal(t, 1.0, symbolScore("fetchUser", entities))
	assert.Equal(t, 0.8, symbolScore("fetchUserProfile", entities))
	assert.Equal(t, 0.0, symbolScore("fetchUser", nil))
}

func TestProximityScoreSameFile(t *testing.T) {
	cache := map[[2]string]float64{}
	assert.Equal(t, 1.0, proximityScore("a/b.go", "a/b.go", "", cache))
}

func TestProximityScoreSameDirectory(t *testing.T) {
	cache := map[[2]string]float64{}
	assert.Equal(t, 0.8, proximityScore("a/b/x.go", "a/b/y.go", "", cache))
}

func TestProximityScoreNoCommonPrefix(t *testing.T) {
	cache := map[[2]string]float64{}
	assert.Equal(t, 0.05, proximityScore("x/y.go", "z/w.go", "", cache))
}

func TestProximityScoreNoCurrentFile(t *testing.T) {
	cache := map[[2]string]float64{}
	assert.Equal(t, 0.05, proximityScore("a/b.go", "", "", cache))
}

func TestRecencyScoreDecaysWithAge(t *testing.T) {
	now := time.Now()
	fresh := recencyScore(now, now)
	assert.InDelta(t, 1.0, fresh, 1e-6)
	old := recencyScore(now.Add(-60*24*time.Hour), now)
	assert.InDelta(t, 0.25, old, 0.01)
	absent := recencyScore(time.Time{}, now)
	assert.Equal(t, 0.5, absent)
}

func TestFrequencyScoreRatioScaledByCount(t *testing.T) {
	history := []UsageEntry{
		{FragmentID: "f1", Helpful: true},
		{FragmentID: "f1", Helpful: true},
		{FragmentID: "f1", Helpful: false},
		{FragmentID: "f2", Helpful: true},
	}
	score := frequencyScore("f1", history)
	assert.InDelta(t, (2.0/3)*0.3, score, 1e-6)
	assert.Equal(t, 0.0, frequencyScore("absent", history))
}

func TestScoreBatchOrderingTieBreaksOnSemantic(t *testing.T) {
	s := New(config.DefaultWeights())
	now := time.Now()
	f1 := &fragment.Fragment{ID: "a", Name: "a", FilePath: "a.go", Embedding: []float32{1, 0}, LastModified: now}
	f2 := &fragment.Fragment{ID: "b", Name: "b", FilePath: "b.go", Embedding: []float32{1, 0}, LastModified: now}

	scored := s.ScoreBatch([]*fragment.Fragment{f1, f2}, []float32{1, 0}, intent.QueryIntent{}, Context{Now: now})
	assert.Len(t, scored, 2)
	SortByScore(scored)
	assert.Equal(t, scored[0].Score, scored[1].Score)
}

func TestLevenshteinBasics(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 1, levenshtein("abc", "abd"))
}

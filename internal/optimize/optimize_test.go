package optimize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxforge/ctxforge/internal/compress"
	"github.com/ctxforge/ctxforge/internal/config"
	"github.com/ctxforge/ctxforge/internal/embed"
	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/retrieve"
	"github.com/ctxforge/ctxforge/internal/router"
	"github.com/ctxforge/ctxforge/internal/scoring"
	"github.com/ctxforge/ctxforge/internal/vectorindex"
)

func newTestPipeline(t *testing.T) (*Pipeline, fragment.Store, *vectorindex.Index) {
	t.Helper()
	store := fragment.NewMemoryStore()
	vectors := vectorindex.New(embed.StaticDimensions)
	symbols, err := retrieve.NewSymbolIndex()
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder()
	seedFragment(t, store, vectors, symbols, embedder, "auth.go", "Login", "func Login(user string) error {\n\treturn checkPassword(user)\n}\n")
	seedFragment(t, store, vectors, symbols, embedder, "billing.go", "ChargeCard", "func ChargeCard(amount int) error {\n\treturn nil\n}\n")

	scorer := scoring.New(config.DefaultWeights())
	retriever := retrieve.New(vectors, store, symbols)
	modelRouter := router.New(config.Default().ModelRouter)

	return New(embedder, retriever, scorer, modelRouter), store, vectors
}

func seedFragment(t *testing.T, store fragment.Store, vectors *vectorindex.Index, symbols *retrieve.SymbolIndex, embedder *embed.StaticEmbedder, path, name, content string) {
	t.Helper()
	vec, err := embedder.EmbedOne(context.Background(), content)
	require.NoError(t, err)
	f := &fragment.Fragment{
		ID:           path + ":" + name,
		FilePath:     path,
		Name:         name,
		Kind:         fragment.KindFunction,
		StartLine:    1,
		EndLine:      3,
		Content:      content,
		Language:     "go",
		Embedding:    vec,
		LastModified: time.Now(),
		Metadata:     fragment.Metadata{Exports: []string{name}},
	}
	require.NoError(t, store.Put(f))
	require.NoError(t, vectors.Insert(f.ID, vec))
	require.NoError(t, symbols.IndexFragments([]*fragment.Fragment{f}))
}

func TestOptimizeProducesPromptWithinBudget(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	out, err := p.Optimize(context.Background(), "fix the bug in Login", Options{
		BudgetTokens: 2000,
		RetrieveOptions: retrieve.Options{
			K:             5,
			MaxCandidates: 10,
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "fix the bug in Login")
	assert.NotEmpty(t, out.Fragments)
	assert.Greater(t, out.Savings.OriginalTokens, 0)
	assert.Greater(t, out.Savings.FinalTokens, 0)
	assert.NotEmpty(t, out.ModelChoice.Tier)
}

func TestOptimizeNoCandidatesStillReturnsPrompt(t *testing.T) {
	store := fragment.NewMemoryStore()
	vectors := vectorindex.New(embed.StaticDimensions)
	symbols, err := retrieve.NewSymbolIndex()
	require.NoError(t, err)
	embedder := embed.NewStaticEmbedder()
	scorer := scoring.New(config.DefaultWeights())
	retriever := retrieve.New(vectors, store, symbols)
	modelRouter := router.New(config.Default().ModelRouter)
	p := New(embedder, retriever, scorer, modelRouter)

	out, err := p.Optimize(context.Background(), "explain how auth works", Options{BudgetTokens: 1000})
	require.NoError(t, err)
	assert.Empty(t, out.Fragments)
	assert.Equal(t, 0, out.Savings.OriginalTokens)
	assert.Contains(t, out.Text, "explain how auth works")
}

func TestChooseLevelPrefersLightWhenSelectionFitsBudget(t *testing.T) {
	small := []scoring.Scored{{Fragment: &fragment.Fragment{Content: "short"}}}
	assert.Equal(t, compress.LevelLight, chooseLevel(small, 10_000))

	long := []scoring.Scored{{Fragment: &fragment.Fragment{Content: stringsRepeat("x", 100_000)}}}
	assert.Equal(t, compress.LevelMedium, chooseLevel(long, 10))
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}

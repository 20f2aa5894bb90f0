// Package optimize implements the Pipeline (spec.md §4.11): the
// sequential composition IntentAnalyzer -> embed(query) -> Retriever ->
// RelevanceScorer -> BudgetSelector -> Compressor -> ModelRouter that
// produces an OptimizedPrompt, staged in the same sequential shape as the
// teacher's Runner.Run (no per-stage timings are recorded) (internal/index/runner.go) but over
// the optimize path instead of the index path.
package optimize

import (
	"context"
	"strings"
	"time"

	"github.com/ctxforge/ctxforge/internal/budget"
	"github.com/ctxforge/ctxforge/internal/compress"
	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/intent"
	"github.com/ctxforge/ctxforge/internal/retrieve"
	"github.com/ctxforge/ctxforge/internal/router"
	"github.com/ctxforge/ctxforge/internal/scoring"
	"github.com/ctxforge/ctxforge/internal/tokencount"
)

// Embedder is the subset of embed.Client/Embedder a query embedding needs.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// SystemPreamble prefixes every OptimizedPrompt's text, matching spec.md
// §4.11's "system preamble + query + concatenated compressed fragments".
const SystemPreamble = "You are assisting with a codebase. The following context fragments were selected for relevance to the query below."

// Savings is OptimizedPrompt.savings (spec.md §4.11): original_tokens,
// percentage, and cost_saved against a no-optimization baseline that
// sends every retrieved candidate uncompressed.
type Savings struct {
	OriginalTokens int
	FinalTokens    int
	Percentage     float64
	CostSavedUSD   float64
}

// OptimizedPrompt is the Pipeline's output.
type OptimizedPrompt struct {
	Text        string
	Fragments   []compress.Result
	ModelChoice router.Choice
	Savings     Savings
	Intent      intent.QueryIntent
}

// Options configures one Optimize call.
type Options struct {
	BudgetTokens     int
	MinRelevance     float64
	CurrentFile      string
	CWD              string
	History          []intent.UsageEvent
	UsageHistory     []scoring.UsageEntry
	RetrieveOptions  retrieve.Options
	LocalAvailable   bool
	CompressionLevel compress.Level // zero value means "choose per spec.md §4.11"
}

// Pipeline wires every collaborator stage named in spec.md §4.11.
type Pipeline struct {
	analyzer  *intent.Analyzer
	embedder  Embedder
	retriever *retrieve.Retriever
	scorer    *scoring.Scorer
	router    *router.Router
}

// New builds a Pipeline from its collaborators.
func New(embedder Embedder, retriever *retrieve.Retriever, scorer *scoring.Scorer, modelRouter *router.Router) *Pipeline {
	return &Pipeline{
		analyzer:  intent.New(),
		embedder:  embedder,
		retriever: retriever,
		scorer:    scorer,
		router:    modelRouter,
	}
}

// Optimize implements optimize(query, budget) -> OptimizedPrompt.
func (p *Pipeline) Optimize(ctx context.Context, query string, opts Options) (*OptimizedPrompt, error) {
	qi := p.analyzer.Analyze(query, opts.History)

	queryVector, err := p.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := p.retriever.Retrieve(ctx, queryVector, qi, opts.RetrieveOptions)
	if err != nil {
		return nil, err
	}

	fragments := make([]*fragment.Fragment, len(candidates))
	baselineTokens := 0
	for i, c := range candidates {
		fragments[i] = c.Fragment
		baselineTokens += tokencount.Estimate(c.Fragment.Content)
	}

	scored := p.scorer.ScoreBatch(fragments, queryVector, qi, scoring.Context{
		CurrentFile:  opts.CurrentFile,
		CWD:          opts.CWD,
		Now:          time.Now(),
		UsageHistory: opts.UsageHistory,
	})
	scoring.SortByScore(scored)

	minRelevance := opts.MinRelevance
	if minRelevance <= 0 {
		minRelevance = budget.DefaultMinRelevance
	}
	selected := budget.Select(scored, opts.BudgetTokens, minRelevance)

	level := opts.CompressionLevel
	if level == "" {
		level = chooseLevel(selected, opts.BudgetTokens)
	}

	compressed := make([]compress.Result, len(selected))
	finalTokens := 0
	var body strings.Builder
	for i, sc := range selected {
		r := compress.Compress(sc.Fragment, level)
		compressed[i] = r
		finalTokens += r.CompressedTokens
		body.WriteString(r.Content)
		body.WriteString("\n\n")
	}

	text := SystemPreamble + "\n\n" + query + "\n\n" + strings.TrimRight(body.String(), "\n")
	finalTokens += tokencount.Estimate(SystemPreamble + "\n\n" + query)

	choice := p.router.SelectModel(finalTokens, qi.Complexity, router.Availability{Local: opts.LocalAvailable})

	baselineChoice := p.router.SelectModel(baselineTokens, qi.Complexity, router.Availability{Local: opts.LocalAvailable})
	savings := Savings{
		OriginalTokens: baselineTokens,
		FinalTokens:    finalTokens,
		CostSavedUSD:   baselineChoice.EstimatedCostUSD - choice.EstimatedCostUSD,
	}
	if baselineTokens > 0 {
		savings.Percentage = 100 * (1 - float64(finalTokens)/float64(baselineTokens))
	}

	return &OptimizedPrompt{
		Text:        text,
		Fragments:   compressed,
		ModelChoice: choice,
		Savings:     savings,
		Intent:      qi,
	}, nil
}

// chooseLevel implements spec.md §4.11's compression-level rule: medium by
// default, light when the selection already fits the budget uncompressed.
func chooseLevel(selected []scoring.Scored, budgetTokens int) compress.Level {
	total := 0
	for _, sc := range selected {
		total += tokencount.Estimate(sc.Fragment.Content)
	}
	if budgetTokens > 0 && total <= budgetTokens {
		return compress.LevelLight
	}
	return compress.LevelMedium
}

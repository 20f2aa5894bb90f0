package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxforge/ctxforge/internal/compress"
	"github.com/ctxforge/ctxforge/internal/optimize"
	"github.com/ctxforge/ctxforge/internal/retrieve"
	"github.com/ctxforge/ctxforge/internal/router"
	"github.com/ctxforge/ctxforge/internal/scoring"
)

func newOptimizeCmd() *cobra.Command {
	var (
		path         string
		budgetTokens int
		currentFile  string
		local        bool
		jsonOutput   bool
		level        string
	)

	cmd := &cobra.Command{
		Use:   "optimize <query>",
		Short: "Assemble a relevance- and budget-optimized prompt for a query",
		Long: `optimize classifies a natural-language query, retrieves candidate
code fragments from a prior 'ctxforge index' run, scores and selects them
under a token budget, compresses the selection, and prints the resulting
prompt along with the model tier it recommends and the tokens saved versus
sending every retrieved candidate uncompressed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]

			root, err := resolveRoot(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			rt, err := openRuntime(root)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer rt.store.Close()

			budget := budgetTokens
			if budget <= 0 {
				budget = rt.cfg.Optimization.TokenBudget
			}

			compLevel := compress.Level(level)
			if level == "" {
				compLevel = ""
			}

			scorer := scoring.New(rt.cfg.Optimization.Weights)
			retriever := retrieve.New(rt.vectors, rt.store, rt.symbols)
			modelRouter := router.New(rt.cfg.ModelRouter)
			pipeline := optimize.New(rt.embedder, retriever, scorer, modelRouter)

			out, err := pipeline.Optimize(cmd.Context(), query, optimize.Options{
				BudgetTokens:     budget,
				MinRelevance:     rt.cfg.Optimization.MinRelevance,
				CurrentFile:      currentFile,
				LocalAvailable:   local,
				CompressionLevel: compLevel,
				RetrieveOptions:  retrieve.Options{MaxCandidates: rt.cfg.Optimization.MaxChunks * 4},
			})
			if err != nil {
				return fmt.Errorf("optimize failed: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Text    string            `json:"text"`
					Model   router.Choice     `json:"model"`
					Savings optimize.Savings  `json:"savings"`
					Intent  string            `json:"intent_type"`
				}{
					Text:    out.Text,
					Model:   out.ModelChoice,
					Savings: out.Savings,
					Intent:  string(out.Intent.Type),
				})
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintln(stdout, out.Text)
			fmt.Fprintf(stdout, "\n--- model=%s reason=%q cost=$%.4f savings=%.1f%% (%d -> %d tokens) ---\n",
				out.ModelChoice.Tier, out.ModelChoice.Reason, out.ModelChoice.EstimatedCostUSD,
				out.Savings.Percentage, out.Savings.OriginalTokens, out.Savings.FinalTokens)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Project directory to optimize against")
	cmd.Flags().IntVar(&budgetTokens, "budget", 0, "Token budget; defaults to optimization.token_budget from config")
	cmd.Flags().StringVar(&currentFile, "current-file", "", "Path of the file the caller is currently editing, for proximity scoring")
	cmd.Flags().BoolVar(&local, "local", false, "Report a local model as available to the router")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	cmd.Flags().StringVar(&level, "level", "", "Force a compression level: light, medium, or aggressive")

	return cmd
}

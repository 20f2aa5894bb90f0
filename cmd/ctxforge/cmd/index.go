package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ctxforge/ctxforge/internal/chunk"
	"github.com/ctxforge/ctxforge/internal/indexing"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var parallelism int
	var watch bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory's source files into searchable fragments",
		Long: `index scans a directory, extracts function/class/method-level
fragments with tree-sitter, embeds them, and stores them for later
retrieval by 'ctxforge optimize'.

Re-running index only processes files that changed since the last run,
unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			root, err := resolveRoot(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			rt, err := openRuntime(root)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer func() {
				if closeErr := rt.close(); closeErr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to persist index: %v\n", closeErr)
				}
			}()

			extractor := chunk.NewExtractor()
			defer extractor.Close()

			icfg := rt.cfg.Indexing
			if parallelism > 0 {
				icfg.Parallelism = parallelism
			}

			pipeline := indexing.New(rt.store, extractor, rt.embedder, rt.vectors, rt.symbols, icfg)

			out := cmd.OutOrStdout()
			lastPct := -1
			res, err := pipeline.Index(ctx, root, indexing.Options{
				ForceFull: force,
				OnProgress: func(pct int, message string) {
					if pct != lastPct {
						fmt.Fprintf(out, "[%3d%%] %s\n", pct, message)
						lastPct = pct
					}
				},
			})
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}

			fmt.Fprintf(out, "indexed %d files, %d fragments, %d failures, in %s\n",
				res.Files, res.Chunks, res.Errors, res.Duration.Round(1_000_000))
			for _, f := range res.FailedFiles {
				fmt.Fprintf(out, "  failed: %s: %s\n", f.Path, f.Error)
			}

			if !watch {
				return nil
			}

			fmt.Fprintln(out, "watching for changes, press ctrl-c to stop")
			watcher, err := indexing.NewWatcher(pipeline, root, func(ev indexing.WatchEvent, applyErr error) {
				if applyErr != nil {
					fmt.Fprintf(out, "  watch: %s: %v\n", ev.Path, applyErr)
					return
				}
				verb := "reindexed"
				if ev.Op == indexing.WatchOpRemoved {
					verb = "removed"
				}
				fmt.Fprintf(out, "  %s %s\n", verb, ev.Path)
			})
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer watcher.Close()
			return watcher.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reindex every file, ignoring incremental mtime tracking")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Override indexing.parallelism from config")
	cmd.Flags().BoolVar(&watch, "watch", false, "After the initial index, keep watching the directory and reindex changed files")

	return cmd
}

// Package indexing implements the IndexingPipeline (spec.md §4.4):
// discovery, incremental filtering, extraction, embedding, and storage,
// with staged progress reporting and per-file fault isolation. The
// per-file parallel-worker shape is adapted from the teacher's
// errgroup-plus-semaphore fan-out in internal/search/multi_query.go,
// applied here to file processing instead of sub-query search.
package indexing

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ctxforge/ctxforge/internal/chunk"
	"github.com/ctxforge/ctxforge/internal/config"
	cerrors "github.com/ctxforge/ctxforge/internal/errors"
	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/gitignore"
	"github.com/ctxforge/ctxforge/internal/retrieve"
	"github.com/ctxforge/ctxforge/internal/vectorindex"
)

// Embedder is the subset of embed.Client/Embedder the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ProgressFunc receives staged progress per spec.md §4.4 step 7: a
// percent in [0,100] and a short human-readable message.
type ProgressFunc func(percent int, message string)

// Options configures one Index call, overriding config.IndexingConfig
// defaults where set.
type Options struct {
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64
	// ForceFull disables the incremental mtime filter (config.Incremental
	// governs the default; this only ever turns incremental filtering
	// off, never on, so a zero-value Options behaves like the default).
	ForceFull   bool
	Parallelism int
	OnProgress  ProgressFunc
}

// FailedFile records a per-file fault captured during processing (spec.md
// §4.4 step 3: "a failure of any single file ... does not terminate the
// run").
type FailedFile struct {
	Path  string
	Error string
}

// Result is IndexResult (spec.md §4.4).
type Result struct {
	Files       int
	Chunks      int
	Errors      int
	Duration    time.Duration
	FailedFiles []FailedFile
	Summary     string
}

// Pipeline is the IndexingPipeline. It owns no state between calls besides
// its collaborators; Index is safe to call repeatedly (e.g. incremental
// re-indexing) or concurrently on disjoint roots.
type Pipeline struct {
	store     fragment.Store
	extractor *chunk.Extractor
	registry  *chunk.LanguageRegistry
	embedder  Embedder
	vectors   *vectorindex.Index
	symbols   *retrieve.SymbolIndex
	cfg       config.IndexingConfig
}

// New builds a Pipeline from its collaborators and base configuration.
func New(store fragment.Store, extractor *chunk.Extractor, embedder Embedder, vectors *vectorindex.Index, symbols *retrieve.SymbolIndex, cfg config.IndexingConfig) *Pipeline {
	return &Pipeline{
		store:     store,
		extractor: extractor,
		registry:  chunk.DefaultRegistry(),
		embedder:  embedder,
		vectors:   vectors,
		symbols:   symbols,
		cfg:       cfg,
	}
}

type candidateFile struct {
	path    string // relative to root
	absPath string
	mtime   time.Time
	size    int64
}

type fileOutcome struct {
	path      string
	mtime     time.Time
	fragments []*fragment.Fragment
	err       error
}

// Index implements index(root, options) -> IndexResult.
func (p *Pipeline) Index(ctx context.Context, root string, opts Options) (*Result, error) {
	start := time.Now()
	opts = p.resolveOptions(opts)
	report := opts.OnProgress
	if report == nil {
		report = func(int, string) {}
	}

	report(0, "collecting files")
	candidates, err := p.collectFiles(root, opts)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrCodeConfigInvalid, "collect files")
	}

	if p.cfg.Incremental && !opts.ForceFull {
		candidates = p.filterIncremental(candidates)
	}
	report(5, "collection complete")

	outcomes := p.processFiles(ctx, candidates, opts.Parallelism, report)

	var failed []FailedFile
	var allFragments []*fragment.Fragment
	successfulFiles := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, FailedFile{Path: o.path, Error: o.err.Error()})
			continue
		}
		successfulFiles++
		allFragments = append(allFragments, o.fragments...)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Path < failed[j].Path })

	report(85, "generating embeddings")
	if err := p.embedAll(ctx, allFragments, report); err != nil {
		return &Result{
			Files:       successfulFiles,
			Chunks:      len(allFragments),
			Errors:      len(failed),
			Duration:    time.Since(start),
			FailedFiles: failed,
			Summary:     "embedding failed",
		}, cerrors.Wrap(err, cerrors.ErrCodeIndexingFailed, "embedder total failure")
	}
	report(90, "embeddings complete")

	byFile := groupByFile(allFragments)
	if err := p.commitFiles(outcomes, byFile); err != nil {
		return &Result{
			Files:       successfulFiles,
			Chunks:      len(allFragments),
			Errors:      len(failed),
			Duration:    time.Since(start),
			FailedFiles: failed,
			Summary:     "storage commit failed",
		}, cerrors.Wrap(err, cerrors.ErrCodeIndexingFailed, "storage commit")
	}
	report(95, "storage complete")

	report(100, "done")
	res := &Result{
		Files:       successfulFiles,
		Chunks:      len(allFragments),
		Errors:      len(failed),
		Duration:    time.Since(start),
		FailedFiles: failed,
		Summary:     summarize(successfulFiles, len(allFragments), len(failed)),
	}
	return res, nil
}

func (p *Pipeline) resolveOptions(opts Options) Options {
	if len(opts.IncludePatterns) == 0 {
		opts.IncludePatterns = p.cfg.IncludePatterns
	}
	if len(opts.ExcludePatterns) == 0 {
		opts.ExcludePatterns = p.cfg.ExcludePatterns
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = p.cfg.MaxFileSize
		if opts.MaxFileSize == 0 {
			opts.MaxFileSize = 1 << 20
		}
	}
	if opts.Parallelism == 0 {
		opts.Parallelism = p.cfg.Parallelism
		if opts.Parallelism == 0 {
			opts.Parallelism = 4
		}
	}
	return opts
}

// collectFiles implements spec.md §4.4 step 1: walk, glob filter, size
// filter, with .gitignore semantics layered underneath. Matching follows the
// teacher pack's doublestar idiom (fsx.CollectFiles/Matches): include/exclude
// patterns are matched against the path relative to root with
// doublestar.Match.
func (p *Pipeline) collectFiles(root string, opts Options) ([]candidateFile, error) {
	ignore := gitignore.New()
	if err := ignore.AddFromFile(filepath.Join(root, ".gitignore")); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrCodeConfigInvalid, "read .gitignore")
	}

	var out []candidateFile
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if rel != "." && ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if !matchesAny(rel, opts.IncludePatterns) || matchesAny(rel, opts.ExcludePatterns) {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if info.Size() > opts.MaxFileSize {
			return nil
		}
		out = append(out, candidateFile{path: rel, absPath: path, mtime: info.ModTime(), size: info.Size()})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

func matchesAny(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
	}
	return false
}

// filterIncremental implements spec.md §4.4 step 2.
func (p *Pipeline) filterIncremental(candidates []candidateFile) []candidateFile {
	out := make([]candidateFile, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := p.store.GetModRecord(c.path)
		if !ok || c.mtime.After(rec.LastIndexedMtime) {
			out = append(out, c)
		}
	}
	return out
}

// processFiles implements spec.md §4.4 step 3, fanning out across a
// bounded worker pool in the shape of the teacher's
// errgroup.WithContext-plus-semaphore pattern, but collecting every
// per-file error instead of aborting on the first one.
func (p *Pipeline) processFiles(ctx context.Context, candidates []candidateFile, parallelism int, report ProgressFunc) []fileOutcome {
	outcomes := make([]fileOutcome, len(candidates))
	if len(candidates) == 0 {
		return outcomes
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, parallelism)
	var mu sync.Mutex
	var completed int

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}

			outcomes[i] = p.processOne(gctx, c)

			mu.Lock()
			completed++
			pct := 5 + (completed*80)/len(candidates)
			mu.Unlock()
			report(pct, "processing "+c.path)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) processOne(ctx context.Context, c candidateFile) fileOutcome {
	content, err := os.ReadFile(c.absPath)
	if err != nil {
		return fileOutcome{path: c.path, mtime: c.mtime, err: err}
	}

	language := ""
	if cfg, ok := p.registry.GetByExtension(filepath.Ext(c.path)); ok {
		language = cfg.Name
	}

	fragments, err := p.extractor.Extract(ctx, &chunk.FileInput{
		Path:     c.path,
		Content:  content,
		Language: language,
	})
	if err != nil {
		return fileOutcome{path: c.path, mtime: c.mtime, err: err}
	}
	return fileOutcome{path: c.path, mtime: c.mtime, fragments: fragments}
}

// embedAll implements spec.md §4.4 step 4: batches of <=100, attaching
// each returned vector to its fragment in order.
func (p *Pipeline) embedAll(ctx context.Context, fragments []*fragment.Fragment, report ProgressFunc) error {
	const batchSize = 100
	if len(fragments) == 0 {
		return nil
	}
	for start := 0; start < len(fragments); start += batchSize {
		end := start + batchSize
		if end > len(fragments) {
			end = len(fragments)
		}
		batch := fragments[start:end]
		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Content
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, v := range vecs {
			batch[i].Embedding = v
		}
		pct := 85 + (end*5)/len(fragments)
		report(pct, "embedding batch")
	}
	return nil
}

func groupByFile(fragments []*fragment.Fragment) map[string][]*fragment.Fragment {
	out := make(map[string][]*fragment.Fragment)
	for _, f := range fragments {
		out[f.FilePath] = append(out[f.FilePath], f)
	}
	return out
}

// commitFiles implements spec.md §4.4 steps 5-6: per-file atomic
// delete-then-insert across FragmentStore, VectorIndex and SymbolIndex,
// followed by the FileModificationRecord update. Every successfully
// processed file gets its record updated even when it produced zero
// fragments (an emptied file must still evict its stale fragments and not
// be reprocessed every run).
func (p *Pipeline) commitFiles(outcomes []fileOutcome, byFile map[string][]*fragment.Fragment) error {
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		frags := byFile[o.path]

		removed := p.store.DeleteByFile(o.path)
		p.vectors.DeleteByFile(removed)
		if err := p.symbols.DeleteIDs(removed); err != nil {
			return err
		}

		if len(frags) > 0 {
			pairs := make([]vectorindex.Pair, 0, len(frags))
			for _, f := range frags {
				if len(f.Embedding) == 0 {
					continue
				}
				pairs = append(pairs, vectorindex.Pair{ID: f.ID, Vector: f.Embedding})
			}
			// Vectors go in before fragments: if InsertBatch fails, this file's
			// fragments stay absent from the store (consistent with "none
			// committed") instead of sitting in the store without matching
			// vectors.
			if len(pairs) > 0 {
				if err := p.vectors.InsertBatch(pairs); err != nil {
					return cerrors.Wrap(err, cerrors.ErrCodeVectorDBError, "insert vectors").WithDetail("file", o.path)
				}
			}
			if err := p.store.PutBatch(frags); err != nil {
				return err
			}
			if err := p.symbols.IndexFragments(frags); err != nil {
				return err
			}
		}

		if err := p.store.SetModRecord(&fragment.FileModificationRecord{
			Path:             o.path,
			LastIndexedMtime: o.mtime,
		}); err != nil {
			return err
		}
	}
	return nil
}

// IndexFile re-extracts, re-embeds, and recommits a single file, reusing the
// same delete-before-insert-before-mtime-update sequence commitFiles applies
// across a full run. It is the unit of work the fsnotify-driven Watcher
// applies per changed file, without a full directory walk.
func (p *Pipeline) IndexFile(ctx context.Context, root, relPath string) error {
	absPath := filepath.Join(root, relPath)
	info, err := os.Stat(absPath)
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrCodeFileNotFound, "stat changed file")
	}

	outcome := p.processOne(ctx, candidateFile{path: relPath, absPath: absPath, mtime: info.ModTime(), size: info.Size()})
	if outcome.err != nil {
		return cerrors.Wrap(outcome.err, cerrors.ErrCodeParseError, "extract changed file").WithDetail("path", relPath)
	}

	if err := p.embedAll(ctx, outcome.fragments, func(int, string) {}); err != nil {
		return cerrors.Wrap(err, cerrors.ErrCodeEmbeddingFailed, "embed changed file").WithDetail("path", relPath)
	}

	return p.commitFiles([]fileOutcome{outcome}, groupByFile(outcome.fragments))
}

// RemoveFile evicts a deleted file's fragments from every collaborator
// without reprocessing it, and forgets its FileModificationRecord so a file
// later recreated at the same path is treated as new.
func (p *Pipeline) RemoveFile(relPath string) error {
	removed := p.store.DeleteByFile(relPath)
	p.vectors.DeleteByFile(removed)
	if err := p.symbols.DeleteIDs(removed); err != nil {
		return err
	}
	p.store.DeleteModRecord(relPath)
	return nil
}

func summarize(files, chunks, failed int) string {
	if failed == 0 {
		return "indexed cleanly"
	}
	return "indexed with per-file faults"
}

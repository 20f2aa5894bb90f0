package cmd

import (
	"os"
	"path/filepath"

	"github.com/ctxforge/ctxforge/internal/config"
	"github.com/ctxforge/ctxforge/internal/embed"
	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/retrieve"
	"github.com/ctxforge/ctxforge/internal/vectorindex"
)

// dataDirName is ctxforge's on-disk state directory, parallel to the
// teacher's .amanmcp layout.
const dataDirName = ".ctxforge"

// runtime bundles the persistent collaborators every ctxforge command needs:
// the fragment store, vector index, and derived symbol index.
type runtime struct {
	root     string
	dataDir  string
	cfg      *config.Config
	store    *fragment.SQLiteStore
	vectors  *vectorindex.Index
	symbols  *retrieve.SymbolIndex
	embedder embed.Embedder
}

func resolveRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	root, err := config.FindProjectRoot(abs)
	if err != nil {
		return abs, nil
	}
	return root, nil
}

func loadConfig(root string) *config.Config {
	cfgPath := filepath.Join(root, config.ConfigFileName)
	if cfg, err := config.Load(cfgPath); err == nil {
		return cfg
	}
	return config.Default()
}

// openRuntime opens (or creates) the persistent stores under root's data
// directory and rehydrates the symbol index from stored fragments, since
// the bleve-backed SymbolIndex itself is in-memory only.
func openRuntime(root string) (*runtime, error) {
	cfg := loadConfig(root)
	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	embedder := embed.NewCachedEmbedder(embed.NewStaticEmbedder(), embed.DefaultCacheSize)

	store, err := fragment.NewSQLiteStore(filepath.Join(dataDir, "fragments.db"))
	if err != nil {
		return nil, err
	}

	vectors := vectorindex.New(embedder.Dimensions())
	vectorsPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(vectorsPath + ".meta"); statErr == nil {
		_ = vectors.Load(vectorsPath)
	}

	symbols, err := retrieve.NewSymbolIndex()
	if err != nil {
		return nil, err
	}
	if ids := store.AllIDs(); len(ids) > 0 {
		if err := symbols.IndexFragments(store.GetBatch(ids)); err != nil {
			return nil, err
		}
	}

	return &runtime{root: root, dataDir: dataDir, cfg: cfg, store: store, vectors: vectors, symbols: symbols, embedder: embedder}, nil
}

func (r *runtime) close() error {
	if err := r.vectors.Save(filepath.Join(r.dataDir, "vectors.hnsw")); err != nil {
		return err
	}
	return r.store.Close()
}

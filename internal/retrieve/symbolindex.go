package retrieve

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	cerrors "github.com/ctxforge/ctxforge/internal/errors"
	"github.com/ctxforge/ctxforge/internal/fragment"
)

// symbolDoc is the document shape indexed for Hop 3 (symbol-definition
// lookup): the fragment's name and its exported identifiers, concatenated
// into one analyzed field so a single match query covers both.
type symbolDoc struct {
	Name    string `json:"name"`
	Exports string `json:"exports"`
}

// SymbolIndex is a bleve-backed inverted index over fragment names and
// exports, the same BM25 engine the teacher uses for its keyword search
// (internal/store/bm25.go), narrowed to the single field ctxforge needs:
// "does any fragment define this symbol or type".
type SymbolIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewSymbolIndex builds an empty, in-memory symbol index.
func NewSymbolIndex() (*SymbolIndex, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrCodeInternal, "create symbol index")
	}
	return &SymbolIndex{index: idx}, nil
}

// IndexFragments adds or replaces the symbol-lookup entries for fs.
func (si *SymbolIndex) IndexFragments(fs []*fragment.Fragment) error {
	if len(fs) == 0 {
		return nil
	}
	si.mu.Lock()
	defer si.mu.Unlock()
	batch := si.index.NewBatch()
	for _, f := range fs {
		doc := symbolDoc{Name: f.Name, Exports: strings.Join(f.Metadata.Exports, " ")}
		if err := batch.Index(f.ID, doc); err != nil {
			return cerrors.Wrap(err, cerrors.ErrCodeInternal, "index symbol doc").WithDetail("id", f.ID)
		}
	}
	return si.index.Batch(batch)
}

// DeleteIDs removes entries for the given fragment ids, mirroring
// FragmentStore.DeleteByFile's return value during re-indexing.
func (si *SymbolIndex) DeleteIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	si.mu.Lock()
	defer si.mu.Unlock()
	batch := si.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return si.index.Batch(batch)
}

// Lookup returns fragment ids whose name or exports plausibly match term,
// ranked by bleve's BM25 score. The Retriever still applies the spec's
// exact "equals or contains" rule afterward; this is the candidate gate
// that keeps that check off a full linear scan.
func (si *SymbolIndex) Lookup(term string, limit int) ([]string, error) {
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	si.mu.RLock()
	defer si.mu.RUnlock()

	q := bleve.NewMatchQuery(term)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	result, err := si.index.Search(req)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrCodeInternal, "symbol lookup").WithDetail("term", term)
	}
	out := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, hit.ID)
	}
	return out, nil
}

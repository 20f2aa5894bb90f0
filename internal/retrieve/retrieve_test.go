package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/intent"
	"github.com/ctxforge/ctxforge/internal/vectorindex"
)

func setup(t *testing.T) (*Retriever, *fragment.MemoryStore, *vectorindex.Index) {
	t.Helper()
	store := fragment.NewMemoryStore()
	vecs := vectorindex.New(2)
	symbols, err := NewSymbolIndex()
	require.NoError(t, err)
	return New(vecs, store, symbols), store, vecs
}

func putFragment(t *testing.T, store *fragment.MemoryStore, vecs *vectorindex.Index, si *SymbolIndex, f *fragment.Fragment, vector []float32) {
	t.Helper()
	require.NoError(t, store.Put(f))
	if vector != nil {
		require.NoError(t, vecs.Insert(f.ID, vector))
	}
	if si != nil {
		require.NoError(t, si.IndexFragments([]*fragment.Fragment{f}))
	}
}

func TestRetrieveHop1VectorSearch(t *testing.T) {
	r, store, vecs := setup(t)
	putFragment(t, store, vecs, nil, &fragment.Fragment{ID: "a", FilePath: "a.go", Name: "A", StartLine: 1, EndLine: 1}, []float32{1, 0})
	putFragment(t, store, vecs, nil, &fragment.Fragment{ID: "b", FilePath: "b.go", Name: "B", StartLine: 1, EndLine: 1}, []float32{0, 1})

	cands, err := r.Retrieve(context.Background(), []float32{1, 0}, intent.QueryIntent{}, Options{K: 1})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "a", cands[0].Fragment.ID)
	assert.Equal(t, TagVectorSearch, cands[0].Tag)
}

func TestRetrieveHop2DependencyExpansion(t *testing.T) {
	r, store, vecs := setup(t)
	putFragment(t, store, vecs, nil, &fragment.Fragment{
		ID: "a", FilePath: "a.go", Name: "A", StartLine: 1, EndLine: 1,
		Metadata: fragment.Metadata{Dependencies: []string{"b.go"}},
	}, []float32{1, 0})
	putFragment(t, store, vecs, nil, &fragment.Fragment{ID: "b", FilePath: "b.go", Name: "B", StartLine: 1, EndLine: 1}, nil)

	cands, err := r.Retrieve(context.Background(), []float32{1, 0}, intent.QueryIntent{}, Options{K: 1})
	require.NoError(t, err)
	var gotB bool
	for _, c := range cands {
		if c.Fragment.ID == "b" {
			gotB = true
			assert.Equal(t, TagRelatedFiles, c.Tag)
		}
	}
	assert.True(t, gotB)
}

func TestRetrieveHop3SymbolDefinition(t *testing.T) {
	store := fragment.NewMemoryStore()
	vecs := vectorindex.New(2)
	si, err := NewSymbolIndex()
	require.NoError(t, err)
	r := New(vecs, store, si)

	putFragment(t, store, vecs, si, &fragment.Fragment{ID: "a", FilePath: "a.go", Name: "fetchUserProfile", StartLine: 1, EndLine: 1}, nil)

	qi := intent.QueryIntent{Entities: []intent.Entity{{Type: intent.EntitySymbol, Value: "fetchUserProfile"}}}
	cands, err := r.Retrieve(context.Background(), nil, qi, Options{})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, TagSymbolDefinition, cands[0].Tag)
}

func TestRetrieveDeduplicatesAcrossHops(t *testing.T) {
	store := fragment.NewMemoryStore()
	vecs := vectorindex.New(2)
	si, err := NewSymbolIndex()
	require.NoError(t, err)
	r := New(vecs, store, si)

	putFragment(t, store, vecs, si, &fragment.Fragment{ID: "a", FilePath: "a.go", Name: "widget", StartLine: 1, EndLine: 1}, []float32{1, 0})

	qi := intent.QueryIntent{Entities: []intent.Entity{{Type: intent.EntitySymbol, Value: "widget"}}}
	cands, err := r.Retrieve(context.Background(), []float32{1, 0}, qi, Options{K: 5})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, TagVectorSearch, cands[0].Tag)
}

func TestRetrieveRespectsMaxCandidates(t *testing.T) {
	store := fragment.NewMemoryStore()
	vecs := vectorindex.New(1)
	r := New(vecs, store, nil)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		require.NoError(t, store.Put(&fragment.Fragment{ID: id, FilePath: id + ".go", Name: id, StartLine: 1, EndLine: 1}))
		require.NoError(t, vecs.Insert(id, []float32{float32(i)}))
	}
	cands, err := r.Retrieve(context.Background(), []float32{0}, intent.QueryIntent{}, Options{K: 10, MaxCandidates: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(cands), 3)
}

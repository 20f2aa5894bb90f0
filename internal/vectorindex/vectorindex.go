// Package vectorindex implements VectorIndex (spec.md §4.3): a store of
// (fragment-id, vector) pairs answering k-nearest-neighbor queries over
// cosine similarity, backed by coder/hnsw — the same pure-Go HNSW graph
// the teacher uses, adapted from its HNSWStore to the spec's narrower
// insert/insert_batch/delete_by_file/search/size contract.
package vectorindex

import (
	"bufio"
	"encoding/gob"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	cerrors "github.com/ctxforge/ctxforge/internal/errors"
)

// Result is one hit from Search: a fragment id and its cosine similarity
// score in [-1,1].
type Result struct {
	ID    string
	Score float32
}

// Filter narrows a search to ids satisfying pred; nil means unfiltered.
type Filter func(id string) bool

// Index is the VectorIndex collaborator. All stored vectors share a
// single dimension D, fixed at construction.
type Index struct {
	mu  sync.RWMutex
	dim int

	graph *hnsw.Graph[uint64]

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64

	// insertOrder preserves the order ids were first inserted, used to
	// break score ties deterministically (spec.md §4.3: "ties broken by
	// insertion order").
	insertOrder map[string]int
	seq         int
}

// New builds an empty Index for vectors of dimension dim.
func New(dim int) *Index {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return &Index{
		dim:         dim,
		graph:       g,
		idToKey:     make(map[string]uint64),
		keyToID:     make(map[uint64]string),
		insertOrder: make(map[string]int),
	}
}

// Dimensions returns the fixed vector width D this index accepts.
func (ix *Index) Dimensions() int { return ix.dim }

// Pair is the (id, vector) shape spec.md §6's
// `insert_batch(list[(id, vector<D>)])` describes.
type Pair struct {
	ID     string
	Vector []float32
}

// Insert stores (id, vector), replacing any existing entry for id.
func (ix *Index) Insert(id string, vector []float32) error {
	return ix.InsertBatch([]Pair{{ID: id, Vector: vector}})
}

// InsertBatch inserts many (id, vector) pairs. A failed insert (dimension
// mismatch) must not partially commit: the whole batch is validated
// before any vector is added to the graph.
func (ix *Index) InsertBatch(pairs []Pair) error {
	for _, p := range pairs {
		if len(p.Vector) != ix.dim {
			return cerrors.New(cerrors.ErrCodeDimensionMismatch, "vector dimension mismatch").
				WithDetail("expected", strconv.Itoa(ix.dim)).WithDetail("got", strconv.Itoa(len(p.Vector)))
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, p := range pairs {
		if existingKey, ok := ix.idToKey[p.ID]; ok {
			// Lazy deletion: orphan the old key rather than mutating the
			// graph in place, matching the teacher's HNSWStore.Add, which
			// avoids a coder/hnsw bug around deleting the last node.
			delete(ix.keyToID, existingKey)
			delete(ix.idToKey, p.ID)
		} else {
			ix.seq++
			ix.insertOrder[p.ID] = ix.seq
		}
		key := ix.nextKey
		ix.nextKey++
		vec := normalize(p.Vector)
		ix.graph.Add(hnsw.MakeNode(key, vec))
		ix.idToKey[p.ID] = key
		ix.keyToID[key] = p.ID
	}
	return nil
}

// DeleteByFile removes every vector whose fragment id belongs to path.
// Since the index itself holds no file-path metadata, callers pass the
// ids to remove (typically FragmentStore.DeleteByFile's return value).
func (ix *Index) DeleteByFile(ids []string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ids {
		if key, ok := ix.idToKey[id]; ok {
			delete(ix.keyToID, key)
			delete(ix.idToKey, id)
			delete(ix.insertOrder, id)
		}
	}
}

// Search returns at most k nearest neighbors to query by cosine
// similarity, descending, with ties broken by insertion order.
func (ix *Index) Search(query []float32, k int, filter Filter) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, cerrors.New(cerrors.ErrCodeDimensionMismatch, "query vector dimension mismatch").
			WithDetail("expected", strconv.Itoa(ix.dim)).WithDetail("got", strconv.Itoa(len(query)))
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}
	q := normalize(query)
	// Over-fetch to compensate for filtered-out and orphaned (lazily
	// deleted) nodes still present in the underlying graph.
	fetch := k * 4
	if fetch < k+len(ix.keyToID)-len(ix.idToKey) {
		fetch = k + (len(ix.keyToID) - len(ix.idToKey)) + k
	}
	if fetch > ix.graph.Len() {
		fetch = ix.graph.Len()
	}
	nodes := ix.graph.Search(q, fetch)

	out := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		id, ok := ix.keyToID[n.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		if filter != nil && !filter(id) {
			continue
		}
		dist := ix.graph.Distance(q, n.Value)
		out = append(out, Result{ID: id, Score: 1 - dist}) // CosineDistance is 1 - cos
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return ix.insertOrder[out[i].ID] < ix.insertOrder[out[j].ID]
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Size returns the number of live vectors (excluding lazily-deleted orphans).
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.idToKey)
}

// AllIDs returns every live id, for ConsistencyChecker (fragment package).
func (ix *Index) AllIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, 0, len(ix.idToKey))
	for id := range ix.idToKey {
		out = append(out, id)
	}
	return out
}

// persisted is the gob-encoded shape saved to disk, matching the
// teacher's hnswMetadata sidecar-file pattern.
type persisted struct {
	Dim         int
	IDToKey     map[string]uint64
	NextKey     uint64
	InsertOrder map[string]int
	Seq         int
}

// Save persists the graph (binary, via Export) and its id mappings
// (gob, as a `.meta` sidecar) atomically via temp-file-then-rename.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := ix.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	metaTmp := path + ".meta.tmp"
	mf, err := os.Create(metaTmp)
	if err != nil {
		return err
	}
	meta := persisted{
		Dim:         ix.dim,
		IDToKey:     ix.idToKey,
		NextKey:     ix.nextKey,
		InsertOrder: ix.insertOrder,
		Seq:         ix.seq,
	}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(metaTmp)
		return err
	}
	if err := mf.Close(); err != nil {
		os.Remove(metaTmp)
		return err
	}
	return os.Rename(metaTmp, path+".meta")
}

// Load restores a previously Saved index in place.
func (ix *Index) Load(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	mf, err := os.Open(path + ".meta")
	if err != nil {
		return err
	}
	defer mf.Close()
	var meta persisted
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ix.graph.Import(bufio.NewReader(f)); err != nil {
		return err
	}

	ix.dim = meta.Dim
	ix.idToKey = meta.IDToKey
	ix.nextKey = meta.NextKey
	ix.insertOrder = meta.InsertOrder
	ix.seq = meta.Seq
	ix.keyToID = make(map[uint64]string, len(ix.idToKey))
	for id, key := range ix.idToKey {
		ix.keyToID[key] = id
	}
	return nil
}

func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSq float64
	for _, x := range out {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range out {
		out[i] *= inv
	}
	return out
}

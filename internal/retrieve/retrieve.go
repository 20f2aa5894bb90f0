// Package retrieve implements the Retriever (spec.md §4.6): three-hop
// candidate expansion over vector similarity, import/dependency edges, and
// symbol definitions, adapted from the teacher's multi-signal expander
// (internal/search/expander.go, internal/search/decomposer.go) to walk a
// fragment graph instead of expanding query terms.
package retrieve

import (
	"context"
	"strings"

	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/intent"
	"github.com/ctxforge/ctxforge/internal/vectorindex"
)

// DefaultHopOneK is the default k passed to VectorIndex.Search for Hop 1.
const DefaultHopOneK = 20

// DefaultMaxCandidates bounds the total candidate count across all hops
// (spec.md §4.6's "hard per-query cap on total candidates").
const DefaultMaxCandidates = 200

// HopTag records which hop surfaced a candidate, for provenance.
type HopTag string

const (
	TagVectorSearch     HopTag = "vector_search"
	TagRelatedFiles     HopTag = "related_files"
	TagSymbolDefinition HopTag = "symbol_definition"
)

// Candidate is one deduplicated result of retrieve, carrying the hop that
// first surfaced it.
type Candidate struct {
	Fragment *fragment.Fragment
	Tag      HopTag
}

// Options configures a single retrieve call.
type Options struct {
	K             int // Hop 1 neighbor count; 0 means DefaultHopOneK.
	ExpansionHops int // Hop 2 depth: 1 (default) or 2.
	MaxCandidates int // 0 means DefaultMaxCandidates.
}

// Retriever implements the multi-hop expansion contract.
type Retriever struct {
	vectors *vectorindex.Index
	store   fragment.Store
	symbols *SymbolIndex
}

// New builds a Retriever over the given collaborators.
func New(vectors *vectorindex.Index, store fragment.Store, symbols *SymbolIndex) *Retriever {
	return &Retriever{vectors: vectors, store: store, symbols: symbols}
}

// Retrieve runs all three hops in order and returns deduplicated
// candidates, each tagged with the hop that discovered it first.
func (r *Retriever) Retrieve(ctx context.Context, queryVector []float32, qi intent.QueryIntent, opts Options) ([]Candidate, error) {
	k := opts.K
	if k <= 0 {
		k = DefaultHopOneK
	}
	maxCandidates := opts.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	expansionHops := opts.ExpansionHops
	if expansionHops <= 0 {
		expansionHops = 1
	}

	seen := map[string]bool{}
	var out []Candidate

	add := func(id string, tag HopTag) bool {
		if seen[id] || len(out) >= maxCandidates {
			return false
		}
		f, ok := r.store.Get(id)
		if !ok {
			return false
		}
		seen[id] = true
		out = append(out, Candidate{Fragment: f, Tag: tag})
		return true
	}

	// Hop 1: vector nearest.
	var hop1IDs []string
	if len(queryVector) > 0 && r.vectors != nil {
		results, err := r.vectors.Search(queryVector, k, nil)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			if add(res.ID, TagVectorSearch) {
				hop1IDs = append(hop1IDs, res.ID)
			}
		}
	}

	// Hop 2: dependency expansion, breadth-first up to expansionHops deep.
	frontier := hop1IDs
	for hop := 0; hop < expansionHops && len(out) < maxCandidates; hop++ {
		var next []string
		for _, id := range frontier {
			if len(out) >= maxCandidates {
				break
			}
			f, ok := r.store.Get(id)
			if !ok {
				continue
			}
			for _, dep := range dependencyPaths(f) {
				for _, cand := range r.store.FragmentsForFile(dep) {
					if add(cand.ID, TagRelatedFiles) {
						next = append(next, cand.ID)
					}
					if len(out) >= maxCandidates {
						break
					}
				}
			}
		}
		frontier = next
	}

	// Hop 3: symbol definitions for symbol/type entities in the query.
	if r.symbols != nil {
		for _, e := range qi.Entities {
			if len(out) >= maxCandidates {
				break
			}
			if e.Type != intent.EntitySymbol && e.Type != intent.EntityTypeName {
				continue
			}
			ids, err := r.symbols.Lookup(e.Value, maxCandidates)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				f, ok := r.store.Get(id)
				if !ok {
					continue
				}
				if !symbolMatches(f, e.Value) {
					continue
				}
				add(id, TagSymbolDefinition)
				if len(out) >= maxCandidates {
					break
				}
			}
		}
	}

	return out, nil
}

// dependencyPaths returns the file paths f depends on, per spec.md §4.6:
// "follow metadata.imports/dependencies edges".
func dependencyPaths(f *fragment.Fragment) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range f.Metadata.Dependencies {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range f.Metadata.Imports {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// symbolMatches applies spec.md §4.6's exact rule: name equals or contains
// the entity, or the entity occurs among metadata.exports.
func symbolMatches(f *fragment.Fragment, value string) bool {
	if f.Name == value || strings.Contains(f.Name, value) {
		return true
	}
	for _, e := range f.Metadata.Exports {
		if e == value {
			return true
		}
	}
	return false
}

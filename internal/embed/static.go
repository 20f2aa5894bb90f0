package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

// StaticDimensions is the vector width StaticEmbedder produces, matching
// the teacher's offline fallback embedder's dimensionality.
const StaticDimensions = 256

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticEmbedder is a hash-based, dependency-free fallback embedder: no
// network call, fully deterministic, reduced semantic quality. It exists
// for tests and as the WithFallback target when no neural provider is
// configured, matching the teacher's offline-mode fallback.
type StaticEmbedder struct{}

// NewStaticEmbedder builds a StaticEmbedder.
func NewStaticEmbedder() *StaticEmbedder { return &StaticEmbedder{} }

func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

func (e *StaticEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return normalize(e.vector(text)), nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = normalize(e.vector(t))
	}
	return out, nil
}

func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, StaticDimensions)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return v
	}
	for _, tok := range tokenize(trimmed) {
		v[hashToIndex(tok, StaticDimensions)] += tokenWeight
	}
	lowered := strings.ToLower(trimmed)
	for _, gram := range ngrams(lowered, ngramSize) {
		v[hashToIndex(gram, StaticDimensions)] += ngramWeight
	}
	return v
}

// tokenize splits on non-alphanumerics and further on camelCase/snake_case
// boundaries, the same code-aware splitting the symbol scorer relies on.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, part := range strings.Split(word, "_") {
			tokens = append(tokens, splitCamelCase(part)...)
		}
	}
	return tokens
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	var cur []rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper([]rune(s)[i-1]) {
			out = append(out, strings.ToLower(string(cur)))
			cur = nil
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, strings.ToLower(string(cur)))
	}
	return out
}

func ngrams(s string, n int) []string {
	if len(s) < n {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	out := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		out = append(out, s[i:i+n])
	}
	return out
}

func hashToIndex(s string, dim int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dim))
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

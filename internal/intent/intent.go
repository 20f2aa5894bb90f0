// Package intent implements the IntentAnalyzer (spec.md §4.5): parsing a
// query into a type classification, extracted entities, scope, and a
// complexity estimate, by the same keyword/regex pattern matching the
// teacher's PatternClassifier uses for query classification.
package intent

import (
	"regexp"
	"strings"
)

// Type is the exhaustive classification of what the user is trying to
// accomplish, matching spec.md §4.5.
type Type string

const (
	TypeBugFix     Type = "bug_fix"
	TypeFeatureAdd Type = "feature_add"
	TypeExplain    Type = "explain"
	TypeRefactor   Type = "refactor"
	TypeTest       Type = "test"
	TypeDebug      Type = "debug"
)

// Scope describes how much of the repository a query is expected to touch.
type Scope string

const (
	ScopeSingleFile Scope = "single_file"
	ScopeMultiFile  Scope = "multi_file"
	ScopeRepoWide   Scope = "repo_wide"
)

// EntityKind is the exhaustive set of things IntentAnalyzer extracts from
// a query, matching spec.md §3's QueryEmbedding.entities.
type EntityKind string

const (
	EntitySymbol   EntityKind = "symbol"
	EntityFile     EntityKind = "file"
	EntityTypeName EntityKind = "type"
	EntityKeyword  EntityKind = "keyword"
)

// Entity is one extracted token with its classification and, for symbols
// found by position, where it occurred in the raw query text.
type Entity struct {
	Type     EntityKind
	Value    string
	Position int
}

// UsageEvent is one entry of ScoringContext.usage_history (spec.md §3),
// needed here only to compute its length for the complexity estimate.
type UsageEvent struct {
	FragmentID string
	Helpful    bool
}

// QueryIntent is the IntentAnalyzer's output (spec.md §4.5).
type QueryIntent struct {
	Type            Type
	Entities        []Entity
	Scope           Scope
	Complexity      float64
	RequiresHistory bool
	Text            string
}

var typeKeywords = map[Type][]string{
	TypeBugFix:     {"bug", "fix", "broken", "error", "crash", "fails", "failing", "issue"},
	TypeFeatureAdd: {"add", "implement", "create", "new feature", "build", "support for"},
	TypeExplain:    {"explain", "what does", "how does", "understand", "describe", "walk me through"},
	TypeRefactor:   {"refactor", "clean up", "restructure", "reorganize", "simplify", "rewrite"},
	TypeTest:       {"test", "unit test", "coverage", "spec", "assert"},
	TypeDebug:      {"debug", "trace", "investigate", "why is", "diagnose", "log"},
}

// classifyOrder fixes the precedence among overlapping keyword matches:
// bug_fix and debug share vocabulary ("why is X broken"), so bug_fix wins.
var classifyOrder = []Type{TypeBugFix, TypeDebug, TypeTest, TypeRefactor, TypeFeatureAdd, TypeExplain}

var (
	filePathPattern = regexp.MustCompile(`[\w/.\-]+\.(ts|tsx|js|jsx|py|rs|go|java)\b`)
	symbolPattern   = regexp.MustCompile(`\b([a-z]+[A-Z][A-Za-z0-9]*|[A-Z][a-z0-9]+[A-Z][A-Za-z0-9]*|[a-z][a-z0-9]*(?:_[a-z0-9]+)+)\b`)
	typePattern     = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]*(?:<[A-Za-z0-9_, ]+>)?)\b`)
	archKeywords    = regexp.MustCompile(`(?i)\b(architecture|design|system|rethink)\b`)
)

var languageKeywords = []string{
	"function", "class", "method", "variable", "interface", "async", "await",
	"promise", "struct", "trait", "enum", "import", "export", "return",
}

// Analyzer implements the IntentAnalyzer contract.
type Analyzer struct{}

// New builds an Analyzer. It holds no state; every call is pure.
func New() *Analyzer { return &Analyzer{} }

// Analyze classifies query and extracts its entities, scope, and
// complexity. history is the caller's usage history length (spec.md
// §4.5's `len(history)` term); pass nil/empty when none is tracked.
func (a *Analyzer) Analyze(query string, history []UsageEvent) QueryIntent {
	t := classify(query)
	entities := extractEntities(query)
	scope := determineScope(t, entities)
	complexity := complexityScore(t, query, history)

	return QueryIntent{
		Type:            t,
		Entities:        entities,
		Scope:           scope,
		Complexity:      complexity,
		RequiresHistory: t == TypeDebug || t == TypeBugFix,
		Text:            query,
	}
}

func classify(query string) Type {
	lower := strings.ToLower(query)
	for _, t := range classifyOrder {
		for _, kw := range typeKeywords[t] {
			// Whole-word match, so "log" does not fire on "logs" or "logic".
			if regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`).MatchString(lower) {
				return t
			}
		}
	}
	return TypeExplain
}

func extractEntities(query string) []Entity {
	var out []Entity
	seen := map[string]bool{}

	for _, m := range filePathPattern.FindAllStringIndex(query, -1) {
		val := query[m[0]:m[1]]
		key := "file:" + val
		if !seen[key] {
			seen[key] = true
			out = append(out, Entity{Type: EntityFile, Value: val, Position: m[0]})
		}
	}
	for _, m := range symbolPattern.FindAllStringIndex(query, -1) {
		val := query[m[0]:m[1]]
		key := "symbol:" + val
		if !seen[key] {
			seen[key] = true
			out = append(out, Entity{Type: EntitySymbol, Value: val, Position: m[0]})
		}
	}
	for _, m := range typePattern.FindAllStringIndex(query, -1) {
		val := query[m[0]:m[1]]
		key := "type:" + val
		if !seen[key] {
			seen[key] = true
			out = append(out, Entity{Type: EntityTypeName, Value: val, Position: m[0]})
		}
	}
	lower := strings.ToLower(query)
	for _, kw := range languageKeywords {
		if strings.Contains(lower, kw) {
			key := "keyword:" + kw
			if !seen[key] {
				seen[key] = true
				out = append(out, Entity{Type: EntityKeyword, Value: kw, Position: strings.Index(lower, kw)})
			}
		}
	}
	return out
}

// determineScope implements spec.md §4.5's three-way rule: single_file if
// exactly one high-confidence file entity is present, repo_wide for
// explain queries (absent a specific file), otherwise multi_file.
func determineScope(t Type, entities []Entity) Scope {
	fileCount := 0
	for _, e := range entities {
		if e.Type == EntityFile {
			fileCount++
		}
	}
	if fileCount == 1 {
		return ScopeSingleFile
	}
	if t == TypeExplain {
		return ScopeRepoWide
	}
	return ScopeMultiFile
}

var typeAdjustment = map[Type]float64{
	TypeBugFix:     0,
	TypeFeatureAdd: 0.1,
	TypeExplain:    -0.2,
	TypeRefactor:   0.2,
	TypeTest:       -0.1,
	TypeDebug:      0.1,
}

// complexityScore implements spec.md §4.5's additive formula: base 0.5,
// adjusted by intent type, query length, history length, and an
// architecture-keyword bonus, clamped to [0,1].
func complexityScore(t Type, query string, history []UsageEvent) float64 {
	c := 0.5 + typeAdjustment[t]

	lenBonus := float64(len(query)) / 1000
	if lenBonus > 0.2 {
		lenBonus = 0.2
	}
	c += lenBonus

	histBonus := float64(len(history)) / 20
	if histBonus > 0.2 {
		histBonus = 0.2
	}
	c += histBonus

	if archKeywords.MatchString(query) {
		c += 0.2
	}

	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

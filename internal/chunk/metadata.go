package chunk

import (
	"regexp"
	"unicode"

	"github.com/ctxforge/ctxforge/internal/fragment"
)

// declPattern finds names introduced by a declaration keyword anywhere in
// a fragment's content, covering nested types/functions inside the
// fragment body as well as its own top-level symbol.
var declPattern = regexp.MustCompile(`\b(?:func|type|const|var|class|struct|interface|fn|def|static|enum)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// qualifiedRefPattern matches `alias.Name` / `alias::name` style references,
// the shape an import-qualified external symbol takes in every language
// this package registers.
var qualifiedRefPattern = regexp.MustCompile(`\b([a-z_][a-zA-Z0-9_]*)(?:\.|::)([A-Za-z_][A-Za-z0-9_]*)`)

var importPathPattern = regexp.MustCompile(`["']([^"']+)["']`)

// extractMetadata derives the exports/imports/dependencies triple the
// fragment data model carries (spec.md §4.1): exports are names this
// fragment introduces and that would be visible outside it; imports are
// names it references from elsewhere; dependencies are the module/file
// identifiers those references resolve through, approximated from the
// surrounding file's import preamble.
func extractMetadata(content, fileContext, language string) fragment.Metadata {
	exportSet := map[string]struct{}{}
	for _, m := range declPattern.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if language == "go" || language == "rust" {
			if !isExportedName(name) {
				continue
			}
		}
		exportSet[name] = struct{}{}
	}

	importSet := map[string]struct{}{}
	for _, m := range qualifiedRefPattern.FindAllStringSubmatch(content, -1) {
		importSet[m[1]] = struct{}{}
	}

	var deps []string
	if fileContext != "" {
		seen := map[string]struct{}{}
		for _, m := range importPathPattern.FindAllStringSubmatch(fileContext, -1) {
			path := m[1]
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			deps = append(deps, path)
		}
	}

	return fragment.Metadata{
		Exports:      setToSortedSlice(exportSet),
		Imports:      setToSortedSlice(importSet),
		Dependencies: deps,
	}
}

func isExportedName(name string) bool {
	if name == "" {
		return false
	}
	return unicode.IsUpper(rune(name[0]))
}

func setToSortedSlice(s map[string]struct{}) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	// stable, deterministic ordering matters for fragment.id-independent
	// reproducibility of metadata in tests
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxforge/ctxforge/internal/fragment"
)

func TestExtract_GoFunctionProducesOneFragment(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	src := []byte("package main\n\n// Add sums two ints.\nfunc Add(a, b int) int {\n\treturn a + b\n}\n")
	frags, err := e.Extract(context.Background(), &FileInput{Path: "a.go", Content: src, Language: "go"})
	require.NoError(t, err)
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, "Add", f.Name)
	assert.Equal(t, "go", f.Language)
	assert.Contains(t, f.Content, "func Add")
	assert.Contains(t, f.Metadata.Exports, "Add")
	assert.LessOrEqual(t, f.StartLine, f.EndLine)
}

func TestExtract_UnsupportedLanguageFallsBackToLineChunks(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	src := []byte(strings.Repeat("some plain text line\n", 5))
	frags, err := e.Extract(context.Background(), &FileInput{Path: "notes.txt", Content: src, Language: "plaintext"})
	require.NoError(t, err)
	require.NotEmpty(t, frags)
	assert.Equal(t, fragment.KindVariable, frags[0].Kind)
}

func TestExtract_EmptyContentProducesNoFragments(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	frags, err := e.Extract(context.Background(), &FileInput{Path: "empty.go", Content: nil, Language: "go"})
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestEstimateTokens_ClampedToAtLeastOne(t *testing.T) {
	assert.Equal(t, 1, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
	assert.Equal(t, 2, estimateTokens("12345678"))
}

func TestExtractMetadata_ExportsExportedGoNamesOnly(t *testing.T) {
	meta := extractMetadata("func Add(a int) int { return a }\nfunc helper() {}", "", "go")
	assert.Contains(t, meta.Exports, "Add")
	assert.NotContains(t, meta.Exports, "helper")
}

func TestExtractMetadata_DependenciesFromFileContext(t *testing.T) {
	meta := extractMetadata("foo.Bar()", `import "encoding/json"`, "go")
	assert.Contains(t, meta.Dependencies, "encoding/json")
}

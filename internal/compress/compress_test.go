package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/tokencount"
)

func TestCompressLightStripsComments(t *testing.T) {
	f := &fragment.Fragment{
		FilePath: "a.go", StartLine: 1, EndLine: 4, Kind: fragment.KindFunction, Name: "Foo",
		Content: "func Foo() {\n// a comment\nreturn \"http://x\" // trailing\n}",
	}
	r := Compress(f, LevelLight)
	assert.NotContains(t, r.Content, "a comment")
	assert.Contains(t, r.Content, "http://x")
	assert.Equal(t, LevelLight, r.Level)
}

func TestCompressMediumCollapsesWhitespace(t *testing.T) {
	f := &fragment.Fragment{
		FilePath: "a.go", StartLine: 1, EndLine: 3, Kind: fragment.KindFunction, Name: "Foo",
		Content: "func Foo() {\n    x   :=    1\n}",
	}
	r := Compress(f, LevelMedium)
	assert.NotContains(t, r.Content, "    ")
}

func TestCompressAggressiveKeepsHeadAndTail(t *testing.T) {
	var lines []string
	lines = append(lines, "func Foo() {")
	for i := 0; i < 20; i++ {
		lines = append(lines, "x := 1")
	}
	lines = append(lines, "}")
	content := strings.Join(lines, "\n")

	f := &fragment.Fragment{
		FilePath: "a.go", StartLine: 1, EndLine: len(lines), Kind: fragment.KindFunction, Name: "Foo",
		Content: content,
	}
	r := Compress(f, LevelAggressive)
	assert.Equal(t, LevelAggressive, r.Level)
	assert.Contains(t, r.Content, "func Foo() {")
	assert.Contains(t, r.Content, "...")
}

func TestCompressRatioIsWithinUnitRange(t *testing.T) {
	f := &fragment.Fragment{
		FilePath: "a.go", StartLine: 1, EndLine: 2, Kind: fragment.KindFunction, Name: "Foo",
		Content: "func Foo() {\nreturn 1\n}",
	}
	r := Compress(f, LevelMedium)
	require.Greater(t, r.OriginalTokens, 0)
	assert.Greater(t, r.Ratio(), 0.0)
	assert.LessOrEqual(t, r.Ratio(), 1.0)
}

func TestCompressHeaderCountedInTokens(t *testing.T) {
	f := &fragment.Fragment{
		FilePath: "a.go", StartLine: 1, EndLine: 12, Kind: fragment.KindFunction, Name: "Foo",
		Content: "func Foo() {\n" + strings.Repeat("x := 1 // explain the assignment in some detail\n", 10) + "}",
	}
	r := Compress(f, LevelLight)
	assert.True(t, strings.HasPrefix(r.Content, "//"))
	assert.Greater(t, r.CompressedTokens, 0)
	assert.Equal(t, tokencount.Estimate(r.Content), r.CompressedTokens)
}

func TestCompressNeverExceedsOriginalTokensForShortFragments(t *testing.T) {
	f := &fragment.Fragment{
		FilePath: "a.go", StartLine: 1, EndLine: 1, Kind: fragment.KindFunction, Name: "Foo",
		Content: "func Foo() {}",
	}
	r := Compress(f, LevelLight)
	assert.NotContains(t, r.Content, "//", "header overhead must be dropped when it would exceed the original")
	require.Greater(t, r.CompressedTokens, 0)
	assert.LessOrEqual(t, r.CompressedTokens, r.OriginalTokens)
}

func TestCompressMonotonicityAboveTokenFloor(t *testing.T) {
	var lines []string
	lines = append(lines, "func Foo() {")
	for i := 0; i < 20; i++ {
		lines = append(lines, "x := 1 // keep me honest")
	}
	lines = append(lines, "}")
	f := &fragment.Fragment{
		FilePath: "a.go", StartLine: 1, EndLine: len(lines), Kind: fragment.KindFunction, Name: "Foo",
		Content: strings.Join(lines, "\n"),
	}
	require.GreaterOrEqual(t, tokencount.Estimate(f.Content), 20)

	for _, lvl := range []Level{LevelLight, LevelMedium, LevelAggressive} {
		r := Compress(f, lvl)
		assert.Greater(t, r.CompressedTokens, 0, "level %s", lvl)
		assert.LessOrEqual(t, r.CompressedTokens, r.OriginalTokens, "level %s", lvl)
	}
}

func TestCompressAggressiveKeepsExportedName(t *testing.T) {
	f := &fragment.Fragment{
		FilePath: "a.go", StartLine: 1, EndLine: 5, Kind: fragment.KindFunction, Name: "Foo",
		Content:  "func Foo() {\nx := 1\ny := 2\nz := 3\n}",
		Metadata: fragment.Metadata{Exports: []string{"Foo"}},
	}
	r := Compress(f, LevelAggressive)
	assert.Contains(t, r.Content, "Foo")
}

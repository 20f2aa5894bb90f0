// Package compress implements the Compressor (spec.md §4.9): three
// cumulative compression levels plus a quality gate, grounded on the same
// regex-driven text-scanning style chunk/metadata.go uses for structural
// extraction.
package compress

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/tokencount"
)

// Level is one of the three cumulative compression levels.
type Level string

const (
	LevelLight      Level = "light"
	LevelMedium     Level = "medium"
	LevelAggressive Level = "aggressive"
)

// levelOrder lets the quality-gate retry step downgrade by one notch.
var levelOrder = []Level{LevelAggressive, LevelMedium, LevelLight}

// Result is CompressedFragment (spec.md §3).
type Result struct {
	Original         *fragment.Fragment
	Content          string
	OriginalTokens   int
	CompressedTokens int
	Level            Level
}

// Ratio implements CompressedFragment.ratio = compressed/original.
func (r Result) Ratio() float64 {
	if r.OriginalTokens == 0 {
		return 1
	}
	return float64(r.CompressedTokens) / float64(r.OriginalTokens)
}

var (
	blockCommentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentPattern   = regexp.MustCompile(`(^|[^:])//[^\n]*`)
	hashCommentPattern   = regexp.MustCompile(`(^|\s)#[^\n]*`)
	whitespaceRunPattern = regexp.MustCompile(`[ \t]+`)
	stringLiteralPattern = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
)

// Compress implements compress(fragment, level), retrying one level lower
// whenever the quality gate fails, per spec.md §4.9.
func Compress(f *fragment.Fragment, level Level) Result {
	idx := indexOfLevel(level)
	for i := idx; i < len(levelOrder); i++ {
		lvl := levelOrder[i]
		body := compressBody(f.Content, lvl)
		if qualityGate(f, body) || lvl == LevelLight {
			return finalize(f, body, lvl)
		}
	}
	// Unreachable in practice: LevelLight always passes the gate.
	return finalize(f, f.Content, LevelLight)
}

func indexOfLevel(level Level) int {
	for i, l := range levelOrder {
		if l == level {
			return i
		}
	}
	return len(levelOrder) - 1 // unknown level defaults to light
}

// compressBody applies level's transformation, each cumulative on the
// previous, protecting string-literal contents throughout.
func compressBody(content string, level Level) string {
	body := stripComments(content)
	if level == LevelLight {
		return body
	}
	body = collapseWhitespace(body)
	if level == LevelMedium {
		return body
	}
	return reduceToSkeleton(content, body)
}

// stripComments removes block and line comments while leaving string
// literals untouched, by protecting literals with placeholders first.
func stripComments(content string) string {
	literals := stringLiteralPattern.FindAllString(content, -1)
	protected := content
	for i, lit := range literals {
		protected = strings.Replace(protected, lit, fmt.Sprintf("\x00LIT%d\x00", i), 1)
	}

	protected = blockCommentPattern.ReplaceAllString(protected, "")
	protected = lineCommentPattern.ReplaceAllString(protected, "$1")
	protected = hashCommentPattern.ReplaceAllString(protected, "$1")

	for i, lit := range literals {
		protected = strings.Replace(protected, fmt.Sprintf("\x00LIT%d\x00", i), lit, 1)
	}
	return protected
}

// collapseWhitespace folds runs of horizontal whitespace to a single
// space, preserving newlines so line-oriented checks still work, and
// leaves string-literal contents untouched.
func collapseWhitespace(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = whitespaceRunPattern.ReplaceAllString(strings.TrimRight(line, " \t"), " ")
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimSpace(collapseBlankLines(joined))
}

func collapseBlankLines(content string) string {
	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// reduceToSkeleton implements spec.md §4.9's aggressive level: signature
// plus the first and last n non-empty body lines, n = min(3, bodyLines/2).
// The signature is the original's first non-empty line; body lines come from
// the medium-level output, so the level stays cumulative.
func reduceToSkeleton(original, mediumBody string) string {
	nonEmpty := nonEmptyLines(original)
	mediumLines := nonEmptyLines(mediumBody)
	if len(nonEmpty) == 0 || len(mediumLines) == 0 {
		return mediumBody
	}
	signature := nonEmpty[0]
	body := mediumLines[1:]
	n := len(body) / 2
	if n > 3 {
		n = 3
	}
	if n == 0 {
		return signature
	}
	if len(body) <= 2*n {
		return signature + "\n" + strings.Join(body, "\n")
	}
	head := body[:n]
	tail := body[len(body)-n:]
	var b strings.Builder
	b.WriteString(signature)
	b.WriteString("\n")
	for _, l := range head {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("...\n")
	for _, l := range tail {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func nonEmptyLines(content string) []string {
	var out []string
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// qualityGate implements spec.md §4.9's signature-preservation and
// exports-preservation checks.
func qualityGate(f *fragment.Fragment, compressed string) bool {
	originalFirst := firstNonEmptyLine(f.Content)
	compressedFirst := firstNonEmptyLine(compressed)
	if strings.TrimSpace(originalFirst) != strings.TrimSpace(compressedFirst) {
		return false
	}
	for _, name := range f.Metadata.Exports {
		if !strings.Contains(compressed, name) {
			return false
		}
	}
	return true
}

func firstNonEmptyLine(content string) string {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	return ""
}

// finalize builds the Result, prefixing the metadata header counted in
// compressed_tokens per spec.md §4.9. spec.md §8 requires
// 0 < compressed_tokens <= original_tokens; for small fragments the header
// alone can cost more than the whole original, so the header is dropped (and,
// failing that, the body too) rather than let the invariant break.
func finalize(f *fragment.Fragment, body string, level Level) Result {
	originalTokens := tokencount.Estimate(f.Content)
	bodyTokens := tokencount.Estimate(body)
	header := metadataHeader(f, level, bodyTokens, originalTokens)
	full := header + "\n" + body
	fullTokens := tokencount.Estimate(full)

	switch {
	case fullTokens <= originalTokens:
		return Result{Original: f, Content: full, OriginalTokens: originalTokens, CompressedTokens: fullTokens, Level: level}
	case bodyTokens > 0 && bodyTokens <= originalTokens:
		return Result{Original: f, Content: body, OriginalTokens: originalTokens, CompressedTokens: bodyTokens, Level: level}
	default:
		return Result{Original: f, Content: f.Content, OriginalTokens: originalTokens, CompressedTokens: originalTokens, Level: level}
	}
}

func metadataHeader(f *fragment.Fragment, level Level, compressedTokens, originalTokens int) string {
	reduction := 0.0
	if originalTokens > 0 {
		reduction = 100 * (1 - float64(compressedTokens)/float64(originalTokens))
	}
	return fmt.Sprintf(
		"// %s:%d-%d | %s %s | %d/%d tokens (%.0f%% reduction) | level=%s",
		f.FilePath, f.StartLine, f.EndLine, f.Kind, f.Name,
		compressedTokens, originalTokens, reduction, level,
	)
}

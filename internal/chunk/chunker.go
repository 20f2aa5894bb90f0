package chunk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ctxforge/ctxforge/internal/fragment"
	"github.com/ctxforge/ctxforge/internal/tokencount"
)

// estimateTokens is the shared tokencount estimator: len/4, at least 1.
func estimateTokens(s string) int { return tokencount.Estimate(s) }

// Options configures the ChunkExtractor's size policy.
type Options struct {
	MaxChunkTokens int
	OverlapTokens  int
}

// Extractor is the ChunkExtractor described in spec.md §4.1: given a
// source file's bytes and detected language, it emits an ordered sequence
// of Fragments with line ranges and structural metadata. Parsing itself is
// delegated to Parser (tree-sitter, a black-box collaborator); this type
// owns the chunk-size policy, subdivision, and metadata extraction that
// make up the actual core component.
type Extractor struct {
	parser   *Parser
	symbols  *symbolExtractor
	registry *LanguageRegistry
	options  Options
}

// NewExtractor builds an Extractor with default size options.
func NewExtractor() *Extractor {
	return NewExtractorWithOptions(Options{})
}

// NewExtractorWithOptions builds an Extractor with custom size options,
// filling in spec.md §4.1 defaults (512 target tokens, 128 overlap) for
// any zero value.
func NewExtractorWithOptions(opts Options) *Extractor {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	registry := DefaultRegistry()
	return &Extractor{
		parser:   NewParserWithRegistry(registry),
		symbols:  newSymbolExtractor(registry),
		registry: registry,
		options:  opts,
	}
}

// Close releases the underlying tree-sitter parser.
func (e *Extractor) Close() {
	e.parser.Close()
}

// SupportedExtensions lists every extension with a registered grammar.
func (e *Extractor) SupportedExtensions() []string {
	return e.registry.SupportedExtensions()
}

// Extract implements the ChunkExtractor contract. It never errors on
// syntax errors in the input — parsing proceeds through them, emitting
// fragments for well-formed subtrees. It fails only when the language is
// unrecognized and no fallback applies, or when the extractor itself
// cannot run (never happens for line-based fallback).
func (e *Extractor) Extract(ctx context.Context, file *FileInput) ([]*fragment.Fragment, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}
	if _, supported := e.registry.GetByName(file.Language); !supported {
		return e.extractByLines(file), nil
	}

	tree, err := e.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		// Parse failure on recognized language still falls back, per
		// spec.md §4.1: "must not throw on syntax errors."
		return e.extractByLines(file), nil
	}

	fileContext := e.extractFileContext(tree, file.Language)
	nodes := e.findSymbolNodes(tree, file.Language)
	if len(nodes) == 0 {
		return nil, nil
	}

	now := time.Now()
	var out []*fragment.Fragment
	for _, sn := range nodes {
		out = append(out, e.fragmentsFromNode(sn, tree, file, fileContext, now)...)
	}
	return out, nil
}

type symbolNode struct {
	node   *Node
	symbol *Symbol
}

func (e *Extractor) findSymbolNodes(tree *Tree, language string) []*symbolNode {
	config, ok := e.registry.GetByName(language)
	if !ok {
		return nil
	}
	var nodes []*symbolNode
	tree.Root.Walk(func(n *Node) bool {
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if sym := e.symbols.extractSpecialSymbol(n, tree.Source, language); sym != nil {
				nodes = append(nodes, &symbolNode{node: n, symbol: sym})
				return true
			}
		}
		if symType, ok := classify(n, config); ok {
			name := e.symbols.extractName(n, tree.Source, language)
			if name == "" {
				return true
			}
			nodes = append(nodes, &symbolNode{node: n, symbol: &Symbol{
				Name:       name,
				Type:       symType,
				StartLine:  int(n.StartPoint.Row) + 1,
				EndLine:    int(n.EndPoint.Row) + 1,
				Signature:  e.symbols.extractSignature(n, tree.Source),
				DocComment: e.symbols.extractDocComment(n, tree.Source, language),
			}})
		}
		return true
	})
	return nodes
}

func symbolKind(t SymbolType) fragment.Kind {
	switch t {
	case SymbolTypeClass:
		return fragment.KindClass
	case SymbolTypeMethod:
		return fragment.KindMethod
	case SymbolTypeInterface:
		return fragment.KindInterface
	case SymbolTypeVariable, SymbolTypeConstant:
		return fragment.KindVariable
	default:
		return fragment.KindFunction
	}
}

func (e *Extractor) fragmentsFromNode(sn *symbolNode, tree *Tree, file *FileInput, fileContext string, now time.Time) []*fragment.Fragment {
	content := sn.node.GetContent(tree.Source)
	if sn.symbol.DocComment != "" {
		content = prependDocComment(sn.node, tree.Source, sn.symbol.DocComment)
	}
	if estimateTokens(content) <= e.options.MaxChunkTokens {
		return []*fragment.Fragment{e.makeFragment(file, content, fileContext, sn.symbol, sn.symbol.StartLine, sn.symbol.EndLine, now)}
	}
	return e.splitByStatements(sn, tree, file, fileContext, now)
}

// splitByStatements subdivides an oversized symbol along statement
// boundaries: it locates the node's block/body child and groups that
// child's direct statements into size-bounded runs, so no split ever
// falls mid-token (spec.md §4.1).
func (e *Extractor) splitByStatements(sn *symbolNode, tree *Tree, file *FileInput, fileContext string, now time.Time) []*fragment.Fragment {
	body := findBody(sn.node)
	if body == nil || len(body.Children) < 2 {
		return e.splitByLines(sn, tree, file, fileContext, now)
	}

	type group struct {
		start, end *Node
	}
	var groups []group
	var cur []*Node
	curTokens := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		groups = append(groups, group{start: cur[0], end: cur[len(cur)-1]})
		cur = nil
		curTokens = 0
	}
	for _, stmt := range body.Children {
		stmtTokens := estimateTokens(stmt.GetContent(tree.Source))
		if curTokens > 0 && curTokens+stmtTokens > e.options.MaxChunkTokens {
			flush()
		}
		cur = append(cur, stmt)
		curTokens += stmtTokens
	}
	flush()

	if len(groups) == 0 {
		return e.splitByLines(sn, tree, file, fileContext, now)
	}

	var out []*fragment.Fragment
	for i, g := range groups {
		startByte := sn.node.StartByte
		if i > 0 {
			startByte = g.start.StartByte
		}
		content := string(tree.Source[startByte:g.end.EndByte])
		startLine := int(g.start.StartPoint.Row) + 1
		if i == 0 {
			startLine = sn.symbol.StartLine
		}
		endLine := int(g.end.EndPoint.Row) + 1
		partSymbol := &Symbol{
			Name:      fmt.Sprintf("%s_part%d", sn.symbol.Name, i+1),
			Type:      sn.symbol.Type,
			Signature: sn.symbol.Signature,
		}
		out = append(out, e.makeFragment(file, content, fileContext, partSymbol, startLine, endLine, now))
	}
	return out
}

// findBody locates the statement-block child of a symbol-defining node,
// across the grammars this package registers.
func findBody(n *Node) *Node {
	for _, t := range []string{"block", "function_body", "class_body", "compound_statement"} {
		if b := n.FindChildByType(t); b != nil {
			return b
		}
	}
	return nil
}

// splitByLines is the fallback subdivision strategy when a symbol has no
// recognizable statement-block child (e.g. a single giant expression).
func (e *Extractor) splitByLines(sn *symbolNode, tree *Tree, file *FileInput, fileContext string, now time.Time) []*fragment.Fragment {
	content := sn.node.GetContent(tree.Source)
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}
	maxLinesPerChunk := (e.options.MaxChunkTokens * TokensPerChar) / 80
	if maxLinesPerChunk < 20 {
		maxLinesPerChunk = 20
	}
	overlapLines := (e.options.OverlapTokens * TokensPerChar) / 80
	if overlapLines < 2 {
		overlapLines = 2
	}

	var out []*fragment.Fragment
	startLine := sn.symbol.StartLine
	for i := 0; i < len(lines); {
		end := i + maxLinesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		chunkContent := strings.Join(lines[i:end], "\n")
		partSymbol := &Symbol{
			Name:      fmt.Sprintf("%s_part%d", sn.symbol.Name, len(out)+1),
			Type:      sn.symbol.Type,
			Signature: sn.symbol.Signature,
		}
		out = append(out, e.makeFragment(file, chunkContent, fileContext, partSymbol, startLine+i, startLine+end-1, now))

		next := end - overlapLines
		if next <= i || end >= len(lines) {
			break
		}
		i = next
	}
	return out
}

func (e *Extractor) makeFragment(file *FileInput, content, fileContext string, sym *Symbol, startLine, endLine int, now time.Time) *fragment.Fragment {
	full := content
	if fileContext != "" {
		full = fileContext + "\n\n" + content
	}
	meta := extractMetadata(content, fileContext, file.Language)
	return &fragment.Fragment{
		ID:           fragment.NewID(file.Path, full, startLine, endLine),
		FilePath:     file.Path,
		Name:         fallbackName(sym.Name, startLine, endLine),
		Kind:         symbolKind(sym.Type),
		StartLine:    startLine,
		EndLine:      endLine,
		Content:      full,
		Signature:    sym.Signature,
		Language:     file.Language,
		Metadata:     meta,
		LastModified: now,
	}
}

func fallbackName(name string, start, end int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("lines-%d-%d", start, end)
}

func prependDocComment(n *Node, source []byte, doc string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	docLines := strings.Count(doc, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}
	return string(source[lineStart:n.EndByte])
}

// extractByLines is the fallback chunker for languages with no registered
// grammar: fixed-size line windows with overlap, tagged KindVariable.
func (e *Extractor) extractByLines(file *FileInput) []*fragment.Fragment {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	linesPerChunk := 128
	overlapLines := 16
	now := time.Now()

	var out []*fragment.Fragment
	for i := 0; i < len(lines); {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		chunkContent := strings.Join(lines[i:end], "\n")
		startLine := i + 1
		endLine := end
		out = append(out, &fragment.Fragment{
			ID:           fragment.NewID(file.Path, chunkContent, startLine, endLine),
			FilePath:     file.Path,
			Name:         fmt.Sprintf("lines-%d-%d", startLine, endLine),
			Kind:         fragment.KindVariable,
			StartLine:    startLine,
			EndLine:      endLine,
			Content:      chunkContent,
			Language:     file.Language,
			LastModified: now,
		})
		next := end - overlapLines
		if next <= i || end >= len(lines) {
			break
		}
		i = next
	}
	return out
}

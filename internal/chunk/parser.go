package chunk

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	cerrors "github.com/ctxforge/ctxforge/internal/errors"
)

// Parser wraps tree-sitter, the black-box AST-parsing collaborator
// spec.md §1 delegates to. It owns no chunking policy.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser builds a Parser over the default language registry.
func NewParser() *Parser {
	return NewParserWithRegistry(DefaultRegistry())
}

// NewParserWithRegistry builds a Parser over a custom registry.
func NewParserWithRegistry(registry *LanguageRegistry) *Parser {
	return &Parser{parser: sitter.NewParser(), registry: registry}
}

// Parse parses source as the given language, returning our own Tree
// representation. It never panics on malformed input; tree-sitter's
// error-recovery mode produces a best-effort tree with HasError nodes
// marking the unparsed regions, matching spec.md §4.1's "parsing proceeds
// through syntax errors."
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, cerrors.New(cerrors.ErrCodeParseError, "unsupported language").WithDetail("language", language)
	}
	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrCodeParseError, "parse source")
	}
	if tsTree == nil {
		return nil, cerrors.New(cerrors.ErrCodeParseError, "nil parse tree")
	}

	return &Tree{
		Root:     convertNode(tsTree.RootNode(), source),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(tsNode *sitter.Node, source []byte) *Node {
	if tsNode == nil {
		return nil
	}
	node := &Node{
		Type:       tsNode.Type(),
		StartByte:  tsNode.StartByte(),
		EndByte:    tsNode.EndByte(),
		StartPoint: Point{Row: tsNode.StartPoint().Row, Column: tsNode.StartPoint().Column},
		EndPoint:   Point{Row: tsNode.EndPoint().Row, Column: tsNode.EndPoint().Column},
		HasError:   tsNode.HasError(),
		Children:   make([]*Node, 0, int(tsNode.ChildCount())),
	}
	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child, source))
		}
	}
	return node
}

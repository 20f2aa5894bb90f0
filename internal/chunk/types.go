// Package chunk implements the ChunkExtractor: a tree-sitter powered parser
// wrapper (the black-box AST-parsing boundary, spec.md §1) plus the
// chunking size/overlap/subdivision policy layered on top of it, which is
// the actual core component (spec.md §2, ~12% share).
package chunk

// ContentType distinguishes code fragments from the fallback line-based
// chunking applied to unsupported languages.
type ContentType string

const (
	ContentTypeCode ContentType = "code"
	ContentTypeText ContentType = "text"
)

// Chunk size defaults, matching spec.md §4.1 ("target token size default
// 512; overlap default 128").
const (
	DefaultMaxChunkTokens = 512
	DefaultOverlapTokens  = 128
	TokensPerChar         = 4
)

// SymbolType mirrors fragment.Kind but at the AST-extraction layer, before
// a node is turned into a Fragment; kept separate so the parser package has
// no dependency on the fragment package's id/store concerns.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol is a named construct discovered in the AST.
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// FileInput is the input to Extract: a file's path, raw bytes, and
// detected language.
type FileInput struct {
	Path     string
	Content  []byte
	Language string
}

// Tree is a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a single AST node, translated out of tree-sitter's own node type
// so the rest of the package never touches cgo-adjacent tree-sitter
// internals directly.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a row/column position in the source.
type Point struct {
	Row    uint32
	Column uint32
}

// LanguageConfig describes which AST node types carry which kind of symbol
// for one language, so the walker stays language-agnostic.
type LanguageConfig struct {
	Name           string
	Extensions     []string
	FunctionTypes  []string
	ClassTypes     []string
	InterfaceTypes []string
	MethodTypes    []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string
	NameField      string
}

// GetContent returns the source slice a node spans.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child of the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindChildrenByType returns all direct children of the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Type == nodeType {
			result = append(result, child)
		}
	}
	return result
}

// FindAllByType recursively collects every node of the given type.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node
	if n.Type == nodeType {
		result = append(result, n)
	}
	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}
	return result
}

// Walk traverses the tree depth-first, calling fn for every node. Return
// false from fn to stop descending into that node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

package chunk

import "strings"

// symbolExtractor pulls name/signature/doc-comment metadata out of a
// symbol-defining AST node. It is a pure helper consulted by Extractor,
// not a public contract of the package.
type symbolExtractor struct {
	registry *LanguageRegistry
}

func newSymbolExtractor(registry *LanguageRegistry) *symbolExtractor {
	return &symbolExtractor{registry: registry}
}

// classify returns the SymbolType for n given language config, or false if
// n is not a symbol-defining node for that language.
func classify(n *Node, config *LanguageConfig) (SymbolType, bool) {
	switch {
	case contains(config.FunctionTypes, n.Type):
		return SymbolTypeFunction, true
	case contains(config.MethodTypes, n.Type):
		return SymbolTypeMethod, true
	case contains(config.ClassTypes, n.Type):
		return SymbolTypeClass, true
	case contains(config.InterfaceTypes, n.Type):
		return SymbolTypeInterface, true
	case contains(config.TypeDefTypes, n.Type):
		return SymbolTypeType, true
	case contains(config.ConstantTypes, n.Type):
		return SymbolTypeConstant, true
	case contains(config.VariableTypes, n.Type):
		return SymbolTypeVariable, true
	default:
		return "", false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// extractSpecialSymbol recognizes JS/TS `const foo = () => {}` /
// `const foo = function() {}` forms, which are not tagged by node type
// alone the way function_declaration is.
func (e *symbolExtractor) extractSpecialSymbol(n *Node, source []byte, language string) *Symbol {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
	default:
		return nil
	}
	if n.Type != "lexical_declaration" && n.Type != "variable_declaration" {
		return nil
	}
	for _, child := range n.Children {
		if child.Type != "variable_declarator" {
			continue
		}
		var name string
		var hasFunction bool
		for _, gc := range child.Children {
			if gc.Type == "identifier" {
				name = gc.GetContent(source)
			}
			if gc.Type == "arrow_function" || gc.Type == "function" || gc.Type == "function_expression" {
				hasFunction = true
			}
		}
		if name != "" && hasFunction {
			content := n.GetContent(source)
			return &Symbol{
				Name:      name,
				Type:      SymbolTypeFunction,
				StartLine: int(n.StartPoint.Row) + 1,
				EndLine:   int(n.EndPoint.Row) + 1,
				Signature: firstLineUpToBrace(content),
			}
		}
	}
	return nil
}

// extractName finds the identifier that names a symbol node, per language.
func (e *symbolExtractor) extractName(n *Node, source []byte, language string) string {
	switch language {
	case "go":
		return e.extractGoName(n, source)
	default:
		// TS/JS/Python/Rust/Java all name their declarations with a direct
		// identifier/type_identifier child in the common case.
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				for _, gc := range child.Children {
					if gc.Type == "identifier" {
						return gc.GetContent(source)
					}
				}
			}
			if child.Type == "identifier" || child.Type == "type_identifier" || child.Type == "field_identifier" {
				return child.GetContent(source)
			}
		}
	}
	return ""
}

func (e *symbolExtractor) extractGoName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		if c := n.FindChildByType("identifier"); c != nil {
			return c.GetContent(source)
		}
	case "method_declaration":
		if c := n.FindChildByType("field_identifier"); c != nil {
			return c.GetContent(source)
		}
	case "type_declaration":
		for _, spec := range n.FindChildrenByType("type_spec") {
			if c := spec.FindChildByType("type_identifier"); c != nil {
				return c.GetContent(source)
			}
		}
	case "const_declaration":
		for _, spec := range n.FindChildrenByType("const_spec") {
			if c := spec.FindChildByType("identifier"); c != nil {
				return c.GetContent(source)
			}
		}
	case "var_declaration":
		for _, spec := range n.FindChildrenByType("var_spec") {
			if c := spec.FindChildByType("identifier"); c != nil {
				return c.GetContent(source)
			}
		}
	}
	return ""
}

// extractDocComment scans the line(s) immediately preceding n for
// line comments in the appropriate syntax for language.
func (e *symbolExtractor) extractDocComment(n *Node, source []byte, language string) string {
	if n.StartPoint.Row == 0 {
		return ""
	}
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	var commentLines []string
	pos := lineStart - 1
	for pos > 0 {
		prevLineEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevLineStart := pos
		if pos > 0 {
			prevLineStart++
		}
		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

		isComment := false
		switch language {
		case "go", "typescript", "tsx", "javascript", "jsx", "rust", "java":
			if strings.HasPrefix(prevLine, "//") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "//")}, commentLines...)
				isComment = true
			}
		case "python":
			if strings.HasPrefix(prevLine, "#") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "#")}, commentLines...)
				isComment = true
			}
		}
		if !isComment {
			break
		}
	}
	if len(commentLines) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(commentLines, "\n"))
}

// extractSignature returns the declaration line for a symbol, truncated at
// its opening brace/colon so an embedding captures interface, not body.
func (e *symbolExtractor) extractSignature(n *Node, source []byte) string {
	content := n.GetContent(source)
	if content == "" {
		return ""
	}
	return firstLineUpToBrace(content)
}

func firstLineUpToBrace(content string) string {
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx != -1 {
		firstLine = content[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if idx := strings.IndexByte(firstLine, '{'); idx != -1 {
		return strings.TrimSpace(firstLine[:idx])
	}
	return firstLine
}

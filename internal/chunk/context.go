package chunk

// extractFileContext pulls the package/import preamble out of a parsed
// file so every fragment in it can carry that context along for better
// embedding quality, the way the teacher's chunker does.
func (e *Extractor) extractFileContext(tree *Tree, language string) string {
	var parts []string
	switch language {
	case "go":
		for _, n := range tree.Root.Children {
			if n.Type == "package_clause" {
				parts = append(parts, n.GetContent(tree.Source))
			}
		}
		for _, n := range tree.Root.FindChildrenByType("import_declaration") {
			parts = append(parts, n.GetContent(tree.Source))
		}
	case "typescript", "tsx", "javascript", "jsx":
		for _, n := range tree.Root.FindChildrenByType("import_statement") {
			parts = append(parts, n.GetContent(tree.Source))
		}
	case "python":
		for _, n := range tree.Root.Children {
			if n.Type == "import_statement" || n.Type == "import_from_statement" {
				parts = append(parts, n.GetContent(tree.Source))
			}
		}
	case "rust":
		for _, n := range tree.Root.FindChildrenByType("use_declaration") {
			parts = append(parts, n.GetContent(tree.Source))
		}
	case "java":
		for _, n := range tree.Root.FindChildrenByType("import_declaration") {
			parts = append(parts, n.GetContent(tree.Source))
		}
	}
	return joinNonEmpty(parts, "\n\n")
}

func joinNonEmpty(parts []string, sep string) string {
	var out string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out == "" {
			out = p
		} else {
			out += sep + p
		}
	}
	return out
}

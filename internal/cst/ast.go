package cst

// ASTView returns the AST projection of a CST tree: the same nodes,
// minus trivia (anonymous tokens such as punctuation and keywords, and
// comments). Both views are derived from one parse, so they can never
// disagree about where anything is.
func (t *Tree) ASTView() *Node {
	return filterNamed(t.Root)
}

func filterNamed(n *Node) *Node {
	if n == nil {
		return nil
	}

	filtered := &Node{
		Type:       n.Type,
		StartByte:  n.StartByte,
		EndByte:    n.EndByte,
		StartPoint: n.StartPoint,
		EndPoint:   n.EndPoint,
		HasError:   n.HasError,
		IsNamed:    n.IsNamed,
	}

	for _, c := range n.Children {
		if !c.IsNamed || c.Type == "comment" {
			continue
		}
		filtered.Children = append(filtered.Children, filterNamed(c))
	}

	return filtered
}

// Comments returns every comment node in the CST, in source order. The
// AST view discards these; callers that need source-level comment
// positions (e.g. diagnostics) work from the CST directly instead.
func (t *Tree) Comments() []*Node {
	return t.Root.FindAllByType("comment")
}

// Docstring returns the first statement of body when it is a bare
// string expression, or nil. Used for module/class/function/method
// docstring extraction.
func Docstring(body *Node, source []byte) *Node {
	if body == nil {
		return nil
	}

	container := body
	for _, block := range body.Children {
		if block.Type != "block" {
			continue
		}
		container = block
		break
	}
	var first *Node
	for _, c := range container.Children {
		if c.IsNamed && c.Type != "comment" {
			first = c
			break
		}
	}
	if first == nil || first.Type != "expression_statement" {
		return nil
	}

	str := first.FindChildByType("string")
	if str == nil {
		return nil
	}
	return str
}

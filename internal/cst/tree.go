// Package cst parses Python source with tree-sitter and exposes both a
// trivia-discarded AST view and a trivia-preserving CST view over the
// same underlying parse, plus selector resolution (qualified name or
// line range) used by the edit transaction engine.
package cst

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Point is a zero-indexed row/column position in the source.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a single node of the concrete syntax tree: every token, comment
// and piece of whitespace tree-sitter reports. Walking it reproduces the
// source byte for byte.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	HasError   bool
	IsNamed    bool
	Children   []*Node
}

// Tree holds the CST root alongside the source it was parsed from. The
// AST view is derived on demand by filtering named/trivia nodes rather
// than kept as a second tree, so the two representations never drift
// apart from a single parse.
type Tree struct {
	Root   *Node
	Source []byte
}

// Parser wraps a tree-sitter parser configured for Python, the only
// language this service's source files may be written in.
type Parser struct {
	ts *sitter.Parser
}

// NewParser creates a Parser. Callers must call Close when done.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{ts: p}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.ts != nil {
		p.ts.Close()
	}
}

// Parse parses source and returns the CST. The file is always reparsed
// in full; incremental reparsing is out of scope.
func (p *Parser) Parse(ctx context.Context, source []byte) (*Tree, error) {
	tsTree, err := p.ts.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse source: nil tree")
	}

	root := convertNode(tsTree.RootNode())
	return &Tree{Root: root, Source: source}, nil
}

// HasSyntaxError reports whether any node in the tree is an ERROR node or
// is missing, i.e. whether the candidate failed to compile.
func (t *Tree) HasSyntaxError() bool {
	found := false
	t.Root.Walk(func(n *Node) bool {
		if n.HasError {
			found = true
			return false
		}
		return !found
	})
	return found
}

func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}

	n := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError() && tsNode.IsMissing(),
		IsNamed:  tsNode.IsNamed(),
		Children: make([]*Node, 0, int(tsNode.ChildCount())),
	}
	if tsNode.Type() == "ERROR" {
		n.HasError = true
	}

	for i := 0; i < int(tsNode.ChildCount()); i++ {
		if child := tsNode.Child(i); child != nil {
			n.Children = append(n.Children, convertNode(child))
		}
	}

	return n
}

// Content returns the source slice covered by n.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// FindChildrenByType returns all direct children with the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == nodeType {
			out = append(out, c)
		}
	}
	return out
}

// FindAllByType recursively collects every node with the given type,
// depth-first, pre-order.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var out []*Node
	if n.Type == nodeType {
		out = append(out, n)
	}
	for _, c := range n.Children {
		out = append(out, c.FindAllByType(nodeType)...)
	}
	return out
}

// Walk traverses the tree depth-first, pre-order, calling fn for every
// node. Returning false from fn skips that node's children; the walk
// then continues with the node's next sibling.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// StartLine returns the 1-indexed line the node starts on.
func (n *Node) StartLine() int {
	return int(n.StartPoint.Row) + 1
}

// EndLine returns the 1-indexed line the node ends on.
func (n *Node) EndLine() int {
	return int(n.EndPoint.Row) + 1
}

// IsNamedField reports whether the node is a "named" grammar node, i.e.
// not punctuation or a keyword token. The AST view keeps only named
// nodes; the CST view (this Tree) keeps everything.
func (n *Node) IsNamedField() bool {
	return n.IsNamed
}

// Sexp renders n as a parenthesized s-expression of node types, the
// textual form persisted for AST snapshot rows.
func (n *Node) Sexp() string {
	var b strings.Builder
	n.writeSexp(&b)
	return b.String()
}

func (n *Node) writeSexp(b *strings.Builder) {
	if n == nil {
		return
	}
	b.WriteByte('(')
	b.WriteString(n.Type)
	for _, c := range n.Children {
		b.WriteByte(' ')
		c.writeSexp(b)
	}
	b.WriteByte(')')
}

package cst

import (
	"fmt"
	"strings"
)

// SelectorKind distinguishes the two ways an edit operation may target a
// node.
type SelectorKind int

const (
	// SelectorQualifiedName targets a class, function, or method by
	// dotted name, e.g. "MyClass.my_method".
	SelectorQualifiedName SelectorKind = iota
	// SelectorLineRange targets an inclusive 1-indexed line range.
	SelectorLineRange
)

// Selector identifies a node within a parsed file.
type Selector struct {
	Kind          SelectorKind
	QualifiedName string
	StartLine     int
	EndLine       int
}

// Entity is a resolved class/function/method definition node, carrying
// the dotted name it was found under.
type Entity struct {
	QualifiedName string
	Kind          string   // "class", "function", or "method"
	Node          *Node    // the class_definition / function_definition node
	Body          *Node    // the "block" node
	Decorators    []string // decorator source text, e.g. "@property", outermost first
}

// Entities walks tree's AST view and returns every class, module-level
// function, and method definition with its dotted qualified name.
func Entities(tree *Tree) []Entity {
	return entitiesWithNames(tree)
}

// Resolve finds the node(s) matching sel against tree. It returns
// ErrSelectorNotFound if nothing matches and ErrSelectorAmbiguous if
// more than one node matches a qualified-name selector.
func Resolve(tree *Tree, sel Selector) (*Entity, error) {
	switch sel.Kind {
	case SelectorQualifiedName:
		return resolveQualifiedName(tree, sel.QualifiedName)
	case SelectorLineRange:
		return resolveLineRange(tree, sel.StartLine, sel.EndLine)
	default:
		return nil, fmt.Errorf("%w: unknown selector kind", ErrSelectorNotFound)
	}
}

func resolveQualifiedName(tree *Tree, qualifiedName string) (*Entity, error) {
	entities := entitiesWithNames(tree)

	var matches []Entity
	for _, e := range entities {
		if e.QualifiedName == qualifiedName {
			matches = append(matches, e)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSelectorNotFound, qualifiedName)
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: %q matches %d nodes", ErrSelectorAmbiguous, qualifiedName, len(matches))
	}
	return &matches[0], nil
}

func resolveLineRange(tree *Tree, startLine, endLine int) (*Entity, error) {
	entities := entitiesWithNames(tree)

	var matches []Entity
	for _, e := range entities {
		if e.Node.StartLine() == startLine && e.Node.EndLine() == endLine {
			matches = append(matches, e)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: lines %d-%d", ErrSelectorNotFound, startLine, endLine)
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: lines %d-%d match %d nodes", ErrSelectorAmbiguous, startLine, endLine, len(matches))
	}
	return &matches[0], nil
}

// entitiesWithNames implements Entities: it walks the AST view, whose
// nodes keep their byte ranges, and reads each identifier's text from
// the tree's source.
func entitiesWithNames(tree *Tree) []Entity {
	astRoot := tree.ASTView()
	var out []Entity
	walkEntitiesNamed(astRoot, nil, tree.Source, &out)
	return out
}

func walkEntitiesNamed(n *Node, classStack []string, source []byte, out *[]Entity) {
	if n == nil {
		return
	}

	for _, child := range n.Children {
		def, decorators := unwrapDecorated(child, source)
		switch def.Type {
		case "class_definition":
			name := identifierText(def, source)
			if name == "" {
				continue
			}
			qualified := append(append([]string{}, classStack...), name)
			body := def.FindChildByType("block")
			*out = append(*out, Entity{
				QualifiedName: strings.Join(qualified, "."),
				Kind:          "class",
				Node:          def,
				Body:          body,
				Decorators:    decorators,
			})
			walkEntitiesNamed(body, qualified, source, out)
		case "function_definition":
			name := identifierText(def, source)
			if name == "" {
				continue
			}
			kind := "function"
			if len(classStack) > 0 {
				kind = "method"
			}
			qualified := append(append([]string{}, classStack...), name)
			*out = append(*out, Entity{
				QualifiedName: strings.Join(qualified, "."),
				Kind:          kind,
				Node:          def,
				Body:          def.FindChildByType("block"),
				Decorators:    decorators,
			})
		default:
			walkEntitiesNamed(child, classStack, source, out)
		}
	}
}

// unwrapDecorated returns the class/function definition node wrapped by a
// decorated_definition, along with the source text of each decorator
// (outermost first), or child itself with no decorators if it isn't
// decorated.
func unwrapDecorated(child *Node, source []byte) (*Node, []string) {
	if child.Type != "decorated_definition" {
		return child, nil
	}

	var decorators []string
	var def *Node
	for _, c := range child.Children {
		switch c.Type {
		case "decorator":
			decorators = append(decorators, c.Content(source))
		case "class_definition", "function_definition":
			def = c
		}
	}
	if def == nil {
		return child, decorators
	}
	return def, decorators
}

func identifierText(n *Node, source []byte) string {
	id := n.FindChildByType("identifier")
	if id == nil {
		return ""
	}
	return id.Content(source)
}

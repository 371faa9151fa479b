package edit

import (
	"github.com/crucible-dev/crucible/internal/cst"
)

// OperationKind distinguishes the three operation shapes an edit
// request may contain.
type OperationKind int

const (
	// OpReplace substitutes the node matched by Selector with Fragment.
	OpReplace OperationKind = iota
	// OpInsert inserts Fragment immediately before or after the node
	// matched by Selector, per Position.
	OpInsert
	// OpCreate writes Fragment as the entire content of a file that
	// does not yet exist. Only valid as the sole operation in a request.
	OpCreate
)

// InsertPosition distinguishes an insert's anchor boundary.
type InsertPosition int

const (
	PositionBefore InsertPosition = iota
	PositionAfter
)

// Operation is one CST-level edit, as described by a client.
type Operation struct {
	Kind     OperationKind
	Selector cst.Selector   // for OpReplace and OpInsert (the anchor)
	Position InsertPosition // for OpInsert
	Fragment string
}

// anchorLine returns the 1-indexed line used to order operations:
// a replace's selector start line, or an insert's anchor start line.
func (op Operation) anchorLine(tree *cst.Tree) (int, error) {
	entity, err := cst.Resolve(tree, op.Selector)
	if err != nil {
		return 0, err
	}
	return entity.Node.StartLine(), nil
}

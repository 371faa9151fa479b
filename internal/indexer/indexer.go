// Package indexer extracts the entity set (classes, methods, functions,
// imports, usages) from a parsed file and writes it as a fresh
// replacement into the database. It never opens or commits its own
// transaction: the edit engine, the change watcher, and the rebuild
// command each invoke it inside a transaction they already hold.
package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/db"
)

// Index extracts every class, method, function, import, and usage from
// tree and writes it for fileID, inside tx. Callers are responsible for
// clearing any prior derived rows for fileID first (db.ClearDerivedForFile).
func Index(ctx context.Context, tx *sql.Tx, fileID int64, tree *cst.Tree) error {
	classIDs := make(map[string]int64) // qualified class name -> row id

	for _, entity := range cst.Entities(tree) {
		switch entity.Kind {
		case "class":
			doc := docstringText(entity.Body, tree.Source)
			id, err := db.InsertClass(ctx, tx, db.Class{
				FileID:    fileID,
				Name:      leafName(entity.QualifiedName),
				Line:      entity.Node.StartLine(),
				Docstring: doc,
				Bases:     classBases(entity.Node, tree.Source),
			})
			if err != nil {
				return fmt.Errorf("index class %s: %w", entity.QualifiedName, err)
			}
			classIDs[entity.QualifiedName] = id

		case "method":
			owner := parentQualifiedName(entity.QualifiedName)
			classID, ok := classIDs[owner]
			if !ok {
				// The owning class failed to index (e.g. a duplicate name
				// collision); skip rather than write an orphaned method.
				continue
			}
			doc := docstringText(entity.Body, tree.Source)
			if _, err := db.InsertMethod(ctx, tx, db.Method{
				ClassID:    classID,
				Name:       leafName(entity.QualifiedName),
				Line:       entity.Node.StartLine(),
				Args:       functionArgs(entity.Node, tree.Source),
				Docstring:  doc,
				IsAbstract: hasDecorator(entity.Decorators, "abstractmethod"),
				IsStub:     isStubBody(entity.Body, tree.Source),
			}); err != nil {
				return fmt.Errorf("index method %s: %w", entity.QualifiedName, err)
			}

		case "function":
			doc := docstringText(entity.Body, tree.Source)
			if _, err := db.InsertFunction(ctx, tx, db.Function{
				FileID:    fileID,
				Name:      leafName(entity.QualifiedName),
				Line:      entity.Node.StartLine(),
				Args:      functionArgs(entity.Node, tree.Source),
				Docstring: doc,
				IsStub:    isStubBody(entity.Body, tree.Source),
			}); err != nil {
				return fmt.Errorf("index function %s: %w", entity.QualifiedName, err)
			}
		}
	}

	if err := indexImports(ctx, tx, fileID, tree); err != nil {
		return err
	}
	if err := indexUsages(ctx, tx, fileID, tree); err != nil {
		return err
	}
	return nil
}

func leafName(qualified string) string {
	parts := strings.Split(qualified, ".")
	return parts[len(parts)-1]
}

func parentQualifiedName(qualified string) string {
	parts := strings.Split(qualified, ".")
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], ".")
}

func docstringText(body *cst.Node, source []byte) string {
	doc := cst.Docstring(body, source)
	if doc == nil {
		return ""
	}
	return doc.Content(source)
}

// classBases returns a comma-separated list of a class's base class
// expressions, read textually from its argument_list.
func classBases(classNode *cst.Node, source []byte) string {
	args := classNode.FindChildByType("argument_list")
	if args == nil {
		return ""
	}
	var bases []string
	for _, c := range args.Children {
		if !c.IsNamedField() {
			continue
		}
		bases = append(bases, c.Content(source))
	}
	return strings.Join(bases, ", ")
}

// functionArgs returns the parameter list source text, parentheses
// included, e.g. "(self, name, *, timeout=30)".
func functionArgs(defNode *cst.Node, source []byte) string {
	params := defNode.FindChildByType("parameters")
	if params == nil {
		return "()"
	}
	return params.Content(source)
}

// isStubBody reports whether body contains only a docstring and/or a
// bare "pass"/"..."/"raise NotImplementedError" statement.
func isStubBody(body *cst.Node, source []byte) bool {
	if body == nil {
		return true
	}
	meaningful := 0
	for _, stmt := range body.Children {
		if !stmt.IsNamedField() {
			continue
		}
		switch stmt.Type {
		case "pass_statement":
			continue
		case "expression_statement":
			if len(stmt.Children) == 1 && (stmt.Children[0].Type == "string" || stmt.Children[0].Type == "ellipsis") {
				continue
			}
		case "raise_statement":
			if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(stmt.Content(source), "raise")), "NotImplementedError") {
				continue
			}
		}
		meaningful++
	}
	return meaningful == 0
}

func hasDecorator(decorators []string, name string) bool {
	for _, d := range decorators {
		if strings.TrimPrefix(d, "@") == name {
			return true
		}
	}
	return false
}

func indexImports(ctx context.Context, tx *sql.Tx, fileID int64, tree *cst.Tree) error {
	for _, n := range tree.Root.FindAllByType("import_statement") {
		for _, name := range n.FindChildrenByType("dotted_name") {
			if err := db.InsertImport(ctx, tx, db.Import{
				FileID: fileID,
				Name:   name.Content(tree.Source),
				Module: name.Content(tree.Source),
				Kind:   db.ImportKindBare,
				Line:   n.StartLine(),
			}); err != nil {
				return fmt.Errorf("index import: %w", err)
			}
		}
		for _, alias := range n.FindChildrenByType("aliased_import") {
			dotted := alias.FindChildByType("dotted_name")
			if dotted == nil {
				continue
			}
			if err := db.InsertImport(ctx, tx, db.Import{
				FileID: fileID,
				Name:   dotted.Content(tree.Source),
				Module: dotted.Content(tree.Source),
				Kind:   db.ImportKindBare,
				Line:   n.StartLine(),
			}); err != nil {
				return fmt.Errorf("index aliased import: %w", err)
			}
		}
	}

	for _, n := range tree.Root.FindAllByType("import_from_statement") {
		module := n.FindChildByType("dotted_name")
		moduleName := ""
		if module != nil {
			moduleName = module.Content(tree.Source)
		} else if rel := n.FindChildByType("relative_import"); rel != nil {
			moduleName = rel.Content(tree.Source)
		}

		names := n.FindChildrenByType("dotted_name")
		// The first dotted_name, if module is also nil, is the module
		// itself rather than an imported name; skip it in that case.
		start := 0
		if module == nil && len(names) > 0 {
			start = 1
		} else if module != nil {
			start = 1 // names[0] duplicates module
		}
		for _, name := range names[start:] {
			if err := db.InsertImport(ctx, tx, db.Import{
				FileID: fileID,
				Name:   name.Content(tree.Source),
				Module: moduleName,
				Kind:   db.ImportKindFrom,
				Line:   n.StartLine(),
			}); err != nil {
				return fmt.Errorf("index from-import: %w", err)
			}
		}
		for _, alias := range n.FindChildrenByType("aliased_import") {
			id := alias.FindChildByType("identifier")
			if id == nil {
				continue
			}
			if err := db.InsertImport(ctx, tx, db.Import{
				FileID: fileID,
				Name:   id.Content(tree.Source),
				Module: moduleName,
				Kind:   db.ImportKindFrom,
				Line:   n.StartLine(),
			}); err != nil {
				return fmt.Errorf("index aliased from-import: %w", err)
			}
		}
	}

	return nil
}

// indexUsages walks the tree for call sites and classifies each by
// callee shape: a bare-name callee is a function call; an attribute
// callee is a method call, carrying containing-class context when the
// receiver is the implicit self reference; an upper-case-first callee
// is additionally recorded as a class instantiation.
func indexUsages(ctx context.Context, tx *sql.Tx, fileID int64, tree *cst.Tree) error {
	var outerErr error
	tree.Root.Walk(func(n *cst.Node) bool {
		if outerErr != nil {
			return false
		}
		if n.Type != "call" {
			return true
		}
		if err := indexCall(ctx, tx, fileID, n, tree.Source); err != nil {
			outerErr = err
			return false
		}
		return true
	})
	return outerErr
}

func indexCall(ctx context.Context, tx *sql.Tx, fileID int64, callNode *cst.Node, source []byte) error {
	if len(callNode.Children) == 0 {
		return nil
	}
	callee := callNode.Children[0]

	switch callee.Type {
	case "identifier":
		name := callee.Content(source)
		if err := db.InsertUsage(ctx, tx, db.Usage{
			FileID:     fileID,
			Line:       callNode.StartLine(),
			Kind:       db.UsageKindCall,
			TargetKind: db.TargetKindFunction,
			TargetName: name,
		}); err != nil {
			return err
		}

		if startsUpper(name) {
			return db.InsertUsage(ctx, tx, db.Usage{
				FileID:     fileID,
				Line:       callNode.StartLine(),
				Kind:       db.UsageKindInstantiate,
				TargetKind: db.TargetKindClass,
				TargetName: name,
			})
		}
		return nil

	case "attribute":
		obj := callee.FindChildByType("identifier")
		attr := lastIdentifier(callee, source)
		if attr == "" {
			return nil
		}
		var objText string
		if obj != nil {
			objText = obj.Content(source)
		}

		if err := db.InsertUsage(ctx, tx, db.Usage{
			FileID:      fileID,
			Line:        callNode.StartLine(),
			Kind:        db.UsageKindCall,
			TargetKind:  db.TargetKindMethod,
			TargetClass: selfContext(objText),
			TargetName:  attr,
			Context:     objText,
		}); err != nil {
			return err
		}

		if startsUpper(attr) {
			return db.InsertUsage(ctx, tx, db.Usage{
				FileID:     fileID,
				Line:       callNode.StartLine(),
				Kind:       db.UsageKindInstantiate,
				TargetKind: db.TargetKindClass,
				TargetName: attr,
				Context:    objText,
			})
		}
		return nil
	}
	return nil
}

// selfContext returns "self" as the containing-class marker when obj
// is the implicit receiver, or "" otherwise. The enclosing class's
// actual name is not resolved; the "self" marker is stored as is.
func selfContext(obj string) string {
	if obj == "self" {
		return "self"
	}
	return ""
}

func lastIdentifier(attributeNode *cst.Node, source []byte) string {
	var last *cst.Node
	for _, c := range attributeNode.Children {
		if c.Type == "identifier" {
			last = c
		}
	}
	if last == nil {
		return ""
	}
	return last.Content(source)
}

func startsUpper(name string) bool {
	if name == "" {
		return false
	}
	r := name[0]
	return r >= 'A' && r <= 'Z'
}

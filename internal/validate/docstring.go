package validate

import (
	"fmt"
	"strings"

	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/cxerr"
)

// checkDocstrings enforces that the module, every class, every method,
// and every top-level function has a non-empty documentation block.
// Property accessors are exempt.
func checkDocstrings(tree *cst.Tree) error {
	var offenders []string

	astRoot := tree.ASTView()
	if doc := cst.Docstring(astRoot, tree.Source); doc == nil || isBlankDocstring(doc, tree.Source) {
		offenders = append(offenders, "<module>")
	}

	for _, entity := range cst.Entities(tree) {
		if isPropertyAccessor(entity) {
			continue
		}
		doc := cst.Docstring(entity.Body, tree.Source)
		if doc == nil || isBlankDocstring(doc, tree.Source) {
			offenders = append(offenders, entity.QualifiedName)
		}
	}

	if len(offenders) == 0 {
		return nil
	}

	diags := make([]cxerr.Diagnostic, 0, len(offenders))
	for _, name := range offenders {
		diags = append(diags, cxerr.Diagnostic{Message: fmt.Sprintf("missing docstring: %s", name)})
	}

	return cxerr.New(cxerr.CodeDocstringValidationError, "one or more definitions are missing docstrings", nil).
		WithDiagnostics(diags...)
}

func isBlankDocstring(doc *cst.Node, source []byte) bool {
	content := strings.Trim(doc.Content(source), "\"'rRbBuU \t\n")
	return content == ""
}

// isPropertyAccessor reports whether entity's definition is decorated
// with @property, @<name>.setter, or @<name>.deleter; the docstring
// policy exempts these.
func isPropertyAccessor(entity cst.Entity) bool {
	for _, d := range entity.Decorators {
		d = strings.TrimPrefix(d, "@")
		if d == "property" || strings.HasSuffix(d, ".setter") || strings.HasSuffix(d, ".deleter") {
			return true
		}
	}
	return false
}

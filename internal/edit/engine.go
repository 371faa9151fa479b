// Package edit implements the edit transaction engine: it applies
// CST-level operations to a candidate file, validates the whole
// candidate, and atomically publishes it to disk, the database, the
// backup store, and an optional version-control commit — or fails with
// no observable side effect.
package edit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crucible-dev/crucible/internal/content"
	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/cxerr"
	"github.com/crucible-dev/crucible/internal/db"
	"github.com/crucible-dev/crucible/internal/validate"
)

// Engine wires together the database, the content store, the
// validation pipeline, and an optional VCS, to carry out edits against
// one project root.
type Engine struct {
	ProjectRoot string
	ProjectID   string

	DB       *db.DB
	Content  *content.Store
	Pipeline *validate.Pipeline
	VCS      VCS // nil disables version-control integration entirely
}

// Request describes one edit transaction.
type Request struct {
	// File is project-root-relative, e.g. "pkg/widget.py".
	File          string
	Operations    []Operation
	Apply         bool
	CommitMessage string
}

// Result reports what a successful transaction produced.
type Result struct {
	FileID     int64
	BackupID   uuid.UUID // uuid.Nil if the target file did not previously exist
	Candidate  []byte
	Committed  bool // true once the publish pipeline fully ran
	VCSWarning error
}

// Run executes req against e: preflight checks, apply operations in
// memory, validate, and (if req.Apply) publish.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	absPath, err := e.resolvePath(req.File)
	if err != nil {
		return nil, err
	}

	if req.Apply && e.VCS != nil && e.VCS.IsRepository(e.ProjectRoot) && strings.TrimSpace(req.CommitMessage) == "" {
		return nil, cxerr.New(cxerr.CodeCommitMessageRequired, "a non-empty commit message is required for applied edits under version control", nil)
	}

	existing, readErr := os.ReadFile(absPath)
	fileExists := readErr == nil
	if readErr != nil && !os.IsNotExist(readErr) {
		return nil, cxerr.New(cxerr.CodeInvalidPath, fmt.Sprintf("read %s", req.File), readErr)
	}

	if err := validateOperationShape(req.Operations, fileExists); err != nil {
		return nil, err
	}

	candidate, err := applyOperations(ctx, existing, req.Operations)
	if err != nil {
		return nil, err
	}

	tempFile, err := writeTempCandidate(absPath, candidate)
	if err != nil {
		return nil, cxerr.New(cxerr.CodeInvalidPath, "write temp candidate file", err)
	}
	defer os.Remove(tempFile)

	if err := e.Pipeline.Validate(ctx, tempFile, candidate); err != nil {
		return nil, err
	}

	result := &Result{Candidate: candidate}
	if !req.Apply {
		return result, nil
	}

	return e.publish(ctx, req, absPath, candidate, fileExists, result)
}

// resolvePath joins relPath against the project root and rejects any
// path that escapes it.
func (e *Engine) resolvePath(relPath string) (string, error) {
	if relPath == "" {
		return "", cxerr.New(cxerr.CodeInvalidPath, "file path is required", nil)
	}
	abs := filepath.Join(e.ProjectRoot, relPath)
	rootWithSep := filepath.Clean(e.ProjectRoot) + string(filepath.Separator)
	if !strings.HasPrefix(abs+string(filepath.Separator), rootWithSep) {
		return "", cxerr.New(cxerr.CodeInvalidPath, fmt.Sprintf("%s escapes the project root", relPath), nil)
	}
	return abs, nil
}

func validateOperationShape(ops []Operation, fileExists bool) error {
	if len(ops) == 0 {
		return cxerr.New(cxerr.CodeInvalidOperation, "at least one operation is required", nil)
	}
	hasCreate := false
	for _, op := range ops {
		if op.Kind == OpCreate {
			hasCreate = true
		}
	}
	if hasCreate && len(ops) != 1 {
		return cxerr.New(cxerr.CodeInvalidOperation, "create must be the only operation in a request", nil)
	}
	if hasCreate && fileExists {
		return cxerr.New(cxerr.CodeInvalidOperation, "create is only valid when the file does not yet exist", nil)
	}
	if !hasCreate && !fileExists {
		return cxerr.New(cxerr.CodeFileNotFound, "target file does not exist; use a create operation", nil)
	}
	return nil
}

// applyOperations orders ops deterministically (replaces by descending
// start line, then inserts by ascending anchor, then creates) and
// applies each in turn, reparsing the source between steps so a later
// operation observes the effects of earlier ones.
func applyOperations(ctx context.Context, source []byte, ops []Operation) ([]byte, error) {
	if len(ops) == 1 && ops[0].Kind == OpCreate {
		return []byte(ops[0].Fragment), nil
	}

	parser := cst.NewParser()
	defer parser.Close()

	ordered, err := orderOperations(ctx, parser, source, ops)
	if err != nil {
		return nil, err
	}

	current := source
	for _, op := range ordered {
		tree, err := parser.Parse(ctx, current)
		if err != nil {
			return nil, cxerr.New(cxerr.CodeCompileError, "reparse candidate during edit application", err)
		}

		entity, err := cst.Resolve(tree, op.Selector)
		if err != nil {
			return nil, selectorError(err, op.Selector)
		}

		switch op.Kind {
		case OpReplace:
			current = cst.ReplaceRange(current, entity.Node.StartByte, entity.Node.EndByte, op.Fragment)
		case OpInsert:
			if op.Position == PositionBefore {
				current = cst.InsertBefore(current, entity.Node, op.Fragment)
			} else {
				current = cst.InsertAfter(current, entity.Node, op.Fragment)
			}
		default:
			return nil, cxerr.New(cxerr.CodeInvalidOperation, "unknown operation kind", nil)
		}
	}
	return current, nil
}

// orderOperations resolves each operation's anchor line against the
// ORIGINAL source (selectors target stable qualified names or
// original-file line ranges; reordering does not change what they
// mean) and sorts into: replaces descending by line, then inserts
// ascending by line, then creates.
func orderOperations(ctx context.Context, parser *cst.Parser, source []byte, ops []Operation) ([]Operation, error) {
	tree, err := parser.Parse(ctx, source)
	if err != nil {
		return nil, cxerr.New(cxerr.CodeCompileError, "parse source for operation ordering", err)
	}

	type scored struct {
		op   Operation
		line int
	}
	var replaces, inserts []scored
	for _, op := range ops {
		line, err := op.anchorLine(tree)
		if err != nil {
			return nil, selectorError(err, op.Selector)
		}
		switch op.Kind {
		case OpReplace:
			replaces = append(replaces, scored{op, line})
		case OpInsert:
			inserts = append(inserts, scored{op, line})
		}
	}

	sort.SliceStable(replaces, func(i, j int) bool { return replaces[i].line > replaces[j].line })
	sort.SliceStable(inserts, func(i, j int) bool { return inserts[i].line < inserts[j].line })

	out := make([]Operation, 0, len(ops))
	for _, s := range replaces {
		out = append(out, s.op)
	}
	for _, s := range inserts {
		out = append(out, s.op)
	}
	return out, nil
}

func selectorError(err error, sel cst.Selector) error {
	if errors.Is(err, cst.ErrSelectorAmbiguous) {
		return cxerr.New(cxerr.CodeSelectorAmbiguous, fmt.Sprintf("selector %q matches more than one node", selectorLabel(sel)), err)
	}
	return cxerr.New(cxerr.CodeSelectorNotFound, fmt.Sprintf("selector %q matched no node", selectorLabel(sel)), err)
}

func selectorLabel(sel cst.Selector) string {
	if sel.Kind == cst.SelectorQualifiedName {
		return sel.QualifiedName
	}
	return fmt.Sprintf("lines %d-%d", sel.StartLine, sel.EndLine)
}

func writeTempCandidate(targetPath string, candidate []byte) (string, error) {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".crucible-candidate-*.py")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := tmp.Write(candidate); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func lineCount(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := 1
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}

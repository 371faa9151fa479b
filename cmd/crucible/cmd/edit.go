package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/edit"
)

// operationFile is the on-disk JSON shape accepted by `edit`, one step
// removed from edit.Request/edit.Operation so the CLI never needs its
// own parsing logic beyond unmarshalling.
type operationFile struct {
	File          string      `json:"file"`
	Apply         bool        `json:"apply"`
	CommitMessage string      `json:"commit_message"`
	Operations    []operation `json:"operations"`
}

type operation struct {
	Kind          string `json:"kind"` // "replace", "insert", or "create"
	QualifiedName string `json:"qualified_name"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	Position      string `json:"position"` // "before" or "after", for insert
	Fragment      string `json:"fragment"`
}

func (o operation) toEdit() (edit.Operation, error) {
	var sel cst.Selector
	if o.QualifiedName != "" {
		sel = cst.Selector{Kind: cst.SelectorQualifiedName, QualifiedName: o.QualifiedName}
	} else {
		sel = cst.Selector{Kind: cst.SelectorLineRange, StartLine: o.StartLine, EndLine: o.EndLine}
	}

	switch o.Kind {
	case "replace":
		return edit.Operation{Kind: edit.OpReplace, Selector: sel, Fragment: o.Fragment}, nil
	case "insert":
		pos := edit.PositionBefore
		if o.Position == "after" {
			pos = edit.PositionAfter
		}
		return edit.Operation{Kind: edit.OpInsert, Selector: sel, Position: pos, Fragment: o.Fragment}, nil
	case "create":
		return edit.Operation{Kind: edit.OpCreate, Fragment: o.Fragment}, nil
	default:
		return edit.Operation{}, fmt.Errorf("unknown operation kind %q", o.Kind)
	}
}

func newEditCmd() *cobra.Command {
	var opFile string

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Apply one edit transaction described by a JSON operation file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdit(cmd, opFile)
		},
	}
	cmd.Flags().StringVar(&opFile, "file", "", "path to a JSON operation file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runEdit(cmd *cobra.Command, opFilePath string) error {
	raw, err := os.ReadFile(opFilePath)
	if err != nil {
		return fmt.Errorf("read operation file: %w", err)
	}

	var spec operationFile
	if err := json.Unmarshal(raw, &spec); err != nil {
		return fmt.Errorf("parse operation file: %w", err)
	}

	ops := make([]edit.Operation, 0, len(spec.Operations))
	for _, o := range spec.Operations {
		converted, err := o.toEdit()
		if err != nil {
			return err
		}
		ops = append(ops, converted)
	}

	a, err := openApp(projectRoot)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Engine().Run(cmd.Context(), edit.Request{
		File:          spec.File,
		Operations:    ops,
		Apply:         spec.Apply,
		CommitMessage: spec.CommitMessage,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(struct {
		FileID    int64  `json:"file_id"`
		Committed bool   `json:"committed"`
		Candidate string `json:"candidate"`
	}{result.FileID, result.Committed, string(result.Candidate)}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

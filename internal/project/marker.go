// Package project manages the marker file that defines a project's root
// and identity: its presence (not a database row) is what makes a
// directory a project, and its contents are the project's immutable id.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MarkerFile is the name of the file holding a project's identifier.
const MarkerFile = ".crucible-project"

// Info is a project's identity as read from its marker file.
type Info struct {
	ID   uuid.UUID
	Root string
}

// Find walks up from startDir looking for a marker file, returning the
// project Info at the first directory that has one. Returns ErrNotFound
// if no marker is found before reaching the filesystem root.
func Find(startDir string) (*Info, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	current := absDir
	for {
		markerPath := filepath.Join(current, MarkerFile)
		if id, err := readMarker(markerPath); err == nil {
			return &Info{ID: id, Root: current}, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotFound
		}
		current = parent
	}
}

// Init creates a new marker file at root with a freshly generated id. It
// fails if a marker already exists there, since a project's identifier is
// immutable once assigned.
func Init(root string) (*Info, error) {
	markerPath := filepath.Join(root, MarkerFile)
	if _, err := os.Stat(markerPath); err == nil {
		return nil, fmt.Errorf("%w at %s", ErrAlreadyInitialized, root)
	}

	id := uuid.New()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create project root: %w", err)
	}
	if err := os.WriteFile(markerPath, []byte(id.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write marker file: %w", err)
	}

	return &Info{ID: id, Root: root}, nil
}

// Read loads the project identity from root's marker file without
// walking up the tree.
func Read(root string) (*Info, error) {
	id, err := readMarker(filepath.Join(root, MarkerFile))
	if err != nil {
		return nil, err
	}
	return &Info{ID: id, Root: root}, nil
}

func readMarker(path string) (uuid.UUID, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("read marker file: %w", err)
	}

	id, err := uuid.Parse(strings.TrimSpace(string(content)))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse marker file %s: %w", path, err)
	}
	return id, nil
}

package project

import "errors"

// ErrNotFound indicates no marker file was found walking up the tree.
var ErrNotFound = errors.New("project: no marker file found")

// ErrAlreadyInitialized indicates a marker file already exists at the
// target root; project identifiers are immutable once assigned.
var ErrAlreadyInitialized = errors.New("project: marker file already exists")

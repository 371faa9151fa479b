// Package watcher detects file modifications that did not come through
// the edit engine and routes them through the indexer. It is a polling
// scanner only: there is no inotify/FSEvent dependency, per the change
// watcher's contract.
package watcher

import (
	"time"
)

// DefaultExtensions is the fixed allow-list of file extensions a scan
// considers.
var DefaultExtensions = []string{".py"}

// Options configures a Scanner's cycle behavior.
type Options struct {
	// Interval is the time between scan cycles.
	Interval time.Duration

	// IgnorePatterns are gitignore-syntax patterns, beyond the fixed
	// extension allow-list, that exclude paths from a scan.
	IgnorePatterns []string

	// Extensions overrides DefaultExtensions when non-empty.
	Extensions []string
}

// WithDefaults returns o with zero-valued fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Interval == 0 {
		o.Interval = 5 * time.Second
	}
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions
	}
	return o
}

// fileSnapshot is one observed (relative path -> mtime, size) entry
// built during enumeration.
type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// changeKind classifies an observed path against the database's record
// of it.
type changeKind int

const (
	changeNew changeKind = iota
	changeModified
	changeUnchanged
	changeDeleted
)

// modTimeEpsilon bounds how much an mtime may drift before a file
// counts as changed; filesystems commonly truncate sub-second
// precision on write, so an exact-equality check would misfire.
const modTimeEpsilon = 1 * time.Second

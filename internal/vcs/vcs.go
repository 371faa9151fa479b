// Package vcs wraps the narrow slice of version-control behaviour the
// edit transaction engine needs: detecting whether a project root is a
// repository, and staging plus committing one file to it. A missing
// repository is not an error here — callers treat IsRepository==false
// as "skip this step silently".
package vcs

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Git commits through an on-disk git repository using go-git, so no
// external git binary is required.
type Git struct {
	AuthorName  string
	AuthorEmail string
}

// New returns a Git committer that attributes commits to name/email.
func New(authorName, authorEmail string) *Git {
	return &Git{AuthorName: authorName, AuthorEmail: authorEmail}
}

// IsRepository reports whether root is (inside) a git working tree.
func (g *Git) IsRepository(root string) bool {
	_, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	return err == nil
}

// Commit stages absPath and commits it with message. If root is not a
// repository, Commit returns nil without doing anything, matching the
// "silently skips" contract; any other failure is returned so the
// caller can surface it as a non-fatal warning.
func (g *Git) Commit(ctx context.Context, root, absPath, message string) error {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil
	}
	if err != nil {
		return err
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	relPath, err := relativeTo(w.Filesystem.Root(), absPath)
	if err != nil {
		return err
	}

	if _, err := w.Add(relPath); err != nil {
		return err
	}

	_, err = w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.authorName(),
			Email: g.authorEmail(),
			When:  commitTime(ctx),
		},
	})
	return err
}

func (g *Git) authorName() string {
	if g.AuthorName != "" {
		return g.AuthorName
	}
	return "crucible"
}

func (g *Git) authorEmail() string {
	if g.AuthorEmail != "" {
		return g.AuthorEmail
	}
	return "crucible@localhost"
}

// relativeTo converts an absolute path into one relative to the
// worktree root, using forward slashes as go-git's index expects.
func relativeTo(worktreeRoot, absPath string) (string, error) {
	rel, err := filepath.Rel(worktreeRoot, absPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// commitTime returns the wall-clock time recorded on each commit; ctx
// is not consulted.
func commitTime(ctx context.Context) time.Time {
	return time.Now()
}

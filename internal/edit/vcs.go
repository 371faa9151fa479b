package edit

import "context"

// VCS is the narrow version-control interface the edit engine needs:
// whether the project root is a repository, and staging+committing one
// path. Implementations silently treat a non-repository root as "not a
// repo" rather than an error, per the publish step's "missing tool or
// non-repo root silently skips this step" contract.
type VCS interface {
	IsRepository(root string) bool
	Commit(ctx context.Context, root, absPath, message string) error
}

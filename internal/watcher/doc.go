// Package watcher provides a polling-only change detector for files in
// watched project roots, routing new and modified files through the
// indexer and soft-deleting vanished ones.
//
// There is no inotify/FSEvent dependency here — every cycle acquires
// the root's lock, recursively enumerates it filtering by ignore
// patterns and a fixed extension allow-list, diffs the observation
// against the database's file rows, indexes new or changed files, and
// soft-deletes known-but-unobserved ones before releasing the lock.
//
// Usage:
//
//	scanner := watcher.NewScanner(d, locks, root, projectID, watcher.Options{})
//	if err := scanner.Run(ctx); err != nil {
//	    return err
//	}
package watcher

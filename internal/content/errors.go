package content

import "errors"

// ErrNoBackup indicates a restore was requested for a path with no
// backups in the index.
var ErrNoBackup = errors.New("content: no backup found for path")

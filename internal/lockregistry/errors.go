package lockregistry

import "errors"

// ErrHeld indicates the directory's lock is held by another live owner.
var ErrHeld = errors.New("lockregistry: lock held by another owner")

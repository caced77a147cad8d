package store

import "errors"

// ErrNotFound is returned when a document does not exist (or, for
// accounts, when it is soft-deleted).
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique index rejects a write.
var ErrDuplicate = errors.New("duplicate")

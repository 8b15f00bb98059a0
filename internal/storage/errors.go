package storage

import "errors"

// ErrNotFound is returned when the requested group, member or entry does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write loses, e.g. the entry is no longer pending.
var ErrConflict = errors.New("state conflict")

// ErrDuplicate is returned when a unique key such as an idempotency key is already used.
var ErrDuplicate = errors.New("duplicate entry")

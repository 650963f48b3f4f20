package storage

import "errors"

// ErrEventNotFound is returned when a lookup by ID matches no event.
var ErrEventNotFound = errors.New("event not found")

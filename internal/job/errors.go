package job

import "errors"

// ErrPrecondition is returned when an operation's state precondition is
// violated (spec.md §7: maps to HTTP 412 at the api boundary).
var ErrPrecondition = errors.New("precondition violated")

// ErrNotFound is returned by lookups against a job's own sub-resources
// (e.g. an unknown artifact name).
var ErrNotFound = errors.New("not found")

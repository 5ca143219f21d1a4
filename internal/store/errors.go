package store

import "errors"

// ErrNotFound reports that a referenced user, spot or check-in does not
// exist. Surfaced to callers as a user-visible "not found", never fatal.
var ErrNotFound = errors.New("not found")

// ErrInvalidState reports an operation attempted against a check-in in the
// wrong kind or ownership state, for example confirming arrival on a record
// that is already present. Callers must re-fetch; the operation is not
// idempotent.
var ErrInvalidState = errors.New("invalid state")

package infrastructure

import "errors"

var (
	// ErrAuthentication covers missing, invalid, or expired credentials. The
	// triggering operation terminates and is never retried automatically.
	ErrAuthentication = errors.New("authentication required")

	// ErrValidation covers malformed or missing input. The operation aborts
	// before producing any side effect.
	ErrValidation = errors.New("invalid input")

	// ErrAuthorization means the caller is not an active member of the target
	// room. No partial writes may have happened.
	ErrAuthorization = errors.New("not a member of this room")

	// ErrNotFound means a referenced room or identity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the record already exists. Membership writes treat it
	// as success so retries stay idempotent.
	ErrConflict = errors.New("already exists")

	// ErrTransientStorage means a durable-store or broadcast-bus call failed.
	// Retry policy belongs to the caller; retrying a non-idempotent write here
	// could duplicate it.
	ErrTransientStorage = errors.New("storage unavailable")
)

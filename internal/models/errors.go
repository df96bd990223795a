package models

import "errors"

// Domain errors. Handlers translate these into corrective private
// messages; anything else is a system fault.
var (
	// ErrInvalidInput: empty task text or a non-numeric task id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnresolvedAssignee: an assign request with nobody to assign to
	// (no reply target and no @handle).
	ErrUnresolvedAssignee = errors.New("unresolved assignee")

	// ErrUnreachable: the private channel to the target does not exist
	// yet (the person never initiated contact with the bot). This is a
	// normal outcome, not a fault.
	ErrUnreachable = errors.New("private channel unreachable")

	// ErrStorageUnavailable: the persistence layer could not complete an
	// operation. Fatal to the triggering request.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound: no row with the requested id.
	ErrNotFound = errors.New("not found")
)

package share

import "errors"

// Error taxonomy shared by every component. Callers classify with errors.Is;
// the HTTP layer maps each class to a status code and a public message.
var (
	// ErrInvalidRequest means a required field or header is missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound means the room (or a file record within it) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means a reader or writer token did not match the room.
	ErrForbidden = errors.New("forbidden")

	// ErrFileUnavailable means every storage tier was tried and none had the file.
	ErrFileUnavailable = errors.New("file unavailable")

	// ErrRangeNotSatisfiable means a Range header falls outside the file.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// ErrUpstreamUnavailable means a remote tier could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrObjectNotFound is returned by Vault and Cache implementations when the
	// object is absent. It is distinct from transport failures so callers can
	// tell "already gone" from "could not ask".
	ErrObjectNotFound = errors.New("object not found")
)

package routing

import "errors"

var (
	// ErrInvalidPattern is returned when a path pattern cannot be compiled
	ErrInvalidPattern = errors.New("invalid path pattern")

	// ErrInvalidTarget is returned when a redirect target is not an absolute URL
	ErrInvalidTarget = errors.New("invalid redirect target")

	// ErrSlugMissing is returned when an action needs a path-derived value that was not captured.
	// The request must be forwarded to the origin instead of redirected.
	ErrSlugMissing = errors.New("required path capture is missing")

	// ErrUnsupportedAction is returned for an action type the executor does not know
	ErrUnsupportedAction = errors.New("unsupported action type")
)

package prompt

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("prompt: aborted")
	// ErrNoOptions is returned when an enum field currently offers nothing to
	// choose from.
	ErrNoOptions = errors.New("prompt: no options available")
)

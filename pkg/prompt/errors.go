package prompt

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("prompt: aborted")
	// ErrTooDeep is returned for schemas nested beyond MaxDepth, which
	// usually means a recursive $ref.
	ErrTooDeep = errors.New("prompt: schema nested too deeply")
)

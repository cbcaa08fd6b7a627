package document

import (
	"errors"
	"fmt"
)

// ErrNotObject reports that a document root is not a mapping.
var ErrNotObject = errors.New("document: value is not an object")

// ParseError reports malformed source text.
type ParseError struct {
	Source string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("document: parse %s: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("document: parse %s %s: %v", e.Format, e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-urlform/pkg/document"
)

var (
	// ErrDeferredReference marks URL references, which are passed to the page
	// unresolved.
	ErrDeferredReference = errors.New("source: url references are resolved by the page")
	// ErrUnknownReference reports a dotted reference missing from the registry.
	ErrUnknownReference = errors.New("source: dotted reference is not registered")
	// ErrUnsupportedFormat reports a file suffix with no known codec.
	ErrUnsupportedFormat = errors.New("source: unsupported document format")
)

// BadImportError reports a reference that did not produce a mapping, or a
// reference field holding a value of an unexpected type.
type BadImportError struct {
	Reference string
	Form      string
	Field     string
	Value     any
	Reason    string
	Err       error
}

func (e *BadImportError) Error() string {
	var parts []string
	if e.Form != "" {
		parts = append(parts, fmt.Sprintf("form %q", e.Form))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field %q", e.Field))
	}
	if e.Reference != "" {
		parts = append(parts, fmt.Sprintf("reference %q", e.Reference))
	} else if e.Value != nil || e.Field != "" {
		parts = append(parts, fmt.Sprintf("value %v (%s)", e.Value, document.TypeName(e.Value)))
	}
	msg := "source: bad import"
	if len(parts) > 0 {
		msg += " " + strings.Join(parts, ", ")
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BadImportError) Unwrap() error {
	return e.Err
}

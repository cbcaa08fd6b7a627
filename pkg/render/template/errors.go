package template

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrUndefined marks access to a missing variable, key or index.
	ErrUndefined = errors.New("undefined value")
	// ErrUnknownFilter is returned when a template names a filter that is not
	// part of the engine's filter table.
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrUnknownTemplate is returned when rendering a name that was never
	// registered.
	ErrUnknownTemplate = errors.New("unknown template")
	// ErrUnsupported marks syntax the dialect does not implement.
	ErrUnsupported = errors.New("unsupported syntax")
)

// TemplateError reports a failed translation or evaluation. Path names the
// expression that failed when known, e.g. "data.pixi.name".
type TemplateError struct {
	Template string
	Path     string
	Line     int
	Err      error
}

func (e *TemplateError) Error() string {
	var b strings.Builder
	b.WriteString("template")
	if e.Template != "" {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(e.Template))
	}
	if e.Line > 0 {
		b.WriteString(" line ")
		b.WriteString(strconv.Itoa(e.Line))
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

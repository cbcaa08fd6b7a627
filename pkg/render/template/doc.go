// Package template defines the renderer contract shared by the artifact
// builder and the template engines, together with the value semantics
// (truthiness, formatting, attribute access, tests) every engine and filter
// agrees on.
package template

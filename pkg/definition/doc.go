// Package definition gives typed access to a urlform definition document and
// expands the schema, UI schema, data and props references of its forms
// into inline objects.
package definition

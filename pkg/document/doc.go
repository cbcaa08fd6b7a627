// Package document models the JSON-compatible values that flow through the
// urlform pipeline. Mappings are represented by *Object, which keeps key
// insertion order so templates iterate fields the way authors wrote them.
//
// The supported value set is nil, bool, int64, float64, string, []any and
// *Object. Decoders for JSON, YAML and TOML produce only those types and
// Normalize converts arbitrary Go values into them.
package document

// Package artifact drives a definition from its source to rendered artifacts.
//
// A Builder moves through Unloaded, Loaded, Expanded, Validated and Ready.
// The first four phases run once per definition; Render may then be called
// any number of times as form data changes. A failed render never moves the
// builder out of Ready and keeps the last good Artifacts available.
//
// Deploy, StyleSheet and Hooks cover what the page shell needs at build
// time: content-addressed copies of inlined documents, the definition's CSS
// and the asset lists for pages that carry a form.
package artifact

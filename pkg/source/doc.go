// Package source resolves the references a definition uses in place of
// inline content: relative files, dotted references served by a host
// registry, and absolute URLs which are left for the page to fetch.
package source

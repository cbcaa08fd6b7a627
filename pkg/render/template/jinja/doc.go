// Package jinja implements the nunjucks/Jinja template dialect used by form
// definitions on top of pongo2.
//
// Templates are parsed into a small syntax tree and translated into pongo2
// source in which every expression is a call into per-render helper
// functions. pongo2 keeps ownership of control flow (blocks, loops, macros,
// imports) while the helpers give the dialect its own semantics: strict
// undefined access, insertion-ordered mapping iteration, Jinja truthiness and
// operators, and filters drawn exclusively from an immutable
// template.FilterTable.
package jinja

package source

import (
	"regexp"
	"strings"
)

// DottedPrefix marks references served by the host registry.
const DottedPrefix = "py:"

// ReferenceKind classifies a reference string.
type ReferenceKind int

const (
	// ReferenceExternal is passed through for the page to fetch.
	ReferenceExternal ReferenceKind = iota
	// ReferenceURL is an absolute http(s) URL, also passed through.
	ReferenceURL
	// ReferenceRelative is a path relative to the definition.
	ReferenceRelative
	// ReferenceDotted is resolved through the Registry.
	ReferenceDotted
)

func (k ReferenceKind) String() string {
	switch k {
	case ReferenceURL:
		return "url"
	case ReferenceRelative:
		return "relative"
	case ReferenceDotted:
		return "dotted"
	default:
		return "external"
	}
}

var (
	urlPattern    = regexp.MustCompile(`^https?://`)
	dottedPattern = regexp.MustCompile(`^[A-Za-z_]\w*(\.[A-Za-z_]\w*)*:[A-Za-z_]\w*(\.[A-Za-z_]\w*)*$`)
)

// Classify reports how a reference string is resolved.
func Classify(ref string) ReferenceKind {
	switch {
	case strings.HasPrefix(ref, DottedPrefix):
		return ReferenceDotted
	case strings.HasPrefix(ref, "."):
		return ReferenceRelative
	case IsURL(ref):
		return ReferenceURL
	default:
		return ReferenceExternal
	}
}

// IsURL reports whether ref is an absolute http(s) URL.
func IsURL(ref string) bool {
	return urlPattern.MatchString(ref)
}

// ValidDottedName reports whether name follows module.sub:member.
func ValidDottedName(name string) bool {
	return dottedPattern.MatchString(strings.TrimPrefix(name, DottedPrefix))
}

// DottedName derives a stable file name from a dotted reference:
// "py:pkg.mod:member" becomes "pkg.mod-member.json".
func DottedName(ref string) string {
	name := strings.TrimPrefix(ref, DottedPrefix)
	return strings.ToLower(strings.ReplaceAll(name, ":", "-")) + ".json"
}

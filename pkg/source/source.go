package source

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Source identifies where a document originated so loaders can read files,
// fs.FS entries, or URLs without leaking implementation details.
type Source interface {
	Kind() Kind
	Location() string
}

// Kind enumerates the loader modalities.
type Kind string

const (
	KindFile Kind = "file"
	KindFS   Kind = "fs"
	KindURL  Kind = "url"
)

type fileSource struct {
	path string
}

func (s fileSource) Location() string { return s.path }
func (s fileSource) Kind() Kind       { return KindFile }

// FromFile returns a Source pointing to a file path.
func FromFile(name string) Source {
	return fileSource{path: filepath.Clean(name)}
}

type fsSource struct {
	name string
}

func (s fsSource) Location() string { return s.name }
func (s fsSource) Kind() Kind       { return KindFS }

// FromFS returns a Source identifying a resource inside an fs.FS.
func FromFS(name string) Source {
	return fsSource{name: path.Clean(strings.TrimPrefix(name, "/"))}
}

type urlSource struct {
	raw string
}

func (s urlSource) Location() string { return s.raw }
func (s urlSource) Kind() Kind       { return KindURL }

// FromURL parses the supplied URL string and returns a Source. It panics if
// the URL is invalid to surface configuration mistakes early.
func FromURL(raw string) Source {
	if raw == "" {
		panic("source: empty URL source")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		panic(fmt.Sprintf("source: invalid URL %q: %v", raw, err))
	}
	return urlSource{raw: raw}
}

// Document wraps raw bytes and their origin.
type Document struct {
	source Source
	raw    []byte
}

// NewDocument constructs a Document while validating the inputs.
func NewDocument(src Source, raw []byte) (Document, error) {
	if src == nil {
		return Document{}, errors.New("source: source is required")
	}
	if len(raw) == 0 {
		return Document{}, fmt.Errorf("source: %s is empty", src.Location())
	}
	return Document{source: src, raw: append([]byte(nil), raw...)}, nil
}

// Source returns the origin metadata for the document.
func (d Document) Source() Source { return d.source }

// Raw returns the payload. Callers must not modify it.
func (d Document) Raw() []byte { return d.raw }

// Location returns the string identifier for the origin.
func (d Document) Location() string {
	if d.source == nil {
		return ""
	}
	return d.source.Location()
}

// Base anchors relative references. Dir is interpreted according to Kind.
type Base struct {
	Kind Kind
	Dir  string
}

// BaseOf returns the directory containing src.
func BaseOf(src Source) Base {
	if src == nil {
		return Base{Kind: KindFile, Dir: "."}
	}
	switch src.Kind() {
	case KindFS:
		return Base{Kind: KindFS, Dir: path.Dir(src.Location())}
	case KindURL:
		u, err := url.Parse(src.Location())
		if err != nil {
			return Base{Kind: KindURL, Dir: src.Location()}
		}
		return Base{Kind: KindURL, Dir: u.ResolveReference(&url.URL{Path: "./"}).String()}
	default:
		return Base{Kind: KindFile, Dir: filepath.Dir(src.Location())}
	}
}

// DirBase anchors relative references to a filesystem directory.
func DirBase(dir string) Base {
	if dir == "" {
		dir = "."
	}
	return Base{Kind: KindFile, Dir: filepath.Clean(dir)}
}

// Join resolves a relative reference path against the base.
func (b Base) Join(ref string) (Source, error) {
	switch b.Kind {
	case KindFS:
		joined := path.Clean(path.Join(b.Dir, ref))
		if joined == ".." || strings.HasPrefix(joined, "../") {
			return nil, fmt.Errorf("source: %s escapes the filesystem root", ref)
		}
		return FromFS(joined), nil
	case KindURL:
		base, err := url.Parse(b.Dir)
		if err != nil {
			return nil, err
		}
		rel, err := url.Parse(ref)
		if err != nil {
			return nil, err
		}
		return FromURL(base.ResolveReference(rel).String()), nil
	default:
		if filepath.IsAbs(ref) {
			return FromFile(ref), nil
		}
		return FromFile(filepath.Join(b.Dir, filepath.FromSlash(ref))), nil
	}
}

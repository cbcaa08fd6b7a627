package filters

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

// zipEpoch is the earliest timestamp the zip format can store. Every entry
// carries it so identical inputs produce identical archives.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type zipEntry struct {
	path  string
	data  []byte
	level int
}

// zipFilter packs a mapping of path to content into a base64 zip data URI.
// Content may be a string, a data URI (stored decoded), a nested mapping (a
// directory) or a `[content, {"level": n}]` pair overriding the compression
// level. `level` and `name` keyword arguments apply to the whole archive.
// Two keys that land on the same entry path are an error.
func zipFilter(defaultLevel int) template.Filter {
	return func(in any, args template.Args) (any, error) {
		level, err := args.Int(0, "level", defaultLevel)
		if err != nil {
			return nil, err
		}
		if level < 0 || level > 9 {
			return nil, fmt.Errorf("zip: level %d out of range 0..9", level)
		}
		name, err := args.String(1, "name", "")
		if err != nil {
			return nil, err
		}

		var entries []zipEntry
		if err := collectZipEntries(&entries, "", in, level); err != nil {
			return nil, err
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
		for i := 1; i < len(entries); i++ {
			if entries[i].path == entries[i-1].path {
				return nil, fmt.Errorf("zip: duplicate entry %q", entries[i].path)
			}
		}

		data, err := writeZip(entries)
		if err != nil {
			return nil, err
		}
		return EncodeDataURI("application/zip", name, data), nil
	}
}

func collectZipEntries(out *[]zipEntry, prefix string, in any, level int) error {
	entries, ok := template.Entries(in)
	if !ok {
		return fmt.Errorf("zip: expected mapping of paths, got %s", document.TypeName(in))
	}
	for _, entry := range entries {
		path := prefix + strings.TrimPrefix(entry.Key, "/")
		if entry.Value == nil {
			continue
		}
		if template.IsMapping(entry.Value) {
			if err := collectZipEntries(out, path+"/", entry.Value, level); err != nil {
				return err
			}
			continue
		}
		content, entryLevel := entry.Value, level
		if pair, ok := entry.Value.([]any); ok {
			var err error
			content, entryLevel, err = zipPair(path, pair, level)
			if err != nil {
				return err
			}
		}
		data, err := zipContent(path, content)
		if err != nil {
			return err
		}
		*out = append(*out, zipEntry{path: path, data: data, level: entryLevel})
	}
	return nil
}

func zipPair(path string, pair []any, level int) (any, int, error) {
	if len(pair) != 2 || !template.IsMapping(pair[1]) {
		return nil, 0, fmt.Errorf("zip: entry %q: unsupported content of type list, expected [content, options]", path)
	}
	raw, ok := template.GetAttr(pair[1], "level")
	if !ok {
		return pair[0], level, nil
	}
	n, ok := template.ToInt(raw)
	if !ok || n < 0 || n > 9 {
		return nil, 0, fmt.Errorf("zip: entry %q: invalid level %v", path, raw)
	}
	return pair[0], n, nil
}

func zipContent(path string, content any) ([]byte, error) {
	switch typed := content.(type) {
	case []byte:
		return typed, nil
	case string:
		if strings.HasPrefix(typed, "data:") {
			if uri, err := ParseDataURI(typed); err == nil {
				return uri.Bytes()
			}
		}
		return []byte(typed), nil
	case bool, int64, int, float64:
		return []byte(template.Format(typed)), nil
	}
	return nil, fmt.Errorf("zip: entry %q: unsupported content of type %s", path, document.TypeName(content))
}

func writeZip(entries []zipEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// The compressor is resolved when each header is created, so the current
	// entry's level is visible to it.
	var level int
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	for _, entry := range entries {
		level = entry.level
		header := &zip.FileHeader{Name: entry.path, Method: zip.Deflate, Modified: zipEpoch}
		if entry.level == 0 {
			header.Method = zip.Store
		}
		header.SetMode(0o644)
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("zip: entry %q: %w", entry.path, err)
		}
		if _, err := w.Write(entry.data); err != nil {
			return nil, fmt.Errorf("zip: entry %q: %w", entry.path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	return buf.Bytes(), nil
}

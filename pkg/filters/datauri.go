package filters

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

// MalformedDataURIError reports a string that is not a usable data URI.
type MalformedDataURIError struct {
	URI    string
	Reason string
}

func (e *MalformedDataURIError) Error() string {
	uri := e.URI
	if len(uri) > 64 {
		uri = uri[:64] + "..."
	}
	return fmt.Sprintf("malformed data URI %q: %s", uri, e.Reason)
}

// DataURI is a parsed `data:<mime>[;key=value]*[;base64],<payload>` string.
type DataURI struct {
	MIME    string
	Params  map[string]string
	Base64  bool
	Payload string
}

// Name returns the `name` parameter, the file name browsers use when the URI
// is downloaded.
func (d *DataURI) Name() string {
	return d.Params["name"]
}

// Bytes decodes the payload.
func (d *DataURI) Bytes() ([]byte, error) {
	if d.Base64 {
		data, err := base64.StdEncoding.DecodeString(d.Payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(d.Payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("data URI payload: %w", err)
		}
		return data, nil
	}
	text, err := url.PathUnescape(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("data URI payload: %w", err)
	}
	return []byte(text), nil
}

// ParseDataURI splits a data URI. The MIME segment is required.
func ParseDataURI(uri string) (*DataURI, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, &MalformedDataURIError{URI: uri, Reason: "missing data: scheme"}
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, &MalformedDataURIError{URI: uri, Reason: "missing payload separator"}
	}

	segments := strings.Split(header, ";")
	out := &DataURI{
		MIME:    strings.TrimSpace(segments[0]),
		Params:  map[string]string{},
		Payload: payload,
	}
	if out.MIME == "" || !strings.Contains(out.MIME, "/") {
		return nil, &MalformedDataURIError{URI: uri, Reason: "missing MIME type"}
	}
	for i, segment := range segments[1:] {
		if segment == "base64" && i == len(segments)-2 {
			out.Base64 = true
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		if !ok || key == "" {
			return nil, &MalformedDataURIError{URI: uri, Reason: fmt.Sprintf("invalid parameter %q", segment)}
		}
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		out.Params[key] = value
	}
	return out, nil
}

// EncodeDataURI builds a base64 data URI. A non-empty name is added as the
// `name` parameter.
func EncodeDataURI(mime, name string, data []byte) string {
	var b strings.Builder
	b.WriteString("data:")
	b.WriteString(mime)
	if name != "" {
		b.WriteString(";name=")
		b.WriteString(percentEncode(name))
	}
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

func parseDataURIInput(name string, in any) (*DataURI, error) {
	uri, ok := in.(string)
	if !ok {
		return nil, fmt.Errorf("%s: expected string, got %s", name, document.TypeName(in))
	}
	return ParseDataURI(uri)
}

func dataURIFile(in any, _ template.Args) (any, error) {
	parsed, err := parseDataURIInput("data_uri_file", in)
	if err != nil {
		return nil, err
	}
	return parsed.Name(), nil
}

func dataURIMime(in any, _ template.Args) (any, error) {
	parsed, err := parseDataURIInput("data_uri_mime", in)
	if err != nil {
		return nil, err
	}
	return parsed.MIME, nil
}

func base64Encode(in any, _ template.Args) (any, error) {
	return base64.StdEncoding.EncodeToString([]byte(template.Format(in))), nil
}

func base64Decode(in any, _ template.Args) (any, error) {
	text, ok := in.(string)
	if !ok {
		return nil, fmt.Errorf("b64decode: expected string, got %s", document.TypeName(in))
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("b64decode: %w", err)
	}
	return string(data), nil
}

// urlencode percent-encodes everything outside the RFC 3986 unreserved set.
// Mappings and pair lists become query strings.
func urlencode(in any, _ template.Args) (any, error) {
	if entries, ok := template.Entries(in); ok {
		parts := make([]string, len(entries))
		for i, entry := range entries {
			parts[i] = percentEncode(entry.Key) + "=" + percentEncode(template.Format(entry.Value))
		}
		return strings.Join(parts, "&"), nil
	}
	return percentEncode(template.Format(in)), nil
}

func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

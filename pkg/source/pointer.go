package source

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-urlform/pkg/document"
)

func resolvePointer(root any, pointer string) (any, error) {
	if pointer == "" {
		return document.Clone(root), nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("invalid json pointer %q", pointer)
	}

	current := root
	for _, part := range strings.Split(pointer, "/")[1:] {
		decoded, err := url.PathUnescape(part)
		if err != nil {
			return nil, err
		}
		decoded = unescapePointerToken(decoded)

		switch typed := current.(type) {
		case *document.Object:
			value, ok := typed.Get(decoded)
			if !ok {
				return nil, fmt.Errorf("pointer %q not found", pointer)
			}
			current = value
		case []any:
			index, err := strconv.Atoi(decoded)
			if err != nil || index < 0 || index >= len(typed) {
				return nil, fmt.Errorf("pointer %q index out of range", pointer)
			}
			current = typed[index]
		default:
			return nil, fmt.Errorf("pointer %q traverses a %s", pointer, document.TypeName(current))
		}
	}
	return document.Clone(current), nil
}

func unescapePointerToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-urlform/pkg/definition"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
)

// DeployedFields lists the form fields Deploy writes out.
var DeployedFields = []string{definition.FieldSchema, definition.FieldUISchema, definition.FieldFormData}

// Manifest maps form name to field to the deployed file name.
type Manifest map[string]map[string]string

// Deploy writes every inlined schema, ui_schema and form_data of the
// expanded definition to dir as indented JSON named
// `<form>-<field>-<sha256[:8]>.json`. Files that already exist are left
// alone, so identical content is written once. Fields that are still
// references (URLs) are skipped.
func (b *Builder) Deploy(dir string) (Manifest, error) {
	b.mu.RLock()
	def, state := b.def, b.state
	b.mu.RUnlock()
	if state < Expanded {
		return nil, &PhaseError{Phase: "deploy", Want: Expanded, Got: state}
	}

	manifest := Manifest{}
	for _, form := range def.Forms() {
		for _, field := range DeployedFields {
			obj, ok := form.Field(field).(*document.Object)
			if !ok {
				continue
			}
			data, err := document.EncodeJSON(obj, document.JSONOptions{Indent: 2})
			if err != nil {
				return nil, fmt.Errorf("artifact: encode %s.%s: %w", form.Name, field, err)
			}
			name, err := WriteHashed(dir, form.Name+"-"+strings.ReplaceAll(field, "_", "-")+".json", data)
			if err != nil {
				return nil, err
			}
			if manifest[form.Name] == nil {
				manifest[form.Name] = map[string]string{}
			}
			manifest[form.Name][field] = name
		}
	}
	return manifest, nil
}

// WriteHashed writes data to dir under name with a content hash inserted
// before the extension and returns the file name. An existing file with that
// name is assumed identical and kept. name must be a bare file name.
func WriteHashed(dir, name string, data []byte) (string, error) {
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, "..") {
		return "", fmt.Errorf("artifact: unsafe file name %q", name)
	}
	sum := sha256.Sum256(data)
	ext := filepath.Ext(name)
	hashed := fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), hex.EncodeToString(sum[:])[:8], ext)
	target := filepath.Join(dir, hashed)

	if _, err := os.Stat(target); err == nil {
		return hashed, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("artifact: stat %s: %w", target, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create %s: %w", dir, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", target, err)
	}
	return hashed, nil
}

// StyleSheet renders the definition's style tree rooted at `#id`. Keys
// starting with `--` become declarations and nested mappings become nested
// rule blocks. It returns "" when the definition has no style.
func (b *Builder) StyleSheet(id string) string {
	def := b.Definition()
	if def == nil || def.Style().Len() == 0 {
		return ""
	}
	return styleRules("#"+id, def.Style())
}

func styleRules(selector string, rules *document.Object) string {
	lines := []string{selector + " {"}
	rules.Range(func(key string, value any) bool {
		if strings.HasPrefix(strings.TrimSpace(key), "--") {
			lines = append(lines, fmt.Sprintf("%s: %s;", key, template.Format(value)))
			return true
		}
		if nested, ok := value.(*document.Object); ok {
			lines = append(lines, styleRules(key, nested))
		}
		return true
	})
	lines = append(lines, "}")
	return strings.Join(lines, "\n")
}

// Package filters provides the output filters form templates use to turn
// form data into artifacts: serializers (TOML, YAML, JSON), data URI and zip
// helpers, structural helpers (prune, from_entries, schema_errors) and the
// general purpose Jinja filters.
package filters

import (
	"sort"

	"github.com/goliatone/go-urlform/pkg/render/template"
)

// Option configures the filter table.
type Option func(*config)

type config struct {
	groups   map[string]bool
	zipLevel int
	extra    map[string]template.Filter
}

// WithGroups enables only the named optional filter groups (see Groups).
// Without it every group is enabled.
func WithGroups(names ...string) Option {
	return func(cfg *config) {
		cfg.groups = make(map[string]bool, len(names))
		for _, name := range names {
			cfg.groups[name] = true
		}
	}
}

// WithZipLevel sets the compression level zip archives use when the template
// does not pass one. Levels outside 0..9 are ignored.
func WithZipLevel(level int) Option {
	return func(cfg *config) {
		if level >= 0 && level <= 9 {
			cfg.zipLevel = level
		}
	}
}

// WithFilter adds or replaces a filter.
func WithFilter(name string, fn template.Filter) Option {
	return func(cfg *config) {
		if name == "" || fn == nil {
			return
		}
		if cfg.extra == nil {
			cfg.extra = map[string]template.Filter{}
		}
		cfg.extra[name] = fn
	}
}

// groups lists the optional filters a definition enables by name through
// `nunjucks.filters`.
var groups = map[string][]string{
	"json": {"json", "to_json", "from_json"},
	"toml": {"toml", "to_toml", "from_toml"},
	"yaml": {"yaml", "to_yaml", "from_yaml"},
	"zip":  {"zip", "to_zip_url"},
}

// Groups returns the names of the optional filter groups.
func Groups() []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownGroups returns the entries of names that are not filter groups.
func UnknownGroups(names []string) []string {
	var unknown []string
	for _, name := range names {
		if _, ok := groups[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Table builds the filter table handed to the template engine.
func Table(options ...Option) template.FilterTable {
	cfg := &config{zipLevel: 9}
	for _, opt := range options {
		if opt != nil {
			opt(cfg)
		}
	}

	all := map[string]template.Filter{}
	for name, fn := range coreFilters() {
		all[name] = fn
	}

	optional := map[string]template.Filter{
		"json":       toJSON,
		"to_json":    toJSON,
		"from_json":  fromJSON,
		"toml":       toTOML,
		"to_toml":    toTOML,
		"from_toml":  fromTOML,
		"yaml":       toYAML,
		"to_yaml":    toYAML,
		"from_yaml":  fromYAML,
		"zip":        zipFilter(cfg.zipLevel),
		"to_zip_url": zipFilter(cfg.zipLevel),
	}
	for group, names := range groups {
		if cfg.groups != nil && !cfg.groups[group] {
			continue
		}
		for _, name := range names {
			all[name] = optional[name]
		}
	}

	for name, fn := range cfg.extra {
		all[name] = fn
	}

	// map applies other filters by name, so it looks them up in the finished
	// table.
	var table template.FilterTable
	all["map"] = func(in any, args template.Args) (any, error) {
		return mapFilter(table, in, args)
	}
	table = template.NewFilterTable(all)
	return table
}

func coreFilters() map[string]template.Filter {
	return map[string]template.Filter{
		"urlencode":     urlencode,
		"prune":         prune,
		"from_entries":  fromEntries,
		"schema_errors": schemaErrors,
		"data_uri_file": dataURIFile,
		"data_uri_mime": dataURIMime,
		"base64":        base64Encode,
		"b64decode":     base64Decode,

		"default":    defaultFilter,
		"d":          defaultFilter,
		"length":     length,
		"count":      length,
		"join":       join,
		"upper":      upper,
		"lower":      lower,
		"capitalize": capitalize,
		"title":      title,
		"trim":       trim,
		"replace":    replace,
		"first":      first,
		"last":       last,
		"list":       list,
		"sort":       sortFilter,
		"unique":     unique,
		"reverse":    reverse,
		"groupby":    groupBy,
		"dictsort":   dictSort,
		"items":      items,
		"string":     stringFilter,
		"int":        intFilter,
		"float":      floatFilter,
		"abs":        abs,
		"round":      round,
		"escape":     escape,
		"e":          escape,
		"safe":       safe,
		"indent":     indent,
		"selectattr": selectAttr(true),
		"rejectattr": selectAttr(false),
		"sum":        sum,
		"min":        extreme(-1),
		"max":        extreme(1),
		"batch":      batch,
		"wordcount":  wordCount,
		"truncate":   truncate,
	}
}

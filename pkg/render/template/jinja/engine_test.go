package jinja_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/render/template"
	"github.com/goliatone/go-urlform/pkg/render/template/jinja"
)

func testFilters() template.FilterTable {
	return template.NewFilterTable(map[string]template.Filter{
		"upper": func(in any, _ template.Args) (any, error) {
			return strings.ToUpper(template.Format(in)), nil
		},
		"join": func(in any, args template.Args) (any, error) {
			sep, err := args.String(0, "d", "")
			if err != nil {
				return nil, err
			}
			items, err := template.Iterate(in)
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = template.Format(item)
			}
			return strings.Join(parts, sep), nil
		},
		"default": func(in any, args template.Args) (any, error) {
			if template.IsUndefined(in) {
				fallback, _ := args.Arg(0, "default_value")
				return fallback, nil
			}
			return in, nil
		},
	})
}

func orderedObject(pairs ...any) *document.Object {
	obj := document.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		obj.Set(pairs[i].(string), pairs[i+1])
	}
	return obj
}

func TestEngine_RenderString(t *testing.T) {
	ctx := template.Context{
		"data": map[string]any{
			"pixi":  map[string]any{"name": "demo"},
			"items": []any{"a", "b", "c"},
			"flag":  false,
			"n":     7,
		},
		"ordered": orderedObject("z", int64(1), "a", int64(2), "m", int64(3)),
	}

	cases := []struct {
		name   string
		source string
		want   string
	}{
		{"interpolation", "data:application/toml,{{ data.pixi.name }}", "data:application/toml,demo"},
		{"index access", `{{ data["pixi"]["name"] }}/{{ data.items[1] }}/{{ data.items[-1] }}`, "demo/b/c"},
		{"mapping order", "{% for k, v in ordered %}{{ k }}={{ v }};{% endfor %}", "z=1;a=2;m=3;"},
		{"items method", "{% for k, v in ordered.items() %}{{ k }}{% endfor %}", "zam"},
		{"loop variables", "{% for x in data.items %}{{ loop.index }}/{{ loop.length }}{% if not loop.last %},{% endif %}{% endfor %}", "1/3,2/3,3/3"},
		{"for else", "{% for x in [] %}{{ x }}{% else %}empty{% endfor %}", "empty"},
		{"if elif else", "{% if data.n > 10 %}big{% elif data.n > 5 %}medium{% else %}small{% endif %}", "medium"},
		{"arithmetic", `{{ data.n // 2 }} {{ data.n / 2 }} {{ data.n % 3 }} {{ 2 ** 3 }} {{ -7 // 2 }} {{ "a" ~ data.n }}`, "3 3.5 1 8 -4 a7"},
		{"comparisons", `{{ 1 < 2 }} {{ "b" in data.items }} {{ "x" not in data.items }} {{ 1 == 1.0 }}`, "true true true true"},
		{"set", "{% set greeting = 'hi' %}{{ greeting }} {{ greeting | upper }}", "hi HI"},
		{"block set", "{% set body %}x={{ 1 + 1 }}{% endset %}[{{ body }}]", "[x=2]"},
		{"inline if", `{{ data.missing if data.flag else "no" }}`, "no"},
		{"inline if without else", `[{{ "yes" if data.flag }}]`, "[]"},
		{"is defined", "{% if data.missing is defined %}yes{% else %}no{% endif %}", "no"},
		{"is not defined", "{{ data.missing is not defined }}", "true"},
		{"default", `{{ data.missing | default("fallback") }} {{ data.pixi.name | default("x") }}`, "fallback demo"},
		{"filter arguments", `{{ data.items | join(", ") }} {{ data.items | join(d="+") }}`, "a, b, c a+b+c"},
		{"string methods", `{{ "a,b".split(",") | join("|") }} {{ "  x ".strip() }} {{ "abc".upper() }} {{ "abc".startswith("ab") }}`, "a|b x ABC true"},
		{"mapping get", `{{ ordered.get("a") }} {{ ordered.get("q", 0) }}`, "2 0"},
		{"literals", `{{ [1, 2] }} {{ {"b": 1, "a": none} }} {{ none }} {{ true }}`, `1,2 {"b":1,"a":null}  true`},
		{"boolean operators", `{{ 0 or "x" }} {{ 1 and 2 }} {{ not data.flag }}`, "x 2 true"},
		{"lazy condition", "{% if data.flag and data.missing %}x{% else %}y{% endif %}", "y"},
		{"range", "{% for i in range(3) %}{{ i }}{% endfor %}", "012"},
		{"slices", `{{ data.items[1:] | join }} {{ "hello"[:2] }}`, "bc he"},
		{"whitespace control", "{% for x in data.items -%}\n  {{ x }}\n{%- endfor %}", "abc"},
		{"comments", "a{# note #}b {#- trimmed -#} c", "abc"},
		{"raw", "{% raw %}{{ not parsed }}{% endraw %}", "{{ not parsed }}"},
		{"trailing brace", "{ {%- if true %}b{% endif %}", "{b"},
		{"with", "{% with a = 1, b = 2 %}{{ a + b }}{% endwith %}", "3"},
		{"filter block", "{% filter upper %}hi {{ data.pixi.name }}{% endfilter %}", "HI DEMO"},
		{"local macro", "{% macro pair(k, v='?') %}{{ k }}={{ v }}{% endmacro %}{{ pair('a', 1) }} {{ pair('b') }} {{ pair(v=2, k='c') }}", "a=1 b=? c=2"},
		{"macro calls later macro", "{% macro outer(x) %}<{{ inner(x) }}>{% endmacro %}{% macro inner(x) %}{{ x | upper }}{% endmacro %}{{ outer('a') }}", "<A>"},
	}

	engine := jinja.New(nil, jinja.WithFilters(testFilters()))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.RenderString(tc.source, ctx)
			if err != nil {
				t.Fatalf("render %q: %v", tc.source, err)
			}
			if got != tc.want {
				t.Fatalf("render %q\nwant: %q\n got: %q", tc.source, tc.want, got)
			}
		})
	}
}

func TestEngine_NestedDictLiterals(t *testing.T) {
	engine := jinja.New(nil, jinja.WithFilters(testFilters()))
	cases := []struct{ source, want string }{
		{`{{ {"a": {"c": "C"}} }}`, `{"a":{"c":"C"}}`},
		{`{{ {"a":{"c":"C"}} | upper }}`, `{"A":{"C":"C"}}`},
		{`{{ {"a":{"c":{"d":1}}}["a"]["c"]["d"] }}`, `1`},
		{`{% set x = {"a":{"b":"}}"}} %}{{ x.a.b }}`, `}}`},
		{`{{- {"k":{}} -}}`, `{"k":{}}`},
	}
	for _, tc := range cases {
		got, err := engine.RenderString(tc.source, nil)
		if err != nil {
			t.Fatalf("render %q: %v", tc.source, err)
		}
		if got != tc.want {
			t.Fatalf("render %q\nwant: %q\n got: %q", tc.source, tc.want, got)
		}
	}
}

func TestEngine_UndefinedIsAnError(t *testing.T) {
	engine := jinja.New(map[string]string{
		"url": "data:application/toml,{{ data.pixi.nme }}",
	})
	_, err := engine.Render("url", template.Context{
		"data": map[string]any{"pixi": map[string]any{"name": "demo"}},
	})
	if err == nil {
		t.Fatalf("expected error for undefined key")
	}
	var te *template.TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TemplateError, got %T", err)
	}
	if te.Path != "data.pixi.nme" {
		t.Fatalf("expected path data.pixi.nme, got %q", te.Path)
	}
	if te.Template != "url" {
		t.Fatalf("expected template url, got %q", te.Template)
	}
	if !errors.Is(err, template.ErrUndefined) {
		t.Fatalf("expected ErrUndefined, got %v", err)
	}
}

func TestEngine_UndefinedVariable(t *testing.T) {
	engine := jinja.New(nil)
	_, err := engine.RenderString("{{ nothing }}", nil)
	var te *template.TemplateError
	if !errors.As(err, &te) || te.Path != "nothing" {
		t.Fatalf("expected undefined error for nothing, got %v", err)
	}
}

func TestEngine_UnknownFilter(t *testing.T) {
	engine := jinja.New(map[string]string{"page": "{{ 1 | nope }}"}, jinja.WithFilters(testFilters()))

	_, err := engine.Render("page", nil)
	if !errors.Is(err, template.ErrUnknownFilter) {
		t.Fatalf("expected ErrUnknownFilter, got %v", err)
	}
	if err := engine.Check(); !errors.Is(err, template.ErrUnknownFilter) {
		t.Fatalf("expected Check to report the unknown filter, got %v", err)
	}
}

func TestEngine_UnknownTemplate(t *testing.T) {
	engine := jinja.New(nil)
	_, err := engine.Render("missing", nil)
	if !errors.Is(err, template.ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestEngine_SyntaxError(t *testing.T) {
	engine := jinja.New(map[string]string{"bad": "line one\n{% if x %}never closed"})
	_, err := engine.Render("bad", template.Context{"x": true})
	var te *template.TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TemplateError, got %v", err)
	}
	if te.Template != "bad" {
		t.Fatalf("expected template bad, got %q", te.Template)
	}
}

func TestEngine_UnsupportedTag(t *testing.T) {
	engine := jinja.New(nil)
	_, err := engine.RenderString(`{% extends "base" %}`, nil)
	if !errors.Is(err, template.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestEngine_ImportAndInclude(t *testing.T) {
	engine := jinja.New(map[string]string{
		"macros.j2": `{% macro greet(name, punct="!") %}Hello {{ name }}{{ punct }}{% endmacro %}` +
			`{% macro shout(name) %}{{ greet(name | upper) }}{% endmacro %}`,
		"layered.j2": `{% from "macros.j2" import greet %}{% macro twice(name) %}{{ greet(name) }} {{ greet(name) }}{% endmacro %}`,
		"partial.j2": `[{{ who }}]`,
		"page": `{% import "macros.j2" as m %}{{ m.greet("Ada") }} {{ m.greet(name="Bob", punct="?") }} {{ m.shout("cy") }}`,
		"from":     `{% from "macros.j2" import greet as hi %}{{ hi("Dee") }}`,
		"layered":  `{% from "layered.j2" import twice %}{{ twice("Eve") }}`,
		"includes": `{% include "partial.j2" %}{% include "absent.j2" ignore missing %}`,
	}, jinja.WithFilters(testFilters()))

	got, err := engine.RenderEach([]string{"page", "from", "layered", "includes"}, template.Context{"who": "Fay"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := map[string]string{
		"page":     "Hello Ada! Hello Bob? Hello CY!",
		"from":     "Hello Dee!",
		"layered":  "Hello Eve! Hello Eve!",
		"includes": "[Fay]",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rendered templates mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_ImportCycle(t *testing.T) {
	engine := jinja.New(map[string]string{
		"a": `{% import "b" as b %}a`,
		"b": `{% import "a" as a %}b`,
	})
	_, err := engine.Render("a", nil)
	if err == nil || !strings.Contains(err.Error(), "import cycle") {
		t.Fatalf("expected import cycle error, got %v", err)
	}
}

func TestEngine_RenderEachKeepsSuccessfulResults(t *testing.T) {
	engine := jinja.New(map[string]string{
		"good": "{{ data.name }}",
		"bad":  "{{ data.nope }}",
	})
	got, err := engine.RenderEach([]string{"good", "bad"}, template.Context{
		"data": map[string]any{"name": "ok"},
	})
	if err == nil {
		t.Fatalf("expected error from bad template")
	}
	var te *template.TemplateError
	if !errors.As(err, &te) || te.Template != "bad" {
		t.Fatalf("expected TemplateError for bad, got %v", err)
	}
	if diff := cmp.Diff(map[string]string{"good": "ok"}, got); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_NamesAndHas(t *testing.T) {
	engine := jinja.New(map[string]string{"b": "", "a": ""})
	if diff := cmp.Diff([]string{"a", "b"}, engine.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if !engine.Has("a") || engine.Has("c") {
		t.Fatalf("unexpected Has results")
	}
}

func TestEngine_ConcurrentRenders(t *testing.T) {
	engine := jinja.New(map[string]string{
		"page": "{% for x in items %}{{ x }}{% if not loop.last %}-{% endif %}{% endfor %}",
	})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := []any{i, i + 1}
			got, err := engine.Render("page", template.Context{"items": items})
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("%d-%d", i, i+1); got != want {
				errs <- fmt.Errorf("render %d: want %q, got %q", i, want, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

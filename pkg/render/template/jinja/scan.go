package jinja

import (
	"fmt"
	"regexp"
	"strings"
)

type segmentKind int

const (
	segText segmentKind = iota
	segRaw
	segOutput
	segTag
	segComment
)

type segment struct {
	kind       segmentKind
	text       string
	line       int
	trimBefore bool
	trimAfter  bool
}

var endRawPattern = regexp.MustCompile(`\{%(-?)\s*endraw\s*(-?)%\}`)

// scan splits a template into text, output and tag segments and applies
// whitespace control markers.
func scan(src string) ([]segment, error) {
	var segs []segment
	pos, line := 0, 1

	for pos < len(src) {
		start := nextDelimiter(src, pos)
		if start < 0 {
			segs = append(segs, segment{kind: segText, text: src[pos:], line: line})
			break
		}
		if start > pos {
			segs = append(segs, segment{kind: segText, text: src[pos:start], line: line})
			line += strings.Count(src[pos:start], "\n")
		}

		open := src[start : start+2]
		closer := map[string]string{"{{": "}}", "{%": "%}", "{#": "#}"}[open]
		var end int
		if open == "{#" {
			end = strings.Index(src[start+2:], closer)
			if end >= 0 {
				end += start + 2
			}
		} else {
			end = findClose(src, start+2, closer)
		}
		if end < 0 {
			return nil, &syntaxError{line: line, msg: fmt.Sprintf("unclosed %q", open)}
		}

		inner := src[start+2 : end]
		seg := segment{line: line}
		if strings.HasPrefix(inner, "-") {
			seg.trimBefore = true
			inner = inner[1:]
		}
		if strings.HasSuffix(inner, "-") {
			seg.trimAfter = true
			inner = inner[:len(inner)-1]
		}
		seg.text = strings.TrimSpace(inner)
		line += strings.Count(src[start:end+2], "\n")
		pos = end + 2

		switch open {
		case "{{":
			seg.kind = segOutput
		case "{#":
			seg.kind = segComment
		default:
			seg.kind = segTag
			if seg.text == "raw" {
				loc := endRawPattern.FindStringSubmatchIndex(src[pos:])
				if loc == nil {
					return nil, &syntaxError{line: seg.line, msg: "unclosed raw block"}
				}
				body := src[pos : pos+loc[0]]
				if seg.trimAfter {
					body = strings.TrimLeft(body, whitespace)
				}
				if loc[3] > loc[2] {
					body = strings.TrimRight(body, whitespace)
				}
				segs = append(segs, segment{kind: segComment, line: seg.line, trimBefore: seg.trimBefore})
				segs = append(segs, segment{kind: segRaw, text: body, line: seg.line})
				segs = append(segs, segment{kind: segComment, line: line, trimAfter: loc[5] > loc[4]})
				line += strings.Count(src[pos:pos+loc[1]], "\n")
				pos += loc[1]
				continue
			}
		}
		segs = append(segs, seg)
	}

	return applyTrim(segs), nil
}

const whitespace = " \t\r\n"

func applyTrim(segs []segment) []segment {
	for i, seg := range segs {
		if seg.trimBefore && i > 0 && segs[i-1].kind == segText {
			segs[i-1].text = strings.TrimRight(segs[i-1].text, whitespace)
		}
		if seg.trimAfter && i+1 < len(segs) && segs[i+1].kind == segText {
			segs[i+1].text = strings.TrimLeft(segs[i+1].text, whitespace)
		}
	}
	out := segs[:0]
	for _, seg := range segs {
		if seg.kind == segComment || (seg.kind == segText && seg.text == "") {
			continue
		}
		out = append(out, seg)
	}
	return out
}

func nextDelimiter(src string, from int) int {
	for i := from; i+1 < len(src); i++ {
		if src[i] != '{' {
			continue
		}
		switch src[i+1] {
		case '{', '%', '#':
			return i
		}
	}
	return -1
}

// findClose locates closer outside of string literals and dict literals, so
// `{{ {"a": {"b": 1}} }}` closes at the last pair of braces.
func findClose(src string, from int, closer string) int {
	var quote byte
	depth := 0
	for i := from; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if depth == 0 && strings.HasPrefix(src[i:], closer) {
			return i
		}
		switch c {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return -1
}

type syntaxError struct {
	line int
	msg  string
}

func (e *syntaxError) Error() string {
	return e.msg
}

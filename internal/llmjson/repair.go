//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package llmjson

// Repair rewrites the JSON defects models commonly produce: single or smart
// quotes, unquoted object keys, Python literals, comments, and trailing
// commas. It is a best-effort text pass; the result still has to survive
// encoding/json.
func Repair(s string) string {
	r := repairer{in: []rune(s)}
	r.run()
	return string(r.out)
}

type repairer struct {
	in  []rune
	i   int
	out []rune
}

func (r *repairer) run() {
	for r.i < len(r.in) {
		c := r.in[r.i]
		switch {
		case isOpenQuote(c):
			r.copyString(closeQuoteFor(c))
		case c == '/' && r.peek(1) == '/':
			r.skipLineComment()
		case c == '/' && r.peek(1) == '*':
			r.skipBlockComment()
		case c == ',':
			r.copyComma()
		case isWordStart(c):
			r.copyWord()
		default:
			r.emit(c)
			r.i++
		}
	}
}

func (r *repairer) peek(offset int) rune {
	if r.i+offset >= len(r.in) {
		return 0
	}
	return r.in[r.i+offset]
}

func (r *repairer) emit(runes ...rune) {
	r.out = append(r.out, runes...)
}

// copyString copies a string literal, normalizing its delimiters to double
// quotes and escaping any inner double quotes that become ambiguous.
func (r *repairer) copyString(closing rune) {
	r.emit('"')
	r.i++
	for r.i < len(r.in) {
		c := r.in[r.i]
		switch {
		case c == '\\':
			r.emit(c)
			r.i++
			if r.i < len(r.in) {
				r.emit(r.in[r.i])
				r.i++
			}
		case c == closing:
			r.emit('"')
			r.i++
			return
		case c == '"':
			// Inner double quote in a single-quoted string.
			r.emit('\\', '"')
			r.i++
		default:
			r.emit(c)
			r.i++
		}
	}
}

func (r *repairer) skipLineComment() {
	for r.i < len(r.in) && r.in[r.i] != '\n' {
		r.i++
	}
}

func (r *repairer) skipBlockComment() {
	r.i += 2
	for r.i < len(r.in) {
		if r.in[r.i] == '*' && r.peek(1) == '/' {
			r.i += 2
			return
		}
		r.i++
	}
}

// copyComma drops the comma when the next value-position token closes the
// container, which removes trailing commas.
func (r *repairer) copyComma() {
	j := r.i + 1
	for j < len(r.in) && isWhitespace(r.in[j]) {
		j++
	}
	if j < len(r.in) && (r.in[j] == '}' || r.in[j] == ']') {
		r.i++
		return
	}
	r.emit(',')
	r.i++
}

// copyWord handles bare identifiers: Python and JavaScript literals map to
// their JSON forms, and an identifier followed by a colon becomes a quoted
// object key. Anything else passes through untouched.
func (r *repairer) copyWord() {
	start := r.i
	for r.i < len(r.in) && isWordRune(r.in[r.i]) {
		r.i++
	}
	word := string(r.in[start:r.i])

	j := r.i
	for j < len(r.in) && isWhitespace(r.in[j]) {
		j++
	}
	if j < len(r.in) && r.in[j] == ':' {
		r.emit('"')
		r.emit([]rune(word)...)
		r.emit('"')
		return
	}

	switch word {
	case "True":
		r.emit([]rune("true")...)
	case "False":
		r.emit([]rune("false")...)
	case "None", "NaN", "Infinity", "undefined":
		r.emit([]rune("null")...)
	default:
		r.emit([]rune(word)...)
	}
}

func isOpenQuote(c rune) bool {
	switch c {
	case '"', '\'', '‘', '“':
		return true
	}
	return false
}

// closeQuoteFor pairs each opening delimiter with its closer; smart quotes
// close with their right-hand counterparts.
func closeQuoteFor(open rune) rune {
	switch open {
	case '‘':
		return '’'
	case '“':
		return '”'
	default:
		return open
	}
}

func isWhitespace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordStart(c rune) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordRune(c rune) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}

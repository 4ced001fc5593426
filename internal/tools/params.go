package tools

import "strings"

// Params holds the raw string parameters extracted for a tool.
type Params map[string]string

// ExtractParams pulls the parameters for tool out of text.
//
// Labels match case-insensitively and must be followed by at least one ':' or
// whitespace character. When a label occurs more than once, the first
// occurrence whose value parses wins. A value that starts with a quote runs to
// the next quote of either kind and may span lines; bare values stop at the
// first quote or whitespace (topic: end of line).
//
//	create_file            filename (default docs/ONBOARDING.md), content (quoted only)
//	get_recent_context     hours|hour followed by digits
//	generate_mermaid_graph topic, falling back to the text without its marker
func ExtractParams(tool, text string) Params {
	p := Params{}
	switch tool {
	case ToolCreateFile:
		p["filename"] = defaultFilename
		if v, ok := scanLabel(text, label{word: "filename"}, readPath); ok {
			p["filename"] = v
		}
		if v, ok := scanLabel(text, label{word: "content"}, readQuoted); ok {
			p["content"] = v
		}
	case ToolRecentContext:
		if v, ok := scanLabel(text, label{word: "hour", plural: true}, readDigits); ok {
			p["hours"] = v
		}
	case ToolMermaidGraph:
		if v, ok := scanLabel(text, label{word: "topic"}, readLine); ok {
			p["topic"] = v
		} else {
			p["topic"] = stripMarker(text, tool)
		}
	}
	return p
}

// label is a parameter name; plural allows one trailing 's' ("hour" or "hours").
type label struct {
	word   string
	plural bool
}

// valueReader parses a value starting at pos and reports whether one was found.
type valueReader func(text string, pos int) (string, bool)

// scanLabel tries every occurrence of l followed by a separator run and
// returns the first value read successfully.
func scanLabel(text string, l label, read valueReader) (string, bool) {
	n := len(l.word)
	for i := 0; i+n <= len(text); i++ {
		if !strings.EqualFold(text[i:i+n], l.word) {
			continue
		}
		pos := i + n
		if l.plural && pos < len(text) && (text[pos] == 's' || text[pos] == 'S') {
			pos++
		}
		start := pos
		for pos < len(text) && isSeparator(text[pos]) {
			pos++
		}
		if pos == start {
			continue
		}
		if v, ok := read(text, pos); ok {
			return v, true
		}
	}
	return "", false
}

func isSeparator(c byte) bool { return c == ':' || isSpace(c) }

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// readQuoted requires an opening quote and returns the non-empty text up to the next quote.
func readQuoted(text string, pos int) (string, bool) {
	if pos >= len(text) || !isQuote(text[pos]) {
		return "", false
	}
	rest := text[pos+1:]
	end := strings.IndexAny(rest, `"'`)
	if end <= 0 {
		return "", false
	}
	return rest[:end], true
}

// readPath reads a quoted value or a bare token ending at whitespace or a quote.
func readPath(text string, pos int) (string, bool) {
	if v, ok := readQuoted(text, pos); ok {
		return v, true
	}
	end := pos
	for end < len(text) && !isQuote(text[end]) && !isSpace(text[end]) {
		end++
	}
	if end == pos {
		return "", false
	}
	return text[pos:end], true
}

// readLine reads a quoted value or a bare value ending at a quote or end of line.
func readLine(text string, pos int) (string, bool) {
	if v, ok := readQuoted(text, pos); ok {
		v = strings.TrimSpace(v)
		return v, v != ""
	}
	end := pos
	for end < len(text) && !isQuote(text[end]) && text[end] != '\n' && text[end] != '\r' {
		end++
	}
	v := strings.TrimSpace(text[pos:end])
	return v, v != ""
}

func readDigits(text string, pos int) (string, bool) {
	end := pos
	for end < len(text) && '0' <= text[end] && text[end] <= '9' {
		end++
	}
	if end == pos {
		return "", false
	}
	return text[pos:end], true
}

// Package tools detects @tool markers in free text, extracts their parameters
// and dispatches them to handlers that return a structured ToolResult.
package tools

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Known tool names.
const (
	ToolCreateFile      = "create_file"
	ToolRecentContext   = "get_recent_context"
	ToolMermaidGraph    = "generate_mermaid_graph"
	defaultFilename     = "docs/ONBOARDING.md"
	defaultContextHours = 24
)

// Invocation is a parsed tool call. It is never persisted.
type Invocation struct {
	Tool       string
	Params     Params
	SourceText string
}

// Parse runs Detect and ExtractParams over text.
func Parse(text string) (Invocation, bool) {
	name, ok := Detect(text)
	if !ok {
		return Invocation{}, false
	}
	return Invocation{Tool: name, Params: ExtractParams(name, text), SourceText: text}, true
}

// Detect returns the tool named by the first marker in text.
//
// A marker is '@', an optional quote (' or "), an identifier of Unicode letters,
// numbers and underscores, and an optional closing quote. The closing quote is not
// required to match the opening one. Only the first '@' followed by an
// identifier counts; later markers are ignored.
func Detect(text string) (string, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		j := i + 1
		if j < len(text) && isQuote(text[j]) {
			j++
		}
		k := j
		for k < len(text) {
			r, size := utf8.DecodeRuneInString(text[k:])
			if !isIdentRune(r) {
				break
			}
			k += size
		}
		if k > j {
			return text[j:k], true
		}
	}
	return "", false
}

// stripMarker removes every marker for tool, quoted or bare, and trims the rest.
func stripMarker(text, tool string) string {
	for _, marker := range []string{`@"` + tool + `"`, `@'` + tool + `'`, "@" + tool} {
		text = strings.ReplaceAll(text, marker, "")
	}
	return strings.TrimSpace(text)
}

func isQuote(c byte) bool { return c == '"' || c == '\'' }

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

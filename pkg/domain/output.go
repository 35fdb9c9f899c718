package domain

import (
	"encoding/json"
	"strings"
)

// OutputKind tags an Output as structured or plain text.
type OutputKind int

const (
	OutputRaw OutputKind = iota
	OutputParsed
)

// Output is the result of ParseOutput: either Parsed(Value) or Raw(Text).
type Output struct {
	Kind  OutputKind
	Value any
	Text  string
}

// ParseOutput trims text and, when it is bracketed like a JSON object or
// array, attempts to decode it. Anything else, including malformed JSON, is
// returned as Raw with the trimmed text.
func ParseOutput(text string) Output {
	trimmed := strings.TrimSpace(text)
	if looksLikeJSON(trimmed) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return Output{Kind: OutputParsed, Value: v, Text: trimmed}
		}
	}
	return Output{Kind: OutputRaw, Text: trimmed}
}

func looksLikeJSON(s string) bool {
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

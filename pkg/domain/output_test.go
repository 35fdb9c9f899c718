package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantKind  OutputKind
		wantValue any
		wantText  string
	}{
		{name: "object", in: ` {"files": ["a.txt"]} `, wantKind: OutputParsed, wantValue: map[string]any{"files": []any{"a.txt"}}},
		{name: "array", in: "[1, 2]\n", wantKind: OutputParsed, wantValue: []any{float64(1), float64(2)}},
		{name: "plain text", in: "  done  ", wantKind: OutputRaw, wantText: "done"},
		{name: "malformed json", in: "{not json}", wantKind: OutputRaw, wantText: "{not json}"},
		{name: "mismatched brackets", in: "{1, 2]", wantKind: OutputRaw, wantText: "{1, 2]"},
		{name: "json inside prose", in: `result: {"a":1}`, wantKind: OutputRaw, wantText: `result: {"a":1}`},
		{name: "empty", in: "   ", wantKind: OutputRaw, wantText: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOutput(tt.in)
			assert.Equal(t, tt.wantKind, got.Kind)
			if tt.wantKind == OutputParsed {
				assert.Equal(t, tt.wantValue, got.Value)
			} else {
				assert.Nil(t, got.Value)
				assert.Equal(t, tt.wantText, got.Text)
			}
		})
	}
}

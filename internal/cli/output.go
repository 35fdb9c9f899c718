package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
)

// PrintJSON writes v as indented JSON followed by a newline.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ParseInput decodes the --input flag. Blank means no input.
func ParseInput(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(s), &input); err != nil {
		return nil, domain.ValidationError("input must be a JSON object").WithCause(err)
	}
	return input, nil
}

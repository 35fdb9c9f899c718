package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// Mask replaces the value of every masked key.
const Mask = "***"

// DefaultSecretPatterns match the keys masked when no patterns are configured.
var DefaultSecretPatterns = []string{`(?i)token`, `(?i)api_?key`, `(?i)password`, `(?i)secret`}

type maskingMiddleware struct {
	next     ports.ExecutionStore
	patterns []*regexp.Regexp
}

// NewMaskingMiddleware masks the values of input and output keys matching any
// pattern before they reach the store. Reads are passed through.
func NewMaskingMiddleware(patternStrings []string) Middleware {
	if len(patternStrings) == 0 {
		patternStrings = DefaultSecretPatterns
	}
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ExecutionStore) ports.ExecutionStore {
		return &maskingMiddleware{next: next, patterns: patterns}
	}
}

func (m *maskingMiddleware) Create(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	cloned := record.Clone()
	cloned.Input = deepCopyMap(record.Input)
	maskMap(cloned.Input, m.patterns)
	cloned.Output = m.maskValue(record.Output)
	return m.next.Create(ctx, cloned)
}

func (m *maskingMiddleware) FindByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	return m.next.FindByID(ctx, id)
}

func (m *maskingMiddleware) Update(ctx context.Context, id string, update domain.ExecutionUpdate) error {
	update.Output = m.maskValue(update.Output)
	return m.next.Update(ctx, id, update)
}

func (m *maskingMiddleware) List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error) {
	return m.next.List(ctx, filter)
}

func (m *maskingMiddleware) maskValue(v any) any {
	sub, ok := v.(map[string]any)
	if !ok {
		return v
	}
	cp := deepCopyMap(sub)
	maskMap(cp, m.patterns)
	return cp
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

// maskMap masks in place. The run-workflow envelope is never masked.
func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if k == domain.RunWorkflowMetaKey {
			continue
		}
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if sub, ok := v.(map[string]any); ok && !masked {
			maskMap(sub, patterns)
		}
	}
}

// Package validator checks a workflow's nodes before any execution record is
// created for it.
package validator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
)

// AnyOwner grants an integration to every owner.
const AnyOwner = "*"

// Validator implements ports.IntegrationValidator.
type Validator struct {
	integrations map[string][]string
	nodeTypes    []string
}

// Option configures the Validator.
type Option func(*Validator)

// WithIntegrations sets which integrations each owner has connected. The
// AnyOwner key applies to everyone.
func WithIntegrations(byOwner map[string][]string) Option {
	return func(v *Validator) {
		for owner, names := range byOwner {
			v.integrations[owner] = append(v.integrations[owner], names...)
		}
	}
}

// WithNodeTypes overrides the accepted node types.
func WithNodeTypes(types ...string) Option {
	return func(v *Validator) { v.nodeTypes = types }
}

// New creates a Validator that accepts the built-in node types.
func New(opts ...Option) *Validator {
	v := &Validator{
		integrations: make(map[string][]string),
		nodeTypes:    []string{domain.NodeCommand, domain.NodeAgent, domain.NodeRunWorkflow},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports every problem at once. The error matches domain.ErrValidation
// and carries the individual messages under the "errors" detail.
func (v *Validator) Validate(ctx context.Context, nodes []domain.Node, ownerID string) error {
	var errs []string
	seen := make(map[string]bool, len(nodes))

	for i, n := range nodes {
		name := n.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Sprintf("node %s has no id", name))
		} else if seen[n.ID] {
			errs = append(errs, fmt.Sprintf("duplicate node id '%s'", n.ID))
		}
		seen[n.ID] = true

		if !slices.Contains(v.nodeTypes, n.Type) {
			errs = append(errs, fmt.Sprintf("node '%s' has unknown type '%s'", name, n.Type))
		}
		if key := requiredKey(n.Type); key != "" {
			if s, _ := n.Config[key].(string); strings.TrimSpace(s) == "" {
				errs = append(errs, fmt.Sprintf("node '%s' is missing '%s'", name, key))
			}
		}
		if n.Integration != "" && !v.enabled(ownerID, n.Integration) {
			errs = append(errs, fmt.Sprintf("node '%s' uses integration '%s' which is not connected for %s", name, n.Integration, ownerID))
		}
	}

	if len(errs) > 0 {
		return domain.ValidationError("found %d errors:\n- %s", len(errs), strings.Join(errs, "\n- ")).
			WithDetail("errors", errs)
	}
	return nil
}

func (v *Validator) enabled(ownerID, integration string) bool {
	return slices.Contains(v.integrations[ownerID], integration) ||
		slices.Contains(v.integrations[AnyOwner], integration)
}

func requiredKey(nodeType string) string {
	switch nodeType {
	case domain.NodeCommand:
		return "command"
	case domain.NodeAgent:
		return "prompt"
	case domain.NodeRunWorkflow:
		return "workflowId"
	}
	return ""
}

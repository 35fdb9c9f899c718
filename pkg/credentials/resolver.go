// Package credentials turns a bearer token into the team and project a remote
// sandbox is provisioned for.
//
// The token's middle segment is decoded without verifying the signature: the
// sandbox provider authenticates the token itself, the resolver only needs the
// identifiers it carries. Tokens that do not carry them fall back to a pair of
// environment variables.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
)

// Default environment variable names for the paired identifiers.
const (
	DefaultTeamEnv    = "SANDBOX_TEAM_ID"
	DefaultProjectEnv = "SANDBOX_PROJECT_ID"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Resolver resolves BearerCredentials.
type Resolver struct {
	lookup     LookupFunc
	teamEnv    string
	projectEnv string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEnv replaces the environment lookup.
func WithEnv(lookup LookupFunc) Option {
	return func(r *Resolver) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// WithEnvNames overrides the variable names read on fallback. Blank names keep
// the defaults.
func WithEnvNames(team, project string) Option {
	return func(r *Resolver) {
		if team != "" {
			r.teamEnv = team
		}
		if project != "" {
			r.projectEnv = project
		}
	}
}

// NewResolver creates a Resolver reading the process environment.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		lookup:     os.LookupEnv,
		teamEnv:    DefaultTeamEnv,
		projectEnv: DefaultProjectEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type claims struct {
	OwnerID   any `json:"owner_id"`
	ProjectID any `json:"project_id"`
}

// Resolve returns the credential for token. Claims embedded in the token win;
// otherwise both environment identifiers must be set.
func (r *Resolver) Resolve(token string) (domain.BearerCredential, error) {
	if team, project, ok := decodeClaims(token); ok {
		return domain.BearerCredential{Token: token, TeamID: team, ProjectID: project}, nil
	}

	team := r.env(r.teamEnv)
	project := r.env(r.projectEnv)
	switch {
	case team != "" && project != "":
		return domain.BearerCredential{Token: token, TeamID: team, ProjectID: project}, nil
	case team != "" || project != "":
		return domain.BearerCredential{}, domain.ConfigurationError("%s and %s must be set together", r.teamEnv, r.projectEnv)
	default:
		return domain.BearerCredential{}, domain.ConfigurationError("invalid token configuration, provide OIDC token or set both env vars %s and %s", r.teamEnv, r.projectEnv)
	}
}

func (r *Resolver) env(key string) string {
	v, ok := r.lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// decodeClaims never returns partial results: ok is true only when both
// identifiers are non-blank strings.
func decodeClaims(token string) (team, project string, ok bool) {
	segments := strings.Split(token, ".")
	if len(segments) < 2 {
		return "", "", false
	}

	payload, err := decodeSegment(segments[1])
	if err != nil {
		return "", "", false
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", "", false
	}
	team, teamOK := c.OwnerID.(string)
	project, projectOK := c.ProjectID.(string)
	if !teamOK || !projectOK || strings.TrimSpace(team) == "" || strings.TrimSpace(project) == "" {
		return "", "", false
	}
	return team, project, true
}

func decodeSegment(seg string) ([]byte, error) {
	seg = strings.NewReplacer("-", "+", "_", "/").Replace(seg)
	if rem := len(seg) % 4; rem != 0 {
		seg += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(seg)
}

package sandbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/registry"
)

// Kind selects the sandbox implementation.
type Kind string

const (
	KindLocal  Kind = "local-simulated"
	KindRemote Kind = "remote-full"
)

// ParseKind accepts the canonical names plus the short forms "local" and "remote".
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "", "local", string(KindLocal):
		return KindLocal, true
	case "remote", string(KindRemote):
		return KindRemote, true
	}
	return "", false
}

// releaseTimeout bounds teardown, which runs detached from the step context.
const releaseTimeout = 30 * time.Second

// Session is an acquired sandbox. It is bound to one step invocation and must
// be released exactly once, typically with defer right after Acquire.
type Session struct {
	ID         string
	Kind       Kind
	WorkingDir string
	Tools      *registry.Registry

	teardown func(ctx context.Context) error
	once     sync.Once
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Release tears the session down. Only the first call does anything; failures
// are logged and never returned so they cannot mask the step outcome.
func (s *Session) Release() {
	s.once.Do(func() {
		if s.teardown == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := s.teardown(ctx); err != nil {
			s.metrics.CleanupFailed(string(s.Kind))
			s.logger.Warn("sandbox cleanup failed", "session", s.ID, "kind", s.Kind, "error", err)
			return
		}
		s.logger.Debug("sandbox released", "session", s.ID, "kind", s.Kind)
	})
}

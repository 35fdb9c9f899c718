package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/registry"
)

// RemoteHandle is a live remote sandbox.
type RemoteHandle interface {
	ID() string
	RunCommand(ctx context.Context, cmd string, args []string) (domain.CommandResult, error)
	Stop(ctx context.Context) error
}

// RemoteProvider provisions remote sandboxes.
type RemoteProvider interface {
	Create(ctx context.Context, creds domain.BearerCredential) (RemoteHandle, error)
}

// LocalProvider builds an in-process tool set. It has no handle to release.
type LocalProvider interface {
	Create(ctx context.Context) (*registry.Registry, error)
}

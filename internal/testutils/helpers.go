package testutils

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/registry"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory and initializes a Loam repository in it.
// It returns the absolute path to the temp dir and the initialized repository.
// It fails the test immediately on error.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// CaptureLogger returns a debug-level text logger writing into the returned buffer.
func CaptureLogger() (*slog.Logger, *SyncBuffer) {
	buf := &SyncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// SyncBuffer is a bytes.Buffer safe for concurrent writers.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*SyncBuffer)(nil)

// FakeHandle is a scriptable ports.RemoteHandle.
type FakeHandle struct {
	HandleID string
	// Run answers RunCommand. A nil Run returns exit code 0.
	Run     func(cmd string, args []string) (domain.CommandResult, error)
	StopErr error

	mu       sync.Mutex
	stops    int
	Commands []string
}

func (h *FakeHandle) ID() string { return h.HandleID }

func (h *FakeHandle) RunCommand(ctx context.Context, cmd string, args []string) (domain.CommandResult, error) {
	h.mu.Lock()
	h.Commands = append(h.Commands, cmd)
	h.mu.Unlock()
	if h.Run == nil {
		return domain.CommandResult{}, nil
	}
	return h.Run(cmd, args)
}

func (h *FakeHandle) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	return h.StopErr
}

// Stops returns how many times Stop was called.
func (h *FakeHandle) Stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

// FakeRemoteProvider hands out a fixed handle and records the credentials it saw.
type FakeRemoteProvider struct {
	Handle    *FakeHandle
	CreateErr error

	mu    sync.Mutex
	Calls []domain.BearerCredential
}

func (p *FakeRemoteProvider) Create(ctx context.Context, creds domain.BearerCredential) (ports.RemoteHandle, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, creds)
	p.mu.Unlock()
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	return p.Handle, nil
}

// CallCount returns how many times Create was called.
func (p *FakeRemoteProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// FakeLocalProvider builds an empty tool set, or the one in Tools when set.
type FakeLocalProvider struct {
	Tools *registry.Registry
	Err   error
	Calls int
}

func (p *FakeLocalProvider) Create(ctx context.Context) (*registry.Registry, error) {
	p.Calls++
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Tools != nil {
		return p.Tools, nil
	}
	return registry.NewRegistry(), nil
}

// Package file provides a ports.ExecutionStore that keeps one JSON document
// per execution record on the local filesystem.
package file

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.ExecutionStore using the local filesystem.
// It stores one JSON file per execution record in a configured directory.
type Store struct {
	BasePath string

	mu sync.Mutex // serializes read-modify-write in Update
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".relay/executions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".relay", "executions")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.BasePath, id+".json")
}

// Create writes a new record file.
func (s *Store) Create(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if err := validID(stored.ID); err != nil {
		return nil, err
	}

	if err := s.write(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// FindByID reads the record file.
func (s *Store) FindByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	return s.read(s.path(id))
}

// Update rewrites the record file with the partial write applied.
func (s *Store) Update(ctx context.Context, id string, update domain.ExecutionUpdate) error {
	if err := validID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(s.path(id))
	if err != nil {
		return err
	}
	update.Apply(rec)
	return s.write(rec)
}

// List scans the directory, newest first.
func (s *Store) List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.ExecutionRecord{}, nil
		}
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	out := make([]*domain.ExecutionRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		rec, err := s.read(filepath.Join(s.BasePath, name))
		if err != nil {
			return nil, err
		}
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}

	slices.SortFunc(out, func(a, b *domain.ExecutionRecord) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) read(path string) (*domain.ExecutionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to read execution file: %w", err)
	}

	var rec domain.ExecutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution record: %w", err)
	}
	return &rec, nil
}

// write persists the record atomically: temp file in the same directory,
// fsync, then rename over the destination.
func (s *Store) write(rec *domain.ExecutionRecord) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure execution directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+rec.ID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(rec.ID)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func validID(id string) error {
	if id == "" {
		return fmt.Errorf("execution id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid execution id %q", id)
	}
	return nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 5

// Store implements ports.ExecutionStore using Redis.
// Records are JSON strings; a sorted set indexes them by creation time.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for execution records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for execution records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "relay:execution:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Create persists a new record and indexes it.
func (s *Store) Create(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(stored.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(stored.CreatedAt.UnixMicro()),
		Member: stored.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save to redis: %w", err)
	}

	return stored, nil
}

// FindByID retrieves the record from Redis.
func (s *Store) FindByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(val)
}

// Update applies the partial write inside an optimistic WATCH transaction so a
// concurrent writer cannot interleave between the read and the write.
func (s *Store) Update(ctx context.Context, id string, update domain.ExecutionUpdate) error {
	key := s.key(id)
	txf := func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return domain.ErrExecutionNotFound
			}
			return err
		}
		rec, err := decode(val)
		if err != nil {
			return err
		}
		update.Apply(rec)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal execution record: %w", err)
		}
		expiration := time.Duration(0)
		if s.ttl > 0 {
			expiration = backend.KeepTTL
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, expiration)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrExecutionNotFound) {
			return fmt.Errorf("failed to update execution %s: %w", id, err)
		}
		return err
	}
	return fmt.Errorf("failed to update execution %s: too much contention", id)
}

// List returns matching records, newest first. Index entries whose record has
// expired are pruned lazily.
func (s *Store) List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.ExecutionRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	out := make([]*domain.ExecutionRecord, 0, len(vals))
	var expired []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		rec, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		if !filter.Match(rec) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired executions: %w", err)
		}
	}

	return out, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decode(data []byte) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution record: %w", err)
	}
	return &rec, nil
}

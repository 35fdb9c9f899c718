package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/qmuntal/stateless"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed writer.
const DefaultLockTTL = 30 * time.Second

const (
	triggerSucceed = "succeed"
	triggerFail    = "fail"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Recorder creates execution records and applies their terminal transition.
type Recorder struct {
	store ports.ExecutionStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(r *Recorder) {
		r.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(r *Recorder) {
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithClock replaces time.Now for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder wraps store.
func NewRecorder(store ports.ExecutionStore, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying execution store.
func (r *Recorder) Store() ports.ExecutionStore {
	return r.store
}

// Start persists a new record in status running. Any status on rec is ignored.
func (r *Recorder) Start(ctx context.Context, rec *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	cp := rec.Clone()
	cp.Status = domain.StatusRunning
	cp.Output = nil
	cp.Error = ""
	cp.CompletedAt = nil
	created, err := r.store.Create(ctx, cp)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}
	return created, nil
}

// Get reads a record.
func (r *Recorder) Get(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	return r.store.FindByID(ctx, id)
}

// Succeed moves a running record to success with output.
func (r *Recorder) Succeed(ctx context.Context, id string, output any) error {
	return r.transition(ctx, id, triggerSucceed, domain.ExecutionUpdate{Output: output})
}

// Fail moves a running record to error with message.
func (r *Recorder) Fail(ctx context.Context, id, message string) error {
	return r.transition(ctx, id, triggerFail, domain.ExecutionUpdate{Error: &message})
}

func (r *Recorder) transition(ctx context.Context, id, trigger string, update domain.ExecutionUpdate) error {
	return r.WithLock(ctx, id, func(ctx context.Context) error {
		rec, err := r.store.FindByID(ctx, id)
		if err != nil {
			return err
		}

		sm := newMachine(rec.Status)
		if err := sm.FireCtx(ctx, trigger); err != nil {
			if rec.Status.Terminal() {
				r.logger.Debug("ignoring write to terminal execution record",
					"execution_id", id, "status", rec.Status, "trigger", trigger)
				return domain.ErrAlreadyTerminal
			}
			return fmt.Errorf("invalid transition %s from %s: %w", trigger, rec.Status, err)
		}

		status, err := sm.State(ctx)
		if err != nil {
			return err
		}
		completed := r.now()
		update.Status = status.(domain.ExecutionStatus)
		update.CompletedAt = &completed
		return r.store.Update(ctx, id, update)
	})
}

func newMachine(status domain.ExecutionStatus) *stateless.StateMachine {
	sm := stateless.NewStateMachine(status)
	sm.Configure(domain.StatusRunning).
		Permit(triggerSucceed, domain.StatusSuccess).
		Permit(triggerFail, domain.StatusError)
	sm.Configure(domain.StatusSuccess)
	sm.Configure(domain.StatusError)
	return sm
}

// IsAlreadyTerminal reports whether err came from a write to a finished record.
func IsAlreadyTerminal(err error) bool {
	return errors.Is(err, domain.ErrAlreadyTerminal)
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(id) after unlocking.
func (r *Recorder) acquire(id string) *lockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.locks[id]
	if !ok {
		entry = &lockEntry{}
		r.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and drops the entry at zero.
func (r *Recorder) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.locks[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(r.locks, id)
	}
}

// WithLock runs fn while holding the lock for record id.
func (r *Recorder) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := r.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		r.release(id)
	}()

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, "execution:"+id, r.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"execution_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

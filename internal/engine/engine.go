package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/config"
	"github.com/fyrsmithlabs/insightd/internal/evidence"
	"github.com/fyrsmithlabs/insightd/internal/lifecontext"
	"github.com/fyrsmithlabs/insightd/internal/patterns"
	"github.com/fyrsmithlabs/insightd/internal/store"
	"github.com/fyrsmithlabs/insightd/internal/traits"
)

// conflictBackoff is the base delay between optimistic-concurrency retries;
// attempt n waits n times this.
const conflictBackoff = 10 * time.Millisecond

// Service runs the inference pipeline over a Store.
type Service struct {
	store      store.Store
	aggregator *evidence.Aggregator
	normalizer *traits.Normalizer
	resolver   *lifecontext.Resolver
	detector   *patterns.Detector
	publisher  Publisher
	logger     *zap.Logger

	schemaVersion   string
	conflictRetries int
	concurrency     int

	locks keyedMutex
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher attaches an outbound event publisher. The default is no
// publisher: notifications are disabled.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the engine over the given store and norm table.
func NewService(st store.Store, norms *traits.NormTable, cfg config.Engine, logger *zap.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if norms == nil {
		return nil, fmt.Errorf("norm table cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:      st,
		aggregator: evidence.NewAggregator(logger),
		normalizer: traits.NewNormalizer(norms),
		resolver:   lifecontext.NewResolver(logger),
		detector: patterns.NewDetector(logger,
			patterns.WithMaxOffset(cfg.MaxOffset.Duration()),
			patterns.WithStalenessWindow(cfg.StalenessWindow.Duration())),
		logger:          logger,
		schemaVersion:   cfg.SchemaVersion,
		conflictRetries: cfg.ConflictRetries,
		concurrency:     cfg.RecomputeConcurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
	if s.conflictRetries < 1 {
		s.conflictRetries = 1
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the publisher, if any. The store is owned by the caller.
func (s *Service) Close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}

// withRetry runs fn until it succeeds or returns a non-conflict error,
// backing off between attempts. A conflict surviving all retries is returned
// as-is so callers can still detect it.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		if attempt > 0 {
			StoreConflicts.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * conflictBackoff):
			}
		}
		err = fn()
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	s.logger.Warn("conflict retries exhausted", zap.String("op", op), zap.Int("retries", s.conflictRetries))
	return fmt.Errorf("%s: %w", op, err)
}

// keyedMutex serializes work per key while letting distinct keys proceed in
// parallel. Entries are reference counted and removed when idle.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Package hybrid composes two replica stores, a durability-authoritative
// primary and a latency-optimized cache, behind the plain SessionStore
// contract.
//
// Reads and writes race both backends and return the first completion; the
// slow leg keeps running and surfaces failures only through the log and
// metrics. Deletes await both backends. Every read additionally audits the
// two answers against each other and repairs the cache from the primary in
// the background, so staleness is self-healing: read-your-writes is not
// guaranteed across replicas, but divergence never outlives the next read.
package hybrid

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/tandemkv/tandem/internal/logging"
	"github.com/tandemkv/tandem/pkg/domain"
	"github.com/tandemkv/tandem/pkg/observability"
	"github.com/tandemkv/tandem/pkg/ports"
)

// ExpiryTolerance is how far the replicas' expiration times may drift apart
// before a read treats them as divergent. It absorbs the clock and
// TTL-computation skew inherent in storing relative expiries.
const ExpiryTolerance = time.Second

// Store coordinates a primary and a cache replica. It holds no mutable state
// of its own; the remote stores are the only shared resource, so no locking
// discipline is needed here.
type Store struct {
	primary ports.ReplicaStore
	cache   ports.ReplicaStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

var _ ports.SessionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for deferred failures. Defaults to a no-op
// logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the instrument set. Defaults to a fresh, unregistered set.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// New composes a primary and a cache replica into one session store.
func New(primary, cache ports.ReplicaStore, opts ...Option) *Store {
	store := &Store{
		primary: primary,
		cache:   cache,
		logger:  logging.NewNop(),
		metrics: observability.NewMetrics(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// settled is one backend's outcome in a two-way race.
type settled[T any] struct {
	fromPrimary bool
	value       T
	err         error
}

func (r settled[T]) backend() string {
	if r.fromPrimary {
		return observability.BackendPrimary
	}
	return observability.BackendCache
}

// race dispatches the operation against both backends and returns the first
// outcome along with the channel the second will arrive on. The channel is
// buffered, so an abandoned slow leg can never leak its goroutine.
func race[T any](cacheOp, primaryOp func() (T, error)) (settled[T], <-chan settled[T]) {
	outcomes := make(chan settled[T], 2)
	go func() {
		value, err := cacheOp()
		outcomes <- settled[T]{value: value, err: err}
	}()
	go func() {
		value, err := primaryOp()
		outcomes <- settled[T]{fromPrimary: true, value: value, err: err}
	}()
	return <-outcomes, outcomes
}

// drainSlowLeg observes the losing leg of a write race. The caller has moved
// on, so a failure here is logged and counted, never returned.
func drainSlowLeg[T any](s *Store, op, namespace string, outcomes <-chan settled[T]) {
	slow := <-outcomes
	if slow.err == nil {
		return
	}
	s.logger.Error("deferred session write failed",
		"op", op,
		"backend", slow.backend(),
		"namespace", namespace,
		"err", slow.err,
	)
	s.metrics.DeferredFailures.WithLabelValues(op, slow.backend()).Inc()
}

// Get returns whichever replica answers first. Once both have answered, the
// results are compared and the cache is corrected to match the primary; that
// reconciliation never delays the returned value.
func (s *Store) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	// Detached so the losing leg still answers and the audit can run.
	ctx = context.WithoutCancel(ctx)
	first, outcomes := race(
		func() (*domain.Session, error) { return s.cache.Get(ctx, key) },
		func() (*domain.Session, error) { return s.primary.Get(ctx, key) },
	)
	go func() {
		s.reconcile(ctx, key, first, <-outcomes)
	}()
	return first.value, first.err
}

// reconcile corrects the cache after both replicas answered a read. When a
// leg errored there is nothing trustworthy to compare; the next read repeats
// the audit anyway.
func (s *Store) reconcile(ctx context.Context, key domain.SessionKey, first, second settled[*domain.Session]) {
	if first.err != nil || second.err != nil {
		return
	}
	cached, primary := first.value, second.value
	if first.fromPrimary {
		cached, primary = second.value, first.value
	}
	if !sessionsDiverge(cached, primary) {
		return
	}

	if primary != nil {
		if err := s.cache.Set(ctx, key, *primary); err != nil {
			s.logger.Error("cache reconciliation failed",
				"action", observability.ActionRewrite,
				"namespace", key.Namespace,
				"err", err,
			)
			return
		}
		s.metrics.Reconciliations.WithLabelValues(observability.ActionRewrite).Inc()
		return
	}

	if _, err := s.cache.DeleteSession(ctx, key); err != nil {
		s.logger.Error("cache reconciliation failed",
			"action", observability.ActionDelete,
			"namespace", key.Namespace,
			"err", err,
		)
		return
	}
	s.metrics.Reconciliations.WithLabelValues(observability.ActionDelete).Inc()
}

// sessionsDiverge reports whether the cached copy needs to be rewritten from
// the primary. Field-level differences always count; expirations may drift
// within ExpiryTolerance before they do.
func sessionsDiverge(cached, primary *domain.Session) bool {
	if cached == nil && primary == nil {
		return false
	}
	if cached == nil || primary == nil {
		return true
	}

	cachedFields, err := domain.MarshalSession(*cached)
	if err != nil {
		return true
	}
	primaryFields, err := domain.MarshalSession(*primary)
	if err != nil {
		return true
	}
	if !maps.Equal(cachedFields, primaryFields) {
		return true
	}

	switch {
	case cached.ExpiresAt == nil && primary.ExpiresAt == nil:
		return false
	case cached.ExpiresAt == nil || primary.ExpiresAt == nil:
		return true
	default:
		skew := cached.ExpiresAt.Sub(*primary.ExpiresAt)
		if skew < 0 {
			skew = -skew
		}
		return skew >= ExpiryTolerance
	}
}

// CreateSession generates the token once, before dispatch, so both replicas
// store the identical token. The caller is unblocked by the first replica to
// acknowledge; the other converges independently.
func (s *Store) CreateSession(ctx context.Context, session domain.Session, namespace, token string) (string, error) {
	if token == "" {
		var err error
		if token, err = domain.GenerateToken(); err != nil {
			return "", err
		}
	}
	// Both legs run detached from the caller's cancellation: once a write is
	// dispatched it must land on both replicas, even when the caller stops
	// waiting after the first acknowledgement.
	ctx = context.WithoutCancel(ctx)
	first, outcomes := race(
		func() (string, error) { return s.cache.CreateSession(ctx, session, namespace, token) },
		func() (string, error) { return s.primary.CreateSession(ctx, session, namespace, token) },
	)
	go drainSlowLeg(s, "create_session", namespace, outcomes)
	return first.value, first.err
}

// MarkSessionActive renews the session on both replicas, returning the first
// outcome.
func (s *Store) MarkSessionActive(ctx context.Context, key domain.SessionKey) error {
	ctx = context.WithoutCancel(ctx)
	first, outcomes := race(
		func() (struct{}, error) { return struct{}{}, s.cache.MarkSessionActive(ctx, key) },
		func() (struct{}, error) { return struct{}{}, s.primary.MarkSessionActive(ctx, key) },
	)
	go drainSlowLeg(s, "mark_session_active", key.Namespace, outcomes)
	return first.err
}

// UpdateSessionMetadata replaces the metadata on both replicas, returning the
// first outcome.
func (s *Store) UpdateSessionMetadata(ctx context.Context, key domain.SessionKey, metadata any) error {
	ctx = context.WithoutCancel(ctx)
	first, outcomes := race(
		func() (struct{}, error) { return struct{}{}, s.cache.UpdateSessionMetadata(ctx, key, metadata) },
		func() (struct{}, error) { return struct{}{}, s.primary.UpdateSessionMetadata(ctx, key, metadata) },
	)
	go drainSlowLeg(s, "update_session_metadata", key.Namespace, outcomes)
	return first.err
}

// DeleteSession removes the session from both replicas and awaits both. The
// reported verdict is the primary's: it is the durability authority for
// whether the record truly existed.
func (s *Store) DeleteSession(ctx context.Context, key domain.SessionKey) (bool, error) {
	first, outcomes := race(
		func() (bool, error) { return s.cache.DeleteSession(ctx, key) },
		func() (bool, error) { return s.primary.DeleteSession(ctx, key) },
	)
	second := <-outcomes

	primaryRes, cacheRes := first, second
	if !first.fromPrimary {
		primaryRes, cacheRes = second, first
	}
	if primaryRes.err != nil {
		return false, primaryRes.err
	}
	if cacheRes.err != nil {
		return false, cacheRes.err
	}
	return primaryRes.value, nil
}

package hybrid_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandemkv/tandem/pkg/adapters/memory"
	"github.com/tandemkv/tandem/pkg/domain"
	"github.com/tandemkv/tandem/pkg/hybrid"
	"github.com/tandemkv/tandem/pkg/observability"
	"github.com/tandemkv/tandem/pkg/ports"
)

const (
	settleTimeout = 2 * time.Second
	settleTick    = 10 * time.Millisecond
)

// slowStore delays every operation of the wrapped replica, simulating a
// backend under load.
type slowStore struct {
	inner ports.ReplicaStore
	delay time.Duration
}

func (s *slowStore) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	time.Sleep(s.delay)
	return s.inner.Get(ctx, key)
}

func (s *slowStore) Set(ctx context.Context, key domain.SessionKey, session domain.Session) error {
	time.Sleep(s.delay)
	return s.inner.Set(ctx, key, session)
}

func (s *slowStore) CreateSession(ctx context.Context, session domain.Session, namespace, token string) (string, error) {
	time.Sleep(s.delay)
	return s.inner.CreateSession(ctx, session, namespace, token)
}

func (s *slowStore) MarkSessionActive(ctx context.Context, key domain.SessionKey) error {
	time.Sleep(s.delay)
	return s.inner.MarkSessionActive(ctx, key)
}

func (s *slowStore) UpdateSessionMetadata(ctx context.Context, key domain.SessionKey, metadata any) error {
	time.Sleep(s.delay)
	return s.inner.UpdateSessionMetadata(ctx, key, metadata)
}

func (s *slowStore) DeleteSession(ctx context.Context, key domain.SessionKey) (bool, error) {
	time.Sleep(s.delay)
	return s.inner.DeleteSession(ctx, key)
}

// ctxBoundStore honors cancellation: an operation whose context is done
// before its latency elapses fails without reaching the wrapped replica.
type ctxBoundStore struct {
	inner ports.ReplicaStore
	delay time.Duration
}

func (c *ctxBoundStore) wait(ctx context.Context) error {
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *ctxBoundStore) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.Get(ctx, key)
}

func (c *ctxBoundStore) Set(ctx context.Context, key domain.SessionKey, session domain.Session) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.inner.Set(ctx, key, session)
}

func (c *ctxBoundStore) CreateSession(ctx context.Context, session domain.Session, namespace, token string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return c.inner.CreateSession(ctx, session, namespace, token)
}

func (c *ctxBoundStore) MarkSessionActive(ctx context.Context, key domain.SessionKey) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.inner.MarkSessionActive(ctx, key)
}

func (c *ctxBoundStore) UpdateSessionMetadata(ctx context.Context, key domain.SessionKey, metadata any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.inner.UpdateSessionMetadata(ctx, key, metadata)
}

func (c *ctxBoundStore) DeleteSession(ctx context.Context, key domain.SessionKey) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	return c.inner.DeleteSession(ctx, key)
}

var errReplicaDown = errors.New("replica down")

// brokenStore fails every operation after a short delay.
type brokenStore struct {
	delay time.Duration
}

func (b *brokenStore) Get(context.Context, domain.SessionKey) (*domain.Session, error) {
	time.Sleep(b.delay)
	return nil, errReplicaDown
}

func (b *brokenStore) Set(context.Context, domain.SessionKey, domain.Session) error {
	time.Sleep(b.delay)
	return errReplicaDown
}

func (b *brokenStore) CreateSession(context.Context, domain.Session, string, string) (string, error) {
	time.Sleep(b.delay)
	return "", errReplicaDown
}

func (b *brokenStore) MarkSessionActive(context.Context, domain.SessionKey) error {
	time.Sleep(b.delay)
	return errReplicaDown
}

func (b *brokenStore) UpdateSessionMetadata(context.Context, domain.SessionKey, any) error {
	time.Sleep(b.delay)
	return errReplicaDown
}

func (b *brokenStore) DeleteSession(context.Context, domain.SessionKey) (bool, error) {
	time.Sleep(b.delay)
	return false, errReplicaDown
}

func newSession(userID string, expiresAt *time.Time) domain.Session {
	return domain.Session{
		UserID:    userID,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		ExpiresAt: expiresAt,
	}
}

func TestHybridStore_Contract(t *testing.T) {
	store := hybrid.New(memory.New(), memory.New())
	ports.RunSessionStoreContract(t, store)
}

func TestHybridStore_GetReturnsFasterReplica(t *testing.T) {
	primary := memory.New()
	cache := memory.New()
	ctx := context.Background()
	key := domain.SessionKey{Token: "race-tok", Namespace: "api"}

	session := newSession("u-1", nil)
	require.NoError(t, primary.Set(ctx, key, session))
	require.NoError(t, cache.Set(ctx, key, session))

	store := hybrid.New(&slowStore{inner: primary, delay: 300 * time.Millisecond}, cache)

	start := time.Now()
	got, err := store.Get(ctx, key)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.UserID)
	assert.Less(t, elapsed, 150*time.Millisecond, "a slow primary must not delay the read")
}

func TestHybridStore_StaleCacheIsRewrittenFromPrimary(t *testing.T) {
	primary := memory.New()
	cache := memory.New()
	ctx := context.Background()
	key := domain.SessionKey{Token: "heal-tok", Namespace: "api"}

	fresh := newSession("u-1", nil)
	fresh.Metadata = map[string]any{"state": "fresh"}
	stale := newSession("u-1", nil)
	stale.Metadata = map[string]any{"state": "stale"}
	require.NoError(t, primary.Set(ctx, key, fresh))
	require.NoError(t, cache.Set(ctx, key, stale))

	metrics := observability.NewMetrics()
	store := hybrid.New(primary, cache, hybrid.WithMetrics(metrics))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got, "the racing read returns some value immediately")

	require.Eventually(t, func() bool {
		cached, err := cache.Get(ctx, key)
		if err != nil || cached == nil {
			return false
		}
		return assert.ObjectsAreEqual(map[string]any{"state": "fresh"}, cached.Metadata)
	}, settleTimeout, settleTick, "the cache must converge to the primary's record")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Reconciliations.WithLabelValues(observability.ActionRewrite)))
}

func TestHybridStore_OrphanCacheEntryIsRemoved(t *testing.T) {
	primary := memory.New()
	cache := memory.New()
	ctx := context.Background()
	key := domain.SessionKey{Token: "orphan-tok", Namespace: "api"}

	require.NoError(t, cache.Set(ctx, key, newSession("u-ghost", nil)))

	metrics := observability.NewMetrics()
	store := hybrid.New(primary, cache, hybrid.WithMetrics(metrics))

	_, err := store.Get(ctx, key)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cached, err := cache.Get(ctx, key)
		return err == nil && cached == nil
	}, settleTimeout, settleTick, "an entry absent from the primary must be evicted from the cache")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Reconciliations.WithLabelValues(observability.ActionDelete)))
}

func TestHybridStore_CreateGeneratesOneTokenForBothReplicas(t *testing.T) {
	primary := memory.New()
	cache := memory.New()
	ctx := context.Background()

	store := hybrid.New(primary, &slowStore{inner: cache, delay: 50 * time.Millisecond})

	token, err := store.CreateSession(ctx, newSession("u-1", nil), "api", "")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	key := domain.SessionKey{Token: token, Namespace: "api"}
	require.Eventually(t, func() bool {
		p, errP := primary.Get(ctx, key)
		c, errC := cache.Get(ctx, key)
		return errP == nil && errC == nil && p != nil && c != nil
	}, settleTimeout, settleTick, "both replicas must hold the session under the same token")
}

func TestHybridStore_WriterIsUnblockedByFirstReplica(t *testing.T) {
	primary := memory.New()
	cache := memory.New()
	ctx := context.Background()

	store := hybrid.New(&slowStore{inner: primary, delay: 300 * time.Millisecond}, cache)

	start := time.Now()
	token, err := store.CreateSession(ctx, newSession("u-1", nil), "api", "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 150*time.Millisecond, "one acknowledgement unblocks the caller")

	// The slow leg still converges.
	key := domain.SessionKey{Token: token, Namespace: "api"}
	require.Eventually(t, func() bool {
		p, err := primary.Get(ctx, key)
		return err == nil && p != nil
	}, settleTimeout, settleTick)
}

func TestHybridStore_WritesSurviveCallerCancellation(t *testing.T) {
	primary := memory.New()
	cache := memory.New()
	store := hybrid.New(&ctxBoundStore{inner: primary, delay: 100 * time.Millisecond}, cache)

	// The caller cancels right after the fast replica acknowledges, the
	// usual request-handler pattern. The in-flight write to the durability
	// authority must still land.
	ctx, cancel := context.WithCancel(context.Background())
	token, err := store.CreateSession(ctx, newSession("u-1", nil), "api", "")
	require.NoError(t, err)
	cancel()

	key := domain.SessionKey{Token: token, Namespace: "api"}
	require.Eventually(t, func() bool {
		p, err := primary.Get(context.Background(), key)
		return err == nil && p != nil
	}, settleTimeout, settleTick, "the primary write must land despite the caller's cancellation")

	ctx, cancel = context.WithCancel(context.Background())
	require.NoError(t, store.UpdateSessionMetadata(ctx, key, map[string]any{"state": "updated"}))
	cancel()

	require.Eventually(t, func() bool {
		p, err := primary.Get(context.Background(), key)
		if err != nil || p == nil {
			return false
		}
		return assert.ObjectsAreEqual(map[string]any{"state": "updated"}, p.Metadata)
	}, settleTimeout, settleTick, "the metadata write must land despite the caller's cancellation")
}

func TestHybridStore_DeleteReportsThePrimaryVerdict(t *testing.T) {
	ctx := context.Background()
	key := domain.SessionKey{Token: "verdict-tok", Namespace: "api"}

	t.Run("cache-only entry reads as not deleted", func(t *testing.T) {
		primary := memory.New()
		cache := memory.New()
		require.NoError(t, cache.Set(ctx, key, newSession("u-1", nil)))

		store := hybrid.New(primary, cache)
		deleted, err := store.DeleteSession(ctx, key)
		require.NoError(t, err)
		assert.False(t, deleted, "the primary is the authority on whether the record existed")

		cached, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, cached, "the cache entry is still removed")
	})

	t.Run("primary entry reads as deleted", func(t *testing.T) {
		primary := memory.New()
		cache := memory.New()
		require.NoError(t, primary.Set(ctx, key, newSession("u-1", nil)))

		store := hybrid.New(primary, cache)
		deleted, err := store.DeleteSession(ctx, key)
		require.NoError(t, err)
		assert.True(t, deleted)
	})
}

func TestHybridStore_DeleteAwaitsBothReplicas(t *testing.T) {
	primary := memory.New()
	cache := memory.New()
	ctx := context.Background()
	key := domain.SessionKey{Token: "await-tok", Namespace: "api"}
	require.NoError(t, primary.Set(ctx, key, newSession("u-1", nil)))
	require.NoError(t, cache.Set(ctx, key, newSession("u-1", nil)))

	store := hybrid.New(primary, &slowStore{inner: cache, delay: 120 * time.Millisecond})

	start := time.Now()
	deleted, err := store.DeleteSession(ctx, key)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, deleted)
	assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond, "delete must not leave a replica in flight")
}

func TestHybridStore_DeferredFailureIsCountedNotReturned(t *testing.T) {
	primary := memory.New()
	metrics := observability.NewMetrics()
	store := hybrid.New(primary, &brokenStore{delay: 20 * time.Millisecond}, hybrid.WithMetrics(metrics))

	token, err := store.CreateSession(context.Background(), newSession("u-1", nil), "api", "")
	require.NoError(t, err, "the caller sees the fast replica's success")
	require.NotEmpty(t, token)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.DeferredFailures.WithLabelValues("create_session", observability.BackendCache)) == 1.0
	}, settleTimeout, settleTick, "the slow leg's failure surfaces via metrics")
}

func TestHybridStore_DeleteSurfacesReplicaErrors(t *testing.T) {
	primary := memory.New()
	store := hybrid.New(primary, &brokenStore{})

	_, err := store.DeleteSession(context.Background(), domain.SessionKey{Token: "t", Namespace: "api"})
	assert.ErrorIs(t, err, errReplicaDown, "delete awaits both replicas, so either failure is the caller's")
}

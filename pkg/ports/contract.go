package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandemkv/tandem/pkg/domain"
)

const (
	settleTimeout = 2 * time.Second
	settleTick    = 10 * time.Millisecond
)

// RunSessionStoreContract verifies that a SessionStore implementation honors
// the interface contract. Expiry writes are allowed to land after the call
// returns, so every expiry-dependent assertion polls instead of reading once.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()

	t.Run("CreateAndGetRoundTrip", func(t *testing.T) {
		now := time.Now().UTC()
		expires := now.Add(time.Hour)
		session := domain.Session{
			UserID:    json.Number("42"),
			Metadata:  map[string]any{"plan": "pro"},
			ExpiresAt: &expires,
			CreatedAt: now,
			IP:        "203.0.113.7",
			ClientID:  "fp-contract-1",
		}

		token, err := store.CreateSession(ctx, session, domain.APINamespace, "")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		key := domain.SessionKey{Token: token, Namespace: domain.APINamespace}
		var got *domain.Session
		require.Eventually(t, func() bool {
			got, err = store.Get(ctx, key)
			return err == nil && got != nil && got.ExpiresAt != nil
		}, settleTimeout, settleTick, "session with expiry should become readable")

		assert.Equal(t, json.Number("42"), got.UserID)
		assert.Equal(t, map[string]any{"plan": "pro"}, got.Metadata)
		assert.Equal(t, session.IP, got.IP)
		assert.Equal(t, session.ClientID, got.ClientID)
		assert.True(t, got.CreatedAt.Equal(now), "createdAt must be immutable")
		assert.WithinDuration(t, expires, *got.ExpiresAt, time.Second)

		other, err := store.Get(ctx, domain.SessionKey{Token: token, Namespace: "other"})
		require.NoError(t, err)
		assert.Nil(t, other, "same token in another namespace must be absent")
	})

	t.Run("GetAbsentIsNotAnError", func(t *testing.T) {
		got, err := store.Get(ctx, domain.SessionKey{Token: "never-created", Namespace: "contract"})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("StringUserIDAndAbsentOptionals", func(t *testing.T) {
		session := domain.Session{UserID: "tenant-7", CreatedAt: time.Now().UTC()}
		token, err := store.CreateSession(ctx, session, "contract-minimal", "")
		require.NoError(t, err)

		key := domain.SessionKey{Token: token, Namespace: "contract-minimal"}
		var got *domain.Session
		require.Eventually(t, func() bool {
			got, err = store.Get(ctx, key)
			return err == nil && got != nil
		}, settleTimeout, settleTick)

		assert.Equal(t, "tenant-7", got.UserID)
		assert.Nil(t, got.Metadata)
		assert.Nil(t, got.ExpiresAt, "session created without expiry must never expire")
		assert.Empty(t, got.IP)
		assert.Empty(t, got.ClientID)
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		const token = "contract-shared-token"
		keyA := domain.SessionKey{Token: token, Namespace: "contract-ns-a"}
		keyB := domain.SessionKey{Token: token, Namespace: "contract-ns-b"}

		_, err := store.CreateSession(ctx, domain.Session{UserID: "a", CreatedAt: time.Now().UTC()}, keyA.Namespace, token)
		require.NoError(t, err)
		_, err = store.CreateSession(ctx, domain.Session{UserID: "b", CreatedAt: time.Now().UTC()}, keyB.Namespace, token)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			a, errA := store.Get(ctx, keyA)
			b, errB := store.Get(ctx, keyB)
			return errA == nil && errB == nil && a != nil && b != nil
		}, settleTimeout, settleTick)

		require.NoError(t, store.UpdateSessionMetadata(ctx, keyA, map[string]any{"touched": true}))
		require.Eventually(t, func() bool {
			a, err := store.Get(ctx, keyA)
			return err == nil && a != nil && a.Metadata != nil
		}, settleTimeout, settleTick)

		b, err := store.Get(ctx, keyB)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Nil(t, b.Metadata, "mutating one namespace must not leak into another")

		deleted, err := store.DeleteSession(ctx, keyA)
		require.NoError(t, err)
		assert.True(t, deleted)

		b, err = store.Get(ctx, keyB)
		require.NoError(t, err)
		assert.NotNil(t, b, "deleting one namespace must not delete another")
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		token, err := store.CreateSession(ctx, domain.Session{UserID: "d", CreatedAt: time.Now().UTC()}, "contract-delete", "")
		require.NoError(t, err)
		key := domain.SessionKey{Token: token, Namespace: "contract-delete"}

		require.Eventually(t, func() bool {
			got, err := store.Get(ctx, key)
			return err == nil && got != nil
		}, settleTimeout, settleTick)

		deleted, err := store.DeleteSession(ctx, key)
		require.NoError(t, err)
		assert.True(t, deleted, "first delete must report a removed record")

		deleted, err = store.DeleteSession(ctx, key)
		require.NoError(t, err)
		assert.False(t, deleted, "second delete must report nothing removed")

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RenewalPreservesOriginalLifespan", func(t *testing.T) {
		// Created half an hour ago with an hour to live, so half the lifespan
		// is already spent. Renewal must restore the full hour from now.
		now := time.Now().UTC()
		createdAt := now.Add(-30 * time.Minute)
		expires := now.Add(30 * time.Minute)
		session := domain.Session{UserID: json.Number("7"), ExpiresAt: &expires, CreatedAt: createdAt}

		token, err := store.CreateSession(ctx, session, "contract-renew", "")
		require.NoError(t, err)
		key := domain.SessionKey{Token: token, Namespace: "contract-renew"}

		require.Eventually(t, func() bool {
			got, err := store.Get(ctx, key)
			return err == nil && got != nil && got.ExpiresAt != nil
		}, settleTimeout, settleTick, "initial expiry should become visible")

		require.NoError(t, store.MarkSessionActive(ctx, key))

		require.Eventually(t, func() bool {
			got, err := store.Get(ctx, key)
			if err != nil || got == nil || got.ExpiresAt == nil {
				return false
			}
			want := time.Now().Add(time.Hour)
			diff := got.ExpiresAt.Sub(want)
			if diff < 0 {
				diff = -diff
			}
			return diff < time.Second
		}, settleTimeout, settleTick, "expiry should be the original lifespan anchored at renewal time")
	})

	t.Run("RenewalWithoutExpiryIsANoOp", func(t *testing.T) {
		token, err := store.CreateSession(ctx, domain.Session{UserID: "immortal", CreatedAt: time.Now().UTC()}, "contract-noop", "")
		require.NoError(t, err)
		key := domain.SessionKey{Token: token, Namespace: "contract-noop"}

		require.Eventually(t, func() bool {
			got, err := store.Get(ctx, key)
			return err == nil && got != nil
		}, settleTimeout, settleTick)

		require.NoError(t, store.MarkSessionActive(ctx, key))

		require.Never(t, func() bool {
			got, err := store.Get(ctx, key)
			return err != nil || got == nil || got.ExpiresAt != nil
		}, 250*time.Millisecond, 50*time.Millisecond, "renewal must not conjure an expiry")
	})

	t.Run("MutatingAMissingKeyFails", func(t *testing.T) {
		key := domain.SessionKey{Token: "contract-missing", Namespace: "contract"}
		assert.ErrorIs(t, store.MarkSessionActive(ctx, key), domain.ErrNoSuchSession)
		assert.ErrorIs(t, store.UpdateSessionMetadata(ctx, key, map[string]any{"x": 1}), domain.ErrNoSuchSession)
	})

	t.Run("MetadataIsReplacedWholesale", func(t *testing.T) {
		session := domain.Session{
			UserID:    "m",
			Metadata:  map[string]any{"a": "1", "b": "2"},
			CreatedAt: time.Now().UTC(),
		}
		token, err := store.CreateSession(ctx, session, "contract-metadata", "")
		require.NoError(t, err)
		key := domain.SessionKey{Token: token, Namespace: "contract-metadata"}

		require.Eventually(t, func() bool {
			got, err := store.Get(ctx, key)
			return err == nil && got != nil
		}, settleTimeout, settleTick)

		require.NoError(t, store.UpdateSessionMetadata(ctx, key, map[string]any{"plan": "free"}))

		require.Eventually(t, func() bool {
			got, err := store.Get(ctx, key)
			if err != nil || got == nil {
				return false
			}
			return assert.ObjectsAreEqual(map[string]any{"plan": "free"}, got.Metadata)
		}, settleTimeout, settleTick, "old metadata keys must not survive a replace")
	})

	t.Run("CallerSuppliedTokenOverwrites", func(t *testing.T) {
		const token = "contract-fixed-token"
		key := domain.SessionKey{Token: token, Namespace: "contract-overwrite"}

		_, err := store.CreateSession(ctx, domain.Session{UserID: "first", CreatedAt: time.Now().UTC()}, key.Namespace, token)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			got, err := store.Get(ctx, key)
			return err == nil && got != nil
		}, settleTimeout, settleTick)

		_, err = store.CreateSession(ctx, domain.Session{UserID: "second", CreatedAt: time.Now().UTC()}, key.Namespace, token)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			got, err := store.Get(ctx, key)
			return err == nil && got != nil && got.UserID == "second"
		}, settleTimeout, settleTick, "re-creating at an existing key replaces the record")
	})
}

// Package redis implements ports.ReplicaStore against a single Redis replica.
//
// A session is one hash at "{namespace}:{token}". Expiration is never a hash
// field; it lives in Redis' own per-key expiry, scheduled with PEXPIREAT after
// the field write so the caller is not delayed by it.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/tandemkv/tandem/internal/logging"
	"github.com/tandemkv/tandem/pkg/domain"
	"github.com/tandemkv/tandem/pkg/ports"
)

// Store is a thin adapter over one Redis replica. It holds no state beyond
// the client and is safe for concurrent use.
type Store struct {
	client *backend.Client
	logger *slog.Logger
}

var _ ports.ReplicaStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for deferred expiry writes. Defaults to a
// no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Redis-backed store, owning a new client for the given
// address. The client dials lazily; use Ping to fail fast at startup.
func New(addr, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Ping verifies connectivity to the replica.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func storageKey(key domain.SessionKey) string {
	return key.Namespace + ":" + key.Token
}

// Get fetches the session's fields and its remaining TTL in a single
// pipelined round trip. No fields means no session; a negative TTL means the
// key has no expiry, which is distinct from not existing.
func (s *Store) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	k := storageKey(key)
	pipe := s.client.Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, nil
	}

	var expiresAt *time.Time
	if ttl := ttlCmd.Val(); ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	session, err := domain.UnmarshalSession(fields, expiresAt)
	if err != nil {
		if errors.Is(err, domain.ErrNoSuchSession) {
			// A hash without createdAt is not a session.
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Set writes the session at the given key, replacing any record there. The
// delete and field write travel in one transactional pipeline so a replace
// cannot leave fields of the previous record behind. When the session
// expires, the absolute expiry is scheduled without awaiting: the record is
// usable as soon as the fields land.
func (s *Store) Set(ctx context.Context, key domain.SessionKey, session domain.Session) error {
	fields, err := domain.MarshalSession(session)
	if err != nil {
		return err
	}

	k := storageKey(key)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	if session.ExpiresAt != nil {
		go s.writeExpiry(context.WithoutCancel(ctx), key, *session.ExpiresAt)
	}
	return nil
}

// writeExpiry applies an absolute expiry to a session key. It runs detached
// from the caller, so failures surface only through the log.
func (s *Store) writeExpiry(ctx context.Context, key domain.SessionKey, at time.Time) {
	if err := s.client.PExpireAt(ctx, storageKey(key), at).Err(); err != nil {
		// Tokens are bearer secrets; log the namespace, not the key.
		s.logger.Error("session expiry write failed",
			"namespace", key.Namespace,
			"err", err,
		)
	}
}

// CreateSession stores the session and returns its token, generating one when
// the caller supplies none. An existing record at the same key is replaced.
func (s *Store) CreateSession(ctx context.Context, session domain.Session, namespace, token string) (string, error) {
	if token == "" {
		var err error
		if token, err = domain.GenerateToken(); err != nil {
			return "", err
		}
	}
	if err := s.Set(ctx, domain.SessionKey{Token: token, Namespace: namespace}, session); err != nil {
		return "", err
	}
	return token, nil
}

// MarkSessionActive resets the key's TTL to the session's original lifespan,
// anchored at the current instant. The lifespan is derived from what the
// engine knows: original lifespan = (now + remaining TTL) - createdAt. The
// rewrite itself is dispatched without awaiting.
func (s *Store) MarkSessionActive(ctx context.Context, key domain.SessionKey) error {
	k := storageKey(key)
	pipe := s.client.Pipeline()
	createdCmd := pipe.HGet(ctx, k, domain.FieldCreatedAt)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return fmt.Errorf("read session for renewal: %w", err)
	}

	createdRaw, err := createdCmd.Result()
	if errors.Is(err, backend.Nil) {
		return domain.ErrNoSuchSession
	}
	if err != nil {
		return fmt.Errorf("read session for renewal: %w", err)
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		// The session never expires; there is nothing to renew.
		return nil
	}

	createdAt, err := time.Parse(domain.TimeLayout, createdRaw)
	if err != nil {
		return fmt.Errorf("parse session createdAt: %w", err)
	}

	now := time.Now()
	lifespan := now.Add(ttl).Sub(createdAt)
	go s.writeExpiry(context.WithoutCancel(ctx), key, now.Add(lifespan))
	return nil
}

// UpdateSessionMetadata replaces the metadata field wholesale. Existence is a
// precondition, checked first so a missing key fails instead of materializing
// a bare metadata hash.
func (s *Store) UpdateSessionMetadata(ctx context.Context, key domain.SessionKey, metadata any) error {
	k := storageKey(key)
	exists, err := s.client.Exists(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("check session existence: %w", err)
	}
	if exists == 0 {
		return domain.ErrNoSuchSession
	}

	raw, err := domain.MarshalMetadata(metadata)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, k, domain.FieldMetadata, raw).Err(); err != nil {
		return fmt.Errorf("write session metadata: %w", err)
	}
	return nil
}

// DeleteSession removes the key and reports whether anything was there.
func (s *Store) DeleteSession(ctx context.Context, key domain.SessionKey) (bool, error) {
	removed, err := s.client.Del(ctx, storageKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return removed > 0, nil
}

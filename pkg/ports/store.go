package ports

import (
	"context"

	"github.com/tandemkv/tandem/pkg/domain"
)

// SessionStore is the capability contract every session consumer depends on.
// It has no concept of permissions or tenants; namespacing is the only
// partitioning it provides.
type SessionStore interface {
	// Get fetches a session by key. A missing session is (nil, nil), not an
	// error.
	Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error)

	// CreateSession stores a session under the given namespace and returns
	// its token. An empty token asks the store to generate one. Any existing
	// record at the resulting key is silently overwritten; callers supplying
	// their own tokens rely on this for idempotent retries.
	CreateSession(ctx context.Context, session domain.Session, namespace, token string) (string, error)

	// MarkSessionActive resets the session's expiry to last the amount it
	// would have originally lasted, starting now. Returns
	// domain.ErrNoSuchSession if the key does not exist, and succeeds without
	// effect if the session never expires.
	MarkSessionActive(ctx context.Context, key domain.SessionKey) error

	// UpdateSessionMetadata replaces the session's metadata wholesale.
	// Returns domain.ErrNoSuchSession if the key does not exist.
	UpdateSessionMetadata(ctx context.Context, key domain.SessionKey, metadata any) error

	// DeleteSession removes the session. It is idempotent and reports whether
	// a record actually existed.
	DeleteSession(ctx context.Context, key domain.SessionKey) (bool, error)
}

// ReplicaStore is the wider contract a backend must satisfy to participate in
// a primary/cache composition: reconciliation needs a raw overwrite that
// bypasses token generation.
type ReplicaStore interface {
	SessionStore

	// Set writes the session at the given key, replacing whatever is there.
	Set(ctx context.Context, key domain.SessionKey, session domain.Session) error
}

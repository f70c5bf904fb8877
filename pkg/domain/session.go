package domain

import "time"

// APINamespace is the reserved namespace under which tenant API keys are
// stored. Callers resolving bearer credentials look sessions up here before
// touching any application namespace.
const APINamespace = "api"

// SessionKey identifies a single session. The namespace partitions token
// spaces, so the same token string can exist independently per tenant or per
// purpose. At most one live session exists per key.
type SessionKey struct {
	// Token is the opaque session token presented by the client.
	Token string
	// Namespace scopes the token, e.g. APINamespace or a tenant app ID.
	Namespace string
}

// Session is the record a caller manipulates. The store treats UserID and
// Metadata as opaque JSON-like values; IP and ClientID are security bindings
// enforced by callers, not by the store.
type Session struct {
	// UserID identifies the subject in the caller's own database. It may be a
	// string or a number; numbers round-trip as json.Number.
	UserID any
	// Metadata is an arbitrary JSON-like value, mutable after creation.
	Metadata any
	// ExpiresAt is the absolute expiry. Nil means the session never expires.
	ExpiresAt *time.Time
	// CreatedAt is set at creation and never changes. A stored session
	// without it does not exist.
	CreatedAt time.Time
	// IP optionally pins the session to a client address.
	IP string
	// ClientID optionally pins the session to a client fingerprint.
	ClientID string
}

// SessionWithKey annotates a session with the key it was retrieved under, so
// a caller can mutate the same record later.
type SessionWithKey struct {
	Session
	Key SessionKey
}

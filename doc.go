/*
Package tandem is a multi-tenant session token store backed by a pair of
replicated key-value backends: a durability-authoritative primary and a
latency-optimized cache.

Sessions are opaque records addressed by (token, namespace). Namespaces
partition token spaces, so the same token string can exist independently per
tenant or per purpose (API-key sessions vs application-user sessions).
Expiration is realized through the storage engine's native per-key TTL, never
as a stored timestamp, and renewal resets a session's time-to-live to its
original lifespan anchored at the current instant.

# Consistency model

Writes are dispatched to both replicas concurrently and the caller is
unblocked by the first acknowledgement; the slower replica converges
independently, with failures surfaced through logging and metrics only. Reads
race both replicas and return the first answer, then compare both answers in
the background and correct the cache to match the primary. Read-your-writes
is therefore not guaranteed across replicas, but staleness is self-healing:
every read audits and repairs the cache.

# Usage

	store := tandem.New(tandem.Config{
		Primary: tandem.Backend{Addr: "redis-primary:6379"},
		Cache:   tandem.Backend{Addr: "redis-cache:6379"},
	})
	defer store.Close()

	token, err := store.CreateSession(ctx, domain.Session{
		UserID:    42,
		CreatedAt: time.Now(),
	}, domain.APINamespace, "")

Callers needing a single replica, or an in-process store for tests, can use
pkg/adapters/redis and pkg/adapters/memory directly; both satisfy the same
contract as the hybrid composition.

Optional store middlewares, such as metadata-at-rest encryption and PII
redaction from pkg/middleware, wrap the composed store via WithMiddleware.
*/
package tandem

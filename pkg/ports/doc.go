// Package ports defines the storage contracts of the session store and a
// reusable contract test suite that every adapter must pass.
//
// SessionStore is what callers (credential resolution, usage metering,
// operator tooling) program against; ReplicaStore is the slightly wider
// surface a backend exposes so it can serve as one half of a primary/cache
// composition.
package ports

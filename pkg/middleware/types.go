// Package middleware provides composable wrappers around a
// [ports.SessionStore]. Middlewares sit above the replication layer, so
// whatever they write is replicated verbatim and the replicas always agree
// byte for byte.
package middleware

import "github.com/tandemkv/tandem/pkg/ports"

// Middleware wraps a SessionStore to add behavior.
type Middleware func(ports.SessionStore) ports.SessionStore

// Chain applies middlewares to a store, first middleware outermost.
func Chain(store ports.SessionStore, middlewares ...Middleware) ports.SessionStore {
	for i := len(middlewares) - 1; i >= 0; i-- {
		store = middlewares[i](store)
	}
	return store
}

package tandem

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tandemkv/tandem/internal/logging"
	"github.com/tandemkv/tandem/pkg/adapters/redis"
	"github.com/tandemkv/tandem/pkg/hybrid"
	"github.com/tandemkv/tandem/pkg/middleware"
	"github.com/tandemkv/tandem/pkg/observability"
	"github.com/tandemkv/tandem/pkg/ports"
)

// Version is the release version of the module.
const Version = "0.2.0"

// Backend locates one Redis replica.
type Backend struct {
	Addr     string
	Password string
	DB       int
}

// Config wires a hybrid store. It is passed explicitly to New; the core never
// reads ambient process state.
type Config struct {
	// Primary is the durability-authoritative replica.
	Primary Backend
	// Cache is the latency-optimized replica that reads race against the
	// primary.
	Cache Backend
}

// Store is the production session store: a hybrid composition over two
// Redis replicas, optionally wrapped in middleware, owning both clients.
type Store struct {
	ports.SessionStore
	primary *redis.Store
	cache   *redis.Store
}

type settings struct {
	logger      *slog.Logger
	metrics     *observability.Metrics
	middlewares []middleware.Middleware
}

// Option configures New.
type Option func(*settings)

// WithLogger sets the logger used for deferred failures across all layers.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMetrics sets the instrument set used by the hybrid layer.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *settings) {
		s.metrics = metrics
	}
}

// WithMiddleware wraps the store in the given middlewares, first one
// outermost. Middlewares sit above replication, so whatever they persist is
// what both replicas hold.
func WithMiddleware(middlewares ...middleware.Middleware) Option {
	return func(s *settings) {
		s.middlewares = append(s.middlewares, middlewares...)
	}
}

// New builds the hybrid store for the given replica pair. Clients dial
// lazily; use Ping to verify connectivity at startup.
func New(cfg Config, opts ...Option) *Store {
	s := settings{
		logger:  logging.NewNop(),
		metrics: observability.NewMetrics(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	primary := redis.New(cfg.Primary.Addr, cfg.Primary.Password, cfg.Primary.DB, redis.WithLogger(s.logger))
	cache := redis.New(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, redis.WithLogger(s.logger))
	store := hybrid.New(primary, cache, hybrid.WithLogger(s.logger), hybrid.WithMetrics(s.metrics))
	return &Store{
		SessionStore: middleware.Chain(store, s.middlewares...),
		primary:      primary,
		cache:        cache,
	}
}

// Ping verifies connectivity to both replicas.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Join(s.primary.Ping(ctx), s.cache.Ping(ctx))
}

// Close closes both replica clients.
func (s *Store) Close() error {
	return errors.Join(s.primary.Close(), s.cache.Close())
}

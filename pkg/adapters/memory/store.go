// Package memory implements ports.ReplicaStore over an in-process map. It
// exists for tests and single-process embedders; expiry is swept lazily on
// access rather than by a background reaper.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/tandemkv/tandem/pkg/domain"
	"github.com/tandemkv/tandem/pkg/ports"
)

type entry struct {
	fields    map[string]string
	expiresAt *time.Time
}

func (e *entry) expired(now time.Time) bool {
	return e.expiresAt != nil && !now.Before(*e.expiresAt)
}

// Store is a mutex-guarded map of marshalled sessions. The marshalled form is
// stored, not the Session itself, so the codec path is exercised exactly as
// it is against a real key-value engine.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

var _ ports.ReplicaStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func storageKey(key domain.SessionKey) string {
	return key.Namespace + ":" + key.Token
}

// take returns the live entry for key, sweeping it if it has lapsed. Callers
// must hold the lock.
func (s *Store) take(key domain.SessionKey, now time.Time) (*entry, bool) {
	k := storageKey(key)
	e, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(s.entries, k)
		return nil, false
	}
	return e, true
}

func (s *Store) Get(_ context.Context, key domain.SessionKey) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.take(key, time.Now())
	if !ok {
		return nil, nil
	}
	var expiresAt *time.Time
	if e.expiresAt != nil {
		t := *e.expiresAt
		expiresAt = &t
	}
	return domain.UnmarshalSession(maps.Clone(e.fields), expiresAt)
}

func (s *Store) Set(_ context.Context, key domain.SessionKey, session domain.Session) error {
	fields, err := domain.MarshalSession(session)
	if err != nil {
		return err
	}
	var expiresAt *time.Time
	if session.ExpiresAt != nil {
		t := *session.ExpiresAt
		expiresAt = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[storageKey(key)] = &entry{fields: fields, expiresAt: expiresAt}
	return nil
}

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

func (s *Store) MarkSessionActive(_ context.Context, key domain.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.take(key, now)
	if !ok {
		return domain.ErrNoSuchSession
	}
	if e.expiresAt == nil {
		return nil
	}
	createdAt, err := time.Parse(domain.TimeLayout, e.fields[domain.FieldCreatedAt])
	if err != nil {
		return domain.ErrNoSuchSession
	}
	renewed := now.Add(e.expiresAt.Sub(createdAt))
	e.expiresAt = &renewed
	return nil
}

func (s *Store) UpdateSessionMetadata(_ context.Context, key domain.SessionKey, metadata any) error {
	raw, err := domain.MarshalMetadata(metadata)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.take(key, time.Now())
	if !ok {
		return domain.ErrNoSuchSession
	}
	e.fields[domain.FieldMetadata] = raw
	return nil
}

func (s *Store) DeleteSession(_ context.Context, key domain.SessionKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.take(key, time.Now())
	if !ok {
		return false, nil
	}
	delete(s.entries, storageKey(key))
	return true, nil
}

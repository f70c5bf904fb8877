package middleware

import (
	"context"
	"regexp"

	"github.com/tandemkv/tandem/pkg/domain"
	"github.com/tandemkv/tandem/pkg/ports"
)

const redactedValue = "***"

type redactionStore struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewRedaction returns a middleware that masks metadata values whose keys
// match any of the patterns before they are persisted. Masking happens on the
// write path only; once a value is stored as "***" it is gone.
func NewRedaction(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &redactionStore{next: next, patterns: patterns}
	}
}

func (m *redactionStore) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	return m.next.Get(ctx, key)
}

func (m *redactionStore) CreateSession(ctx context.Context, session domain.Session, namespace, token string) (string, error) {
	session.Metadata = m.mask(session.Metadata)
	return m.next.CreateSession(ctx, session, namespace, token)
}

func (m *redactionStore) MarkSessionActive(ctx context.Context, key domain.SessionKey) error {
	return m.next.MarkSessionActive(ctx, key)
}

func (m *redactionStore) UpdateSessionMetadata(ctx context.Context, key domain.SessionKey, metadata any) error {
	return m.next.UpdateSessionMetadata(ctx, key, m.mask(metadata))
}

func (m *redactionStore) DeleteSession(ctx context.Context, key domain.SessionKey) (bool, error) {
	return m.next.DeleteSession(ctx, key)
}

// mask deep-copies map-shaped metadata and masks matching keys. The caller's
// value is never mutated. Non-map metadata passes through untouched.
func (m *redactionStore) mask(metadata any) any {
	root, ok := metadata.(map[string]any)
	if !ok {
		return metadata
	}
	cloned := deepCopyMap(root)
	maskMap(cloned, m.patterns)
	return cloned
}

func deepCopyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = redactedValue
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}

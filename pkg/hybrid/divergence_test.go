package hybrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tandemkv/tandem/pkg/domain"
)

func TestSessionsDiverge(t *testing.T) {
	createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	expires := createdAt.Add(time.Hour)

	base := func() *domain.Session {
		e := expires
		return &domain.Session{
			UserID:    "u-1",
			Metadata:  map[string]any{"plan": "pro"},
			ExpiresAt: &e,
			CreatedAt: createdAt,
		}
	}
	withExpiry := func(at time.Time) *domain.Session {
		s := base()
		s.ExpiresAt = &at
		return s
	}

	tests := map[string]struct {
		cached  *domain.Session
		primary *domain.Session
		want    bool
	}{
		"both absent":                  {nil, nil, false},
		"cache orphan":                 {base(), nil, true},
		"cache miss":                   {nil, base(), true},
		"identical":                    {base(), base(), false},
		"expiry skew within tolerance": {withExpiry(expires.Add(500 * time.Millisecond)), base(), false},
		"expiry skew beyond tolerance": {withExpiry(expires.Add(2 * time.Second)), base(), true},
		"expiry missing on one side": {
			cached:  &domain.Session{UserID: "u-1", Metadata: map[string]any{"plan": "pro"}, CreatedAt: createdAt},
			primary: base(),
			want:    true,
		},
		"metadata differs": {
			cached: func() *domain.Session {
				s := base()
				s.Metadata = map[string]any{"plan": "free"}
				return s
			}(),
			primary: base(),
			want:    true,
		},
		"user differs": {
			cached: func() *domain.Session {
				s := base()
				s.UserID = "u-2"
				return s
			}(),
			primary: base(),
			want:    true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, sessionsDiverge(tt.cached, tt.primary))
		})
	}
}

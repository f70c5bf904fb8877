package domain_test

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandemkv/tandem/pkg/domain"
)

var alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 256; i++ {
		token, err := domain.GenerateToken()
		require.NoError(t, err)
		assert.Regexp(t, alphanumeric, token, "tokens must be URL-safe alphanumeric")
		// 22 base64 characters, minus the rare symbol strips.
		assert.GreaterOrEqual(t, len(token), 16)
		assert.LessOrEqual(t, len(token), 22)
		_, dup := seen[token]
		assert.False(t, dup, "token %q generated twice", token)
		seen[token] = struct{}{}
	}
}

func TestMarshalSession_OmitsAbsentFields(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	fields, err := domain.MarshalSession(domain.Session{
		UserID:    "u-1",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: &expires,
	})
	require.NoError(t, err)

	assert.Contains(t, fields, domain.FieldUserID)
	assert.Contains(t, fields, domain.FieldCreatedAt)
	assert.NotContains(t, fields, domain.FieldMetadata)
	assert.NotContains(t, fields, domain.FieldIP)
	assert.NotContains(t, fields, domain.FieldClientID)
	assert.NotContains(t, fields, "expiresAt", "expiry is engine-native, never a field")
	assert.Len(t, fields, 2)
}

func TestSessionRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	expires := now.Add(2 * time.Hour)

	tests := map[string]domain.Session{
		"all fields": {
			UserID:    json.Number("42"),
			Metadata:  map[string]any{"plan": "pro", "seats": json.Number("3")},
			ExpiresAt: &expires,
			CreatedAt: now,
			IP:        "198.51.100.4",
			ClientID:  "fp-abc",
		},
		"string user id": {
			UserID:    "tenant-7",
			CreatedAt: now,
		},
		"metadata without expiry": {
			UserID:    json.Number("9000000000000000001"),
			Metadata:  []any{"a", json.Number("1")},
			CreatedAt: now,
		},
	}

	for name, session := range tests {
		t.Run(name, func(t *testing.T) {
			fields, err := domain.MarshalSession(session)
			require.NoError(t, err)

			got, err := domain.UnmarshalSession(fields, session.ExpiresAt)
			require.NoError(t, err)
			assert.Equal(t, session.UserID, got.UserID)
			assert.Equal(t, session.Metadata, got.Metadata)
			assert.True(t, got.CreatedAt.Equal(session.CreatedAt))
			assert.Equal(t, session.ExpiresAt, got.ExpiresAt)
			assert.Equal(t, session.IP, got.IP)
			assert.Equal(t, session.ClientID, got.ClientID)
		})
	}
}

func TestUnmarshalSession_MissingCreatedAtMeansNoSession(t *testing.T) {
	_, err := domain.UnmarshalSession(map[string]string{
		domain.FieldUserID: `"u-1"`,
	}, nil)
	assert.ErrorIs(t, err, domain.ErrNoSuchSession)
}

func TestUnmarshalSession_ExpiryIsSuppliedOutOfBand(t *testing.T) {
	fields, err := domain.MarshalSession(domain.Session{UserID: "u-1", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	ttlReading := time.Now().Add(30 * time.Minute)
	got, err := domain.UnmarshalSession(fields, &ttlReading)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(ttlReading))
}

package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandemkv/tandem/pkg/domain"
)

type usageMetadata struct {
	PreventUsageUntilMonth int `json:"preventUsageUntilMonth"`
}

func TestDecodeMetadata(t *testing.T) {
	fields, err := domain.MarshalSession(domain.Session{
		UserID:   "tenant-1",
		Metadata: map[string]any{"preventUsageUntilMonth": 684},
	})
	require.NoError(t, err)
	session, err := domain.UnmarshalSession(fields, nil)
	require.NoError(t, err)

	var usage usageMetadata
	require.NoError(t, domain.DecodeMetadata(session, &usage))
	assert.Equal(t, 684, usage.PreventUsageUntilMonth)
}

// A metering job reads a session, decodes its counters, and writes the bumped
// metadata back under the key it was retrieved with.
func TestDecodeMetadata_MeteringRoundTrip(t *testing.T) {
	retrieved := domain.SessionWithKey{
		Session: domain.Session{
			UserID:   "tenant-1",
			Metadata: map[string]any{"preventUsageUntilMonth": 683},
		},
		Key: domain.SessionKey{Token: "tok-meter", Namespace: domain.APINamespace},
	}

	var usage usageMetadata
	require.NoError(t, domain.DecodeMetadata(&retrieved.Session, &usage))
	usage.PreventUsageUntilMonth++

	assert.Equal(t, 684, usage.PreventUsageUntilMonth)
	assert.Equal(t, "tok-meter", retrieved.Key.Token, "the key travels with the session for the write-back")
}

func TestDecodeMetadata_AbsentMetadataIsANoOp(t *testing.T) {
	usage := usageMetadata{PreventUsageUntilMonth: 7}
	require.NoError(t, domain.DecodeMetadata(&domain.Session{UserID: "x"}, &usage))
	assert.Equal(t, 7, usage.PreventUsageUntilMonth, "absent metadata must leave the target untouched")
	require.NoError(t, domain.DecodeMetadata(nil, &usage))
}

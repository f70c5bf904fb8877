package domain

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Hash field names of the marshalled session. Every value is a string: UserID
// and Metadata are stored as JSON text so that type fidelity (string vs number
// IDs, arbitrary metadata shapes) survives a store whose native field type is
// string.
const (
	FieldUserID    = "userId"
	FieldMetadata  = "metadata"
	FieldCreatedAt = "createdAt"
	FieldIP        = "ip"
	FieldClientID  = "clientId"
)

// TimeLayout is the encoding of CreatedAt in the marshalled session.
const TimeLayout = time.RFC3339Nano

const tokenEntropyBytes = 16

// GenerateToken returns a new session token built from 128 bits of
// cryptographically secure randomness, encoded as a URL-safe alphanumeric
// string with no padding or symbol characters.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return strings.NewReplacer("-", "", "_", "").Replace(token), nil
}

// MarshalSession converts a session to the flat string-keyed representation
// the key-value engine stores. ExpiresAt is deliberately dropped: the engine's
// native per-key expiry is the source of truth for it. Absent optional fields
// are omitted entirely so the engine is never asked to write them.
func MarshalSession(s Session) (map[string]string, error) {
	userID, err := json.Marshal(s.UserID)
	if err != nil {
		return nil, fmt.Errorf("marshal session userId: %w", err)
	}
	fields := map[string]string{
		FieldUserID:    string(userID),
		FieldCreatedAt: s.CreatedAt.Format(TimeLayout),
	}
	if s.Metadata != nil {
		metadata, err := MarshalMetadata(s.Metadata)
		if err != nil {
			return nil, err
		}
		fields[FieldMetadata] = metadata
	}
	if s.IP != "" {
		fields[FieldIP] = s.IP
	}
	if s.ClientID != "" {
		fields[FieldClientID] = s.ClientID
	}
	return fields, nil
}

// MarshalMetadata encodes a metadata value as JSON text for storage in the
// metadata hash field.
func MarshalMetadata(metadata any) (string, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal session metadata: %w", err)
	}
	return string(raw), nil
}

// UnmarshalSession inverts MarshalSession. The expiry is supplied out-of-band
// from the engine's TTL reading, since it is never stored as a field. A field
// map without createdAt is not a session; ErrNoSuchSession is returned so
// callers can treat it as absence.
func UnmarshalSession(fields map[string]string, expiresAt *time.Time) (*Session, error) {
	createdRaw, ok := fields[FieldCreatedAt]
	if !ok {
		return nil, ErrNoSuchSession
	}
	createdAt, err := time.Parse(TimeLayout, createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse session createdAt: %w", err)
	}
	session := &Session{
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		IP:        fields[FieldIP],
		ClientID:  fields[FieldClientID],
	}
	if raw, ok := fields[FieldUserID]; ok {
		if session.UserID, err = decodeJSONValue(raw); err != nil {
			return nil, fmt.Errorf("parse session userId: %w", err)
		}
	}
	if raw, ok := fields[FieldMetadata]; ok {
		if session.Metadata, err = decodeJSONValue(raw); err != nil {
			return nil, fmt.Errorf("parse session metadata: %w", err)
		}
	}
	return session, nil
}

// decodeJSONValue decodes with UseNumber so numeric user IDs survive a
// marshal/unmarshal cycle byte-for-byte instead of collapsing to float64.
func decodeJSONValue(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

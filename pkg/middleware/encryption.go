package middleware

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tandemkv/tandem/pkg/domain"
	"github.com/tandemkv/tandem/pkg/ports"
)

// envelopeField marks a metadata value as an encrypted envelope.
const envelopeField = "__encrypted__"

// EncryptionConfig holds the keys for metadata encryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new data. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are old keys tried when decryption with the active key
	// fails. This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionStore struct {
	next   ports.SessionStore
	config EncryptionConfig
}

// NewEncryption returns a middleware that encrypts session metadata at rest
// using AES-GCM. The user ID and connection attributes stay in the clear so
// operator tooling keeps working; metadata is the caller-controlled surface
// and is treated as sensitive wholesale.
func NewEncryption(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionStore{next: next, config: config}
	}
}

func (m *encryptionStore) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	session, err := m.next.Get(ctx, key)
	if err != nil || session == nil {
		return session, err
	}
	metadata, err := m.open(session.Metadata)
	if err != nil {
		return nil, err
	}
	session.Metadata = metadata
	return session, nil
}

func (m *encryptionStore) CreateSession(ctx context.Context, session domain.Session, namespace, token string) (string, error) {
	sealed, err := m.seal(session.Metadata)
	if err != nil {
		return "", err
	}
	session.Metadata = sealed
	return m.next.CreateSession(ctx, session, namespace, token)
}

func (m *encryptionStore) MarkSessionActive(ctx context.Context, key domain.SessionKey) error {
	return m.next.MarkSessionActive(ctx, key)
}

func (m *encryptionStore) UpdateSessionMetadata(ctx context.Context, key domain.SessionKey, metadata any) error {
	sealed, err := m.seal(metadata)
	if err != nil {
		return err
	}
	return m.next.UpdateSessionMetadata(ctx, key, sealed)
}

func (m *encryptionStore) DeleteSession(ctx context.Context, key domain.SessionKey) (bool, error) {
	return m.next.DeleteSession(ctx, key)
}

// seal serializes and encrypts metadata into an opaque envelope. Nil metadata
// passes through so absent stays absent.
func (m *encryptionStore) seal(metadata any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	plaintext, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	ciphertext, err := encrypt(plaintext, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt metadata: %w", err)
	}
	return map[string]any{
		envelopeField: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

func (m *encryptionStore) open(metadata any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	envelope, ok := metadata.(map[string]any)
	if !ok {
		return nil, errors.New("metadata is not an encrypted envelope")
	}
	encoded, ok := envelope[envelopeField].(string)
	if !ok {
		// Fail secure. Records written before encryption was enabled must
		// be rewritten, not silently served.
		return nil, errors.New("metadata is missing its encrypted envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	plaintext, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("decrypt metadata: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("unmarshal decrypted metadata: %w", err)
	}
	return value, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

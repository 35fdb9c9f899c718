package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// EnvelopeKey holds the ciphertext inside an encrypted input or output.
const EnvelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new data. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when ActiveKey cannot decrypt, which
	// allows key rotation without downtime.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ExecutionStore
	config EncryptionConfig
}

// NewEncryptionMiddleware seals record input and output with AES-GCM. Ids,
// status, error messages and timestamps stay in clear text so stores can
// index and filter them.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, domain.ConfigurationError("active key must be 32 bytes (AES-256), got %d", len(config.ActiveKey))
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, domain.ConfigurationError("fallback key %d must be 32 bytes (AES-256), got %d", i, len(k))
		}
	}
	return func(next ports.ExecutionStore) ports.ExecutionStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.ConfigurationError("encryption key is not valid base64").WithCause(err)
	}
	return key, nil
}

func (m *encryptionMiddleware) Create(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	sealed := record.Clone()
	var err error
	if record.Input != nil {
		if sealed.Input, err = m.seal(record.Input); err != nil {
			return nil, err
		}
	}
	if record.Output != nil {
		if sealed.Output, err = m.seal(record.Output); err != nil {
			return nil, err
		}
	}

	created, err := m.next.Create(ctx, sealed)
	if err != nil {
		return nil, err
	}
	out := created.Clone()
	out.Input = record.Input
	out.Output = record.Output
	return out, nil
}

func (m *encryptionMiddleware) FindByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	rec, err := m.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(rec)
}

func (m *encryptionMiddleware) Update(ctx context.Context, id string, update domain.ExecutionUpdate) error {
	if update.Output != nil {
		sealed, err := m.seal(update.Output)
		if err != nil {
			return err
		}
		update.Output = sealed
	}
	return m.next.Update(ctx, id, update)
}

func (m *encryptionMiddleware) List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error) {
	recs, err := m.next.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ExecutionRecord, 0, len(recs))
	for _, rec := range recs {
		opened, err := m.open(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (m *encryptionMiddleware) seal(v any) (map[string]any, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	ciphertext, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return map[string]any{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}, nil
}

// open decrypts input and output. A payload without an envelope is rejected.
func (m *encryptionMiddleware) open(rec *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	out := rec.Clone()
	if rec.Input != nil {
		var input map[string]any
		if err := m.unseal(rec.Input, &input); err != nil {
			return nil, fmt.Errorf("execution %s input: %w", rec.ID, err)
		}
		out.Input = input
	}
	if rec.Output != nil {
		var output any
		if err := m.unseal(rec.Output, &output); err != nil {
			return nil, fmt.Errorf("execution %s output: %w", rec.ID, err)
		}
		out.Output = output
	}
	return out, nil
}

func (m *encryptionMiddleware) unseal(v any, dst any) error {
	env, ok := v.(map[string]any)
	if !ok {
		return errors.New("payload is missing encrypted data envelope")
	}
	encoded, ok := env[EnvelopeKey].(string)
	if !ok {
		return errors.New("payload is missing encrypted data envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, dst); err != nil {
		return fmt.Errorf("failed to unmarshal decrypted payload: %w", err)
	}
	return nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	for _, key := range append([][]byte{activeKey}, fallbackKeys...) {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

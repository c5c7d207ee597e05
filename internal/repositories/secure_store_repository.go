package repositories

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/chacha20poly1305"

	"bookstoreBack/internal/models"
)

// DefaultSecureStoreNamespace scopes every stored key to the application.
const DefaultSecureStoreNamespace = "com.pluralsight.ImplementingInAppPurchases"

// SecureStoreRepository persists entitlement fields encrypted at rest.
// Values are sealed with XChaCha20-Poly1305 before they reach Redis; the
// field key is bound as associated data so a value cannot be replayed under
// a different key.
type SecureStoreRepository struct {
	RDB       *redis.Client
	namespace string
	aead      cipher.AEAD
}

// NewSecureStoreRepository builds the store. key must be a 32-byte secret.
func NewSecureStoreRepository(rdb *redis.Client, key []byte, namespace string) (*SecureStoreRepository, error) {
	if rdb == nil {
		return nil, errors.New("secure store: redis client is required")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secure store: %w", err)
	}
	if namespace == "" {
		namespace = DefaultSecureStoreNamespace
	}
	return &SecureStoreRepository{RDB: rdb, namespace: namespace, aead: aead}, nil
}

func (r *SecureStoreRepository) storageKey(key string) string {
	return r.namespace + ":" + key
}

// Read returns the decrypted value for key. A missing key reads as absent,
// not as an error.
func (r *SecureStoreRepository) Read(ctx context.Context, key string) (string, bool, error) {
	raw, err := r.RDB.Get(ctx, r.storageKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("secure store: read %s: %w", key, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(sealed) < r.aead.NonceSize() {
		return "", false, models.ErrSecureStoreSealed
	}
	nonce, box := sealed[:r.aead.NonceSize()], sealed[r.aead.NonceSize():]
	plain, err := r.aead.Open(nil, nonce, box, []byte(key))
	if err != nil {
		return "", false, models.ErrSecureStoreSealed
	}
	return string(plain), true, nil
}

// Write seals value under a fresh random nonce and stores it. Last writer
// wins; there is no cross-field atomicity because every product rule writes
// its own disjoint field.
func (r *SecureStoreRepository) Write(ctx context.Context, key, value string) error {
	nonce := make([]byte, r.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("secure store: nonce: %w", err)
	}
	sealed := r.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	encoded := base64.StdEncoding.EncodeToString(sealed)
	if err := r.RDB.Set(ctx, r.storageKey(key), encoded, 0).Err(); err != nil {
		return fmt.Errorf("secure store: write %s: %w", key, err)
	}
	return nil
}

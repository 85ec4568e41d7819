package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

// ErrNoSecret is returned when a validator is built without a secret.
var ErrNoSecret = errors.New("auth: no shared secret configured")

// Validator decides whether a presented credential opens the gate.
type Validator interface {
	Validate(ctx context.Context, presented string) bool
}

// SecretValidator compares against a plaintext secret held in memory.
// Both sides are digested first so the comparison length is fixed.
type SecretValidator struct {
	digest [sha256.Size]byte
}

// NewSecretValidator returns a validator for secret.
func NewSecretValidator(secret string) (*SecretValidator, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &SecretValidator{digest: sha256.Sum256([]byte(secret))}, nil
}

// Validate implements Validator.
func (v *SecretValidator) Validate(_ context.Context, presented string) bool {
	if presented == "" {
		return false
	}
	d := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(d[:], v.digest[:]) == 1
}

// HashValidator checks against an Argon2id hash so the plaintext secret
// never has to be deployed.
type HashValidator struct {
	encoded string
}

// NewHashValidator returns a validator for an encoded Argon2id hash.
func NewHashValidator(encodedHash string) (*HashValidator, error) {
	if encodedHash == "" {
		return nil, ErrNoSecret
	}
	if _, err := decodeHash(encodedHash); err != nil {
		return nil, err
	}
	return &HashValidator{encoded: encodedHash}, nil
}

// Validate implements Validator.
func (v *HashValidator) Validate(_ context.Context, presented string) bool {
	if presented == "" {
		return false
	}
	ok, err := VerifySecret(presented, v.encoded)
	return err == nil && ok
}

// NewValidator prefers hash when set and falls back to secret.
func NewValidator(secret, hash string) (Validator, error) {
	if hash != "" {
		v, err := NewHashValidator(hash)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	v, err := NewSecretValidator(secret)
	if err != nil {
		return nil, err
	}
	return v, nil
}
